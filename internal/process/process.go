// Package process finds running copies of the packaged executable.
package process

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// IsRunningFrom reports whether any process is executing the binary at exePath
func IsRunningFrom(exePath string) (bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, err
	}

	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || exe == "" {
			// Processes owned by other users hide their executable.
			continue
		}
		if SameExecutable(exe, exePath) {
			return true, nil
		}
	}
	return false, nil
}

// SameExecutable compares executable paths the way the kernel reports them.
// A binary replaced while running is reported with a " (deleted)" suffix.
func SameExecutable(reported, expected string) bool {
	reported = strings.TrimSuffix(reported, " (deleted)")
	return strings.EqualFold(filepath.Clean(reported), filepath.Clean(expected))
}

// WaitForTermination polls until nothing runs exePath.
// Returns true if process terminated, false if timeout occurred
func WaitForTermination(exePath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		running, err := IsRunningFrom(exePath)
		if err != nil || !running {
			// A failed scan cannot prove the binary is in use.
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}
