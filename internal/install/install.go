// Package install inspects and finishes the packaged installation: what is
// on disk before a run, and the launcher and version marker after a fetch.
package install

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/distantorigin/field-updater/internal/paths"
	"github.com/distantorigin/field-updater/internal/version"
)

// Installation is what the device holds at the start of a run. It is derived
// from the filesystem and never persisted.
type Installation struct {
	LegacyPresent   bool
	PackagedPresent bool
	Installed       version.Version
	// MarkerName is the marker the installed version was read from, "" when
	// no marker exists and Installed is the sentinel
	MarkerName string
	// MarkerErr is set when the packaged directory exists but could not be scanned
	MarkerErr         error
	BasicRequirements bool
	LauncherPresent   bool
}

// Detect inspects layout without modifying anything
func Detect(layout paths.Layout) Installation {
	inst := Installation{
		LegacyPresent:   paths.IsDir(layout.LegacyPath()),
		PackagedPresent: paths.IsDir(layout.PackagedPath()),
		Installed:       version.Sentinel,
		LauncherPresent: paths.Exists(layout.LauncherPath()),
	}

	if inst.PackagedPresent {
		v, name, err := version.Find(layout.PackagedPath())
		if err != nil {
			inst.MarkerErr = err
		} else {
			inst.Installed, inst.MarkerName = v, name
		}
	}

	inst.BasicRequirements = true
	for _, req := range layout.BasicRequirements() {
		if _, err := paths.FindActual(req); err != nil {
			inst.BasicRequirements = false
			break
		}
	}
	return inst
}

// IsInstalled reports whether the packaged executable is present
func IsInstalled(layout paths.Layout) bool {
	_, err := paths.FindActual(layout.ExecutablePath())
	return err == nil
}

const launcherTemplate = `#!/bin/sh
# Starts the packaged controller application.
cd "$(dirname "$0")/%s" || exit 1
exec ./%s "$@"
`

// InstallLauncher places the top-level launcher script. The fetched
// assets/ copy wins; without one a default script that starts the packaged
// executable is written. It reports whether the assets copy was used.
func InstallLauncher(layout paths.Layout) (fromAssets bool, err error) {
	dst := layout.LauncherPath()
	src, findErr := paths.FindActual(filepath.Join(layout.AssetsPath(), layout.LauncherScript))

	if findErr == nil {
		if err := paths.CopyFile(src, dst); err != nil {
			return false, fmt.Errorf("failed to copy launcher script: %w", err)
		}
		return true, os.Chmod(dst, 0755)
	}
	if !errors.Is(findErr, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to look up launcher script: %w", findErr)
	}

	script := fmt.Sprintf(launcherTemplate, paths.Normalize(layout.PackagedDir), layout.Executable)
	if err := os.WriteFile(dst, []byte(script), 0755); err != nil {
		return false, fmt.Errorf("failed to write launcher script: %w", err)
	}
	return false, os.Chmod(dst, 0755)
}

// InstallMarker makes sure the packaged directory carries the marker for
// available. A fetched marker is taken from assets/ or the packaged directory
// itself; otherwise a dotted marker is written. It returns the marker name.
func InstallMarker(layout paths.Layout, available version.Version) (string, error) {
	packaged := layout.PackagedPath()

	if m, ok := findMarker(layout.AssetsPath(), available); ok {
		if err := paths.CopyFile(filepath.Join(layout.AssetsPath(), m.Name), filepath.Join(packaged, m.Name)); err != nil {
			return "", fmt.Errorf("failed to copy version marker: %w", err)
		}
		return m.Name, nil
	}
	if m, ok := findMarker(packaged, available); ok {
		return m.Name, nil
	}

	path, err := version.Write(packaged, available)
	if err != nil {
		return "", err
	}
	return filepath.Base(path), nil
}

func findMarker(dir string, want version.Version) (version.Marker, bool) {
	markers, err := version.Scan(dir)
	if err != nil {
		return version.Marker{}, false
	}
	for _, m := range markers {
		if version.Compare(m.Version, want) == version.Equal {
			return m, true
		}
	}
	return version.Marker{}, false
}

// StaleMarkers lists markers in the packaged directory for any version other than keep
func StaleMarkers(layout paths.Layout, keep version.Version) ([]version.Marker, error) {
	markers, err := version.Scan(layout.PackagedPath())
	if err != nil {
		return nil, err
	}
	var stale []version.Marker
	for _, m := range markers {
		if version.Compare(m.Version, keep) != version.Equal {
			stale = append(stale, m)
		}
	}
	return stale, nil
}
