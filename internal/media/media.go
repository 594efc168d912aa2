// Package media finds removable storage that carries an update.
package media

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/version"
)

// Mounts lists mount points located under one of roots
func Mounts(roots []string) ([]string, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, err
	}
	return filterMounts(partitions, roots), nil
}

func filterMounts(partitions []disk.PartitionStat, roots []string) []string {
	seen := make(map[string]bool)
	var mounts []string
	for _, p := range partitions {
		mp := filepath.Clean(p.Mountpoint)
		if p.Mountpoint == "" || seen[mp] {
			continue
		}
		if strings.HasPrefix(p.Fstype, "tmpfs") || strings.HasPrefix(p.Fstype, "squashfs") {
			continue
		}
		if !underAny(mp, roots) {
			continue
		}
		seen[mp] = true
		mounts = append(mounts, mp)
	}
	sort.Strings(mounts)
	return mounts
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		root = filepath.Clean(root)
		if path != root && strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Pick returns the first mount whose root holds a version marker, or ""
// when none does. Media without a marker is not treated as an update.
func Pick(mounts []string) string {
	logger := logging.L("media")
	for _, m := range mounts {
		v, name, err := version.Find(m)
		if err != nil {
			logger.WithError(err).WithField(logging.KeyPath, m).Debug("mount unreadable")
			continue
		}
		if name != "" {
			logger.WithField(logging.KeyPath, m).WithField(logging.KeyVersion, v.String()).Info("update media found")
			return m
		}
	}
	return ""
}

// Discover returns the mount under roots carrying an update, or "" if none
func Discover(roots []string) string {
	mounts, err := Mounts(roots)
	if err != nil {
		logging.L("media").WithError(err).Warn("failed to list mounts")
		return ""
	}
	return Pick(mounts)
}
