package testutil

import (
	"path/filepath"
	"testing"

	"github.com/distantorigin/field-updater/internal/paths"
)

// Device builds installation fixtures under a temporary root
type Device struct {
	Layout paths.Layout
}

// NewDevice returns an empty device rooted in a fresh temp dir
func NewDevice(t *testing.T) *Device {
	t.Helper()
	layout, err := paths.DefaultLayout(t.TempDir())
	if err != nil {
		t.Fatalf("failed to build layout: %v", err)
	}
	return &Device{Layout: layout}
}

// WithLegacy creates the legacy installation with both preserved folders
func (d *Device) WithLegacy(t *testing.T) *Device {
	t.Helper()
	src := filepath.Join(d.Layout.LegacyPath(), "src")
	WriteFile(t, filepath.Join(src, "jobCache", "job1.nc"), "G0 X10 Y10")
	WriteFile(t, filepath.Join(src, "sb_values", "z_lube.txt"), "1200")
	WriteFile(t, filepath.Join(src, "main.py"), "print('legacy')")
	return d
}

// WithPackaged creates a packaged installation at the given marker name.
// An empty marker leaves the installation unversioned.
func (d *Device) WithPackaged(t *testing.T, marker string) *Device {
	t.Helper()
	WriteFile(t, d.Layout.ExecutablePath(), "installed binary")
	if marker != "" {
		WriteFile(t, filepath.Join(d.Layout.PackagedPath(), marker), "")
	}
	return d
}

// WithLauncher creates the top-level launcher script
func (d *Device) WithLauncher(t *testing.T) *Device {
	t.Helper()
	WriteFile(t, d.Layout.LauncherPath(), "#!/bin/sh\nexec ./easycut/main.exe\n")
	return d
}

// Media creates a removable-media mount holding files (slash-separated
// names relative to the mount root) and returns its path
func Media(t *testing.T, files map[string]string) string {
	t.Helper()
	mount := t.TempDir()
	for name, content := range files {
		WriteFile(t, filepath.Join(mount, filepath.FromSlash(name)), content)
	}
	return mount
}
