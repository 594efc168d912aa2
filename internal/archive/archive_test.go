package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestIsArchive(t *testing.T) {
	tests := map[string]bool{
		"payload.zip":  true,
		"PAYLOAD.ZIP":  true,
		"main.exe":     false,
		"v2.0.0.txt":   false,
		"zip":          false,
		"archive.zip/": false,
	}
	for name, want := range tests {
		if got := IsArchive(name); got != want {
			t.Errorf("IsArchive(%q) = %v, want %v", name, got, want)
		}
	}
}

// TestExtractKeepsLayout tests that sub-paths such as assets/ survive extraction
func TestExtractKeepsLayout(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "payload.zip")
	writeZip(t, zipPath, map[string]string{
		"main.exe":                "binary",
		"assets/start_easycut.sh": "#!/bin/sh\n",
		"assets/v2.0.0.txt":       "2.0.0\n",
	})

	target := filepath.Join(dir, "out")
	var seen int
	if err := Extract(zipPath, target, func(current, total int, name string) { seen = total }); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if seen != 3 {
		t.Errorf("progress total = %d, want 3", seen)
	}
	for _, rel := range []string{"main.exe", "assets/start_easycut.sh", "assets/v2.0.0.txt"} {
		if _, err := os.Stat(filepath.Join(target, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string]string{"../../escaped.txt": "x"})

	target := filepath.Join(dir, "a", "b")
	if err := Extract(zipPath, target, nil); err == nil {
		t.Fatal("Extract() expected traversal error")
	}
	if _, err := os.Stat(filepath.Join(dir, "escaped.txt")); err == nil {
		t.Error("entry escaped the target directory")
	}
}

func TestExtractAndRemove(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "payload.zip")
	writeZip(t, zipPath, map[string]string{"main.exe": "binary"})

	if err := ExtractAndRemove(zipPath, nil); err != nil {
		t.Fatalf("ExtractAndRemove() error = %v", err)
	}
	if _, err := os.Stat(zipPath); !os.IsNotExist(err) {
		t.Error("archive still present after extraction")
	}
	if data, err := os.ReadFile(filepath.Join(dir, "main.exe")); err != nil || string(data) != "binary" {
		t.Errorf("main.exe = %q, %v", data, err)
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "broken.zip")
	if err := os.WriteFile(zipPath, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ExtractAndRemove(zipPath, nil); err == nil {
		t.Fatal("ExtractAndRemove() expected error")
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Error("corrupt archive must be left in place")
	}
}
