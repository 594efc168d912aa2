// Package archive unpacks zip payloads delivered by an update source.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/distantorigin/field-updater/internal/paths"
)

// ProgressFunc is called during extraction with current file index and total files.
type ProgressFunc func(current, total int, filename string)

// IsArchive reports whether name looks like a zip payload
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// Extract unpacks the zip at zipPath into targetDir, keeping the archive's
// internal layout. Entries that would land outside targetDir are rejected.
func Extract(zipPath, targetDir string, progress ProgressFunc) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip %s: %w", filepath.Base(zipPath), err)
	}
	defer reader.Close()

	total := len(reader.File)
	for i, f := range reader.File {
		relPath := f.Name
		if relPath == "" {
			continue
		}
		if progress != nil {
			progress(i+1, total, relPath)
		}

		absTarget, err := paths.Within(targetDir, filepath.Join(targetDir, paths.Denormalize(relPath)))
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(absTarget, f.Mode().Perm()|0700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", relPath, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(absTarget), 0755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", relPath, err)
		}

		if err := extractFile(f, absTarget); err != nil {
			return fmt.Errorf("failed to extract %s: %w", relPath, err)
		}
	}

	return nil
}

// ExtractAndRemove extracts the archive next to itself and deletes it
func ExtractAndRemove(zipPath string, progress ProgressFunc) error {
	if err := Extract(zipPath, filepath.Dir(zipPath), progress); err != nil {
		return err
	}
	if err := os.Remove(zipPath); err != nil {
		return fmt.Errorf("failed to remove archive %s: %w", filepath.Base(zipPath), err)
	}
	return nil
}

func extractFile(f *zip.File, targetPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !f.Modified.IsZero() {
		_ = os.Chtimes(targetPath, f.Modified, f.Modified)
	}
	return nil
}
