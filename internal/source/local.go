package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/distantorigin/field-updater/internal/archive"
	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/paths"
	"github.com/distantorigin/field-updater/internal/version"
)

// LocalMedia offers content from the root of a removable-storage mount
type LocalMedia struct {
	Mount string
}

// NewLocalMedia returns a media source for mount. An empty mount is never available.
func NewLocalMedia(mount string) *LocalMedia {
	return &LocalMedia{Mount: mount}
}

// Name identifies the mount
func (m *LocalMedia) Name() string {
	return "local media " + m.Mount
}

// Available reports whether the mount point is an existing directory
func (m *LocalMedia) Available() bool {
	return m.Mount != "" && paths.IsDir(m.Mount)
}

// CurrentVersion reads the highest version marker at the mount root
func (m *LocalMedia) CurrentVersion(ctx context.Context) (version.Version, error) {
	v, name, err := version.Find(m.Mount)
	if err != nil {
		return version.Version{}, fmt.Errorf("failed to scan %s: %w", m.Mount, err)
	}
	if name == "" {
		return version.Version{}, ErrNoVersion
	}
	return v, nil
}

// Fetch copies every non-hidden, non-marker entry at the mount root
func (m *LocalMedia) Fetch(ctx context.Context, targetDir string) error {
	if err := m.fetch(ctx, targetDir); err != nil {
		return &FetchError{Source: m.Name(), Err: err}
	}
	return nil
}

func (m *LocalMedia) fetch(ctx context.Context, targetDir string) error {
	entries, err := os.ReadDir(m.Mount)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}

	logger := logging.L("source").WithField(logging.KeySource, m.Name())
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if paths.IsHidden(name) {
			continue
		}
		if _, err := version.Parse(name); err == nil {
			continue
		}

		dst := filepath.Join(targetDir, name)
		logger.WithField(logging.KeyPath, name).Info("copying from media")
		if err := paths.Copy(filepath.Join(m.Mount, name), dst); err != nil {
			return fmt.Errorf("failed to copy %s: %w", name, err)
		}
		if !entry.IsDir() && archive.IsArchive(name) {
			if err := archive.ExtractAndRemove(dst, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
