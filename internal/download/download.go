// Package download fetches release assets to disk.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cavaliergopher/grab/v3"

	"github.com/distantorigin/field-updater/internal/paths"
)

var client = grab.NewClient()

func init() {
	client.UserAgent = "field-updater"
}

// ProgressCallback is called during download with progress info
type ProgressCallback func(bytesComplete, totalBytes int64, percentage int)

// StatusError is a download that the server answered with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download of %s failed: HTTP %d", e.URL, e.StatusCode)
}

func newRequest(ctx context.Context, url, targetPath string) (*grab.Request, error) {
	req, err := grab.NewRequest(targetPath, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.NoResume = true // Always overwrite, never resume
	return req.WithContext(ctx), nil
}

func result(resp *grab.Response, url string) error {
	if err := resp.Err(); err != nil {
		if grab.IsStatusCodeError(err) && resp.HTTPResponse != nil {
			return &StatusError{URL: url, StatusCode: resp.HTTPResponse.StatusCode}
		}
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

// FileWithProgress downloads a file, reporting progress to callback when non-nil
func FileWithProgress(ctx context.Context, url, targetPath string, callback ProgressCallback) error {
	req, err := newRequest(ctx, url, targetPath)
	if err != nil {
		return err
	}

	resp := client.Do(req)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastPercentage := -1
	for {
		select {
		case <-ticker.C:
			if callback != nil {
				var percentage int
				if resp.Size() > 0 {
					percentage = int(resp.Progress() * 100)
				}
				if percentage != lastPercentage {
					callback(resp.BytesComplete(), resp.Size(), percentage)
					lastPercentage = percentage
				}
			}
		case <-resp.Done:
			if callback != nil && resp.Err() == nil {
				callback(resp.BytesComplete(), resp.Size(), 100)
			}
			return result(resp, url)
		}
	}
}

// Into downloads url into dir under name, refusing names that would land
// outside dir. It returns the written path.
func Into(ctx context.Context, url, dir, name string, callback ProgressCallback) (string, error) {
	if name == "" || name == "." {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	target, err := paths.Within(dir, filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := FileWithProgress(ctx, url, target, callback); err != nil {
		return "", err
	}
	return target, nil
}
