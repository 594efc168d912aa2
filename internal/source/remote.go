package source

import (
	"context"
	"fmt"

	"github.com/distantorigin/field-updater/internal/archive"
	"github.com/distantorigin/field-updater/internal/download"
	"github.com/distantorigin/field-updater/internal/github"
	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/version"
)

// RemoteRegistry offers the assets of a tagged release on GitHub
type RemoteRegistry struct {
	client   *github.Client
	tag      string
	resolved string
	progress download.ProgressCallback
}

// NewRemoteRegistry returns a registry source. An empty tag follows the
// latest published tag.
func NewRemoteRegistry(client *github.Client, tag string) *RemoteRegistry {
	return &RemoteRegistry{client: client, tag: tag}
}

// SetProgress installs a per-asset download progress callback
func (r *RemoteRegistry) SetProgress(cb download.ProgressCallback) {
	r.progress = cb
}

// Name identifies the registry
func (r *RemoteRegistry) Name() string {
	if r.client == nil {
		return "remote registry"
	}
	return "remote registry " + r.client.Repo()
}

// Available reports whether a registry is configured
func (r *RemoteRegistry) Available() bool {
	return r.client != nil
}

func (r *RemoteRegistry) resolveTag(ctx context.Context) (string, error) {
	if r.tag != "" {
		return r.tag, nil
	}
	if r.resolved != "" {
		return r.resolved, nil
	}
	tag, err := r.client.LatestTag(ctx)
	if err != nil {
		return "", err
	}
	r.resolved = tag
	return tag, nil
}

// CurrentVersion parses the pinned or latest tag
func (r *RemoteRegistry) CurrentVersion(ctx context.Context) (version.Version, error) {
	tag, err := r.resolveTag(ctx)
	if err != nil {
		return version.Version{}, err
	}
	v, err := version.ParseTag(tag)
	if err != nil {
		return version.Version{}, fmt.Errorf("failed to parse tag %q: %w", tag, err)
	}
	return v, nil
}

// Fetch downloads every asset of the release into targetDir
func (r *RemoteRegistry) Fetch(ctx context.Context, targetDir string) error {
	if err := r.fetch(ctx, targetDir); err != nil {
		return &FetchError{Source: r.Name(), Err: err}
	}
	return nil
}

func (r *RemoteRegistry) fetch(ctx context.Context, targetDir string) error {
	tag, err := r.resolveTag(ctx)
	if err != nil {
		return err
	}
	assets, err := r.client.ReleaseAssets(ctx, tag)
	if err != nil {
		return err
	}

	logger := logging.L("source").WithField(logging.KeySource, r.Name())
	for _, asset := range assets {
		logger.WithField("asset", asset.Name).Info("downloading asset")
		path, err := download.Into(ctx, asset.URL, targetDir, asset.Name, r.progress)
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", asset.Name, err)
		}
		if archive.IsArchive(asset.Name) {
			if err := archive.ExtractAndRemove(path, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
