// Package source provides the places an update can come from and picks the
// one a run should use.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/version"
)

var (
	// ErrNoSourceAvailable means no configured source can be used right now
	ErrNoSourceAvailable = errors.New("no update source available")
	// ErrNoVersion means a source is present but does not say which version it offers
	ErrNoVersion = errors.New("source reports no version")
)

// Source is a place new installation content can be fetched from
type Source interface {
	// Name identifies the source in the operation log
	Name() string
	// Available reports whether the source can be used at all
	Available() bool
	// CurrentVersion reports the version the source offers
	CurrentVersion(ctx context.Context) (version.Version, error)
	// Fetch populates targetDir with the complete new installation. Archive
	// payloads are extracted and the archive removed. Partial content is left
	// in place on failure.
	Fetch(ctx context.Context, targetDir string) error
}

// FetchError wraps any failure while populating the target directory
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Selector picks the first available source in priority order
type Selector struct {
	Sources []Source
}

// NewSelector returns a selector trying sources in the given order. Nil
// entries are skipped so optional sources can be passed unconditionally.
func NewSelector(sources ...Source) *Selector {
	s := &Selector{}
	for _, src := range sources {
		if src != nil {
			s.Sources = append(s.Sources, src)
		}
	}
	return s
}

// Select returns the highest-priority available source
func (s *Selector) Select() (Source, error) {
	logger := logging.L("source")
	for _, src := range s.Sources {
		if src.Available() {
			logger.WithField(logging.KeySource, src.Name()).Debug("source selected")
			return src, nil
		}
		logger.WithField(logging.KeySource, src.Name()).Debug("source unavailable")
	}
	return nil, ErrNoSourceAvailable
}
