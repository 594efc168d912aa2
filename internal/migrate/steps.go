package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/distantorigin/field-updater/internal/backup"
	"github.com/distantorigin/field-updater/internal/install"
	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/paths"
)

// step is one state of the update path. An optional step whose condition
// does not hold is skipped without a log entry.
type step struct {
	state State
	when  func() bool
	run   func(ctx context.Context) error
}

func (r *run) update(ctx context.Context) error {
	inst := r.result.Installation
	layout := r.o.layout

	// Data a previous interrupted run staged is restored along with this run's.
	r.record = r.backup.Adopt()

	always := func() bool { return true }
	legacy := func() bool { return inst.LegacyPresent }

	steps := []step{
		{BackupLegacy, legacy, r.backupLegacy},
		{RemoveLegacy, legacy, r.removeLegacy},
		{PreparePackagedDir, always, r.preparePackagedDir},
		{FetchContent, always, r.fetchContent},
		{RestoreLauncherScript, func() bool {
			return inst.LegacyPresent || r.packagedCreated || !inst.LauncherPresent
		}, r.restoreLauncher},
		{RetrieveVersionMarker, always, r.retrieveMarker},
		{RemoveOldVersionMarker, always, r.removeOldMarkers},
		{RestorePreservedFiles, always, r.restorePreserved},
		{Cleanup, always, r.cleanup},
	}

	for _, s := range steps {
		if !s.when() {
			continue
		}
		r.enter(s.state)
		if err := s.run(ctx); err != nil {
			return err
		}
	}

	r.o.logger.WithField(logging.KeyVersion, r.result.Available.String()).
		WithField(logging.KeyPath, layout.PackagedPath()).
		Info("update complete")
	return nil
}

func (r *run) backupLegacy(context.Context) error {
	var targets []backup.Target
	for _, p := range r.o.layout.PreservePaths() {
		targets = append(targets, backup.Target{Path: p})
	}
	rec := r.backup.Backup(targets...)
	r.record.Extend(rec)

	if failed := rec.HardFailures(); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, e := range failed {
			names = append(names, filepath.Base(e.Original))
		}
		r.log.Critical("Removal of legacy installation", "skipped; backup failed for "+strings.Join(names, ", "))
		return fmt.Errorf("%w: %s", ErrBackupIncomplete, strings.Join(names, ", "))
	}
	return nil
}

func (r *run) removeLegacy(context.Context) error {
	desc := "Removal of " + r.o.layout.LegacyDir
	if err := os.RemoveAll(r.o.layout.LegacyPath()); err != nil {
		// A leftover legacy tree does not stop the packaged installation from working.
		r.fsFailure(desc, err)
		return nil
	}
	r.log.Success(desc)
	return nil
}

func (r *run) preparePackagedDir(context.Context) error {
	layout := r.o.layout
	packaged := layout.PackagedPath()

	if !paths.IsDir(packaged) {
		if err := os.MkdirAll(packaged, 0755); err != nil {
			r.fsFailure("Creation of "+layout.PackagedDir, err)
			return fmt.Errorf("failed to create packaged directory: %w", err)
		}
		r.packagedCreated = true
		r.log.Success("Creation of " + layout.PackagedDir)
		return nil
	}

	exe, err := paths.FindActual(layout.ExecutablePath())
	if err != nil {
		// Nothing to replace.
		return nil
	}

	if !r.o.waitForExit(exe, r.o.exitWait) {
		r.log.Fail("Running instance of "+layout.Executable, "still running; replacing anyway")
	}

	rec := r.backup.Backup(backup.Target{Path: exe, Critical: true})
	r.record.Extend(rec)
	if rec.Entries[0].State != backup.Staged {
		return fmt.Errorf("%w: %s", ErrBackupIncomplete, filepath.Base(exe))
	}

	desc := "Removal of " + filepath.Base(exe)
	if err := os.Remove(exe); err != nil {
		r.fsFailure(desc, err)
		return nil
	}
	r.log.Success(desc)
	return nil
}

func (r *run) fetchContent(ctx context.Context) error {
	desc := "Fetch from " + r.src.Name()
	if err := r.src.Fetch(ctx, r.o.layout.PackagedPath()); err != nil {
		r.log.Critical(desc, err.Error())
		return err
	}
	r.log.Success(desc, r.result.Available.String())

	if !install.IsInstalled(r.o.layout) {
		r.log.Fail("Packaged executable "+r.o.layout.Executable, "not found after fetch")
	}
	return nil
}

func (r *run) restoreLauncher(context.Context) error {
	desc := "Replacement of " + r.o.layout.LauncherScript
	fromAssets, err := install.InstallLauncher(r.o.layout)
	if err != nil {
		r.fsFailure(desc, err)
		return nil
	}
	if fromAssets {
		r.log.Success(desc)
	} else {
		r.log.Success(desc, "default launcher written")
	}
	return nil
}

func (r *run) retrieveMarker(context.Context) error {
	name, err := install.InstallMarker(r.o.layout, r.result.Available)
	if err != nil {
		r.fsFailure("Version marker", err)
		return nil
	}
	r.log.Success("Version marker", name)
	return nil
}

func (r *run) removeOldMarkers(context.Context) error {
	stale, err := install.StaleMarkers(r.o.layout, r.result.Available)
	if err != nil {
		r.fsFailure("Scan for old version markers", err)
		return nil
	}
	for _, m := range stale {
		desc := "Removal of old version marker " + m.Name
		if err := os.Remove(filepath.Join(r.o.layout.PackagedPath(), m.Name)); err != nil {
			r.fsFailure(desc, err)
			continue
		}
		r.log.Success(desc)
	}
	return nil
}

func (r *run) restorePreserved(context.Context) error {
	r.backup.Restore(r.record, r.o.layout.PackagedPath())
	return nil
}

func (r *run) cleanup(context.Context) error {
	// Cleanup failures are logged by the manager; the installation itself is complete.
	_ = r.backup.Cleanup(r.record)
	return nil
}
