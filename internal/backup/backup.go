// Package backup stages user data outside the installation before a
// destructive step and relocates it into the new installation afterwards.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/oplog"
	"github.com/distantorigin/field-updater/internal/paths"
)

// ErrNameClash means two targets in one batch share a staging name
var ErrNameClash = errors.New("staging name already in use")

// State is the lifecycle position of one staged path
type State int

const (
	Staged State = iota
	Restored
	Discarded
	Failed
)

func (s State) String() string {
	switch s {
	case Staged:
		return "staged"
	case Restored:
		return "restored"
	case Discarded:
		return "discarded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Target is a path to preserve. Critical targets are ones whose loss would
// leave the device unable to run, such as the installed executable.
type Target struct {
	Path     string
	Critical bool
}

// Entry pairs an original path with its staged copy
type Entry struct {
	Original string
	Staged   string
	Critical bool
	State    State
	Err      error
}

// Record is the set of paths staged by one run
type Record struct {
	Dir     string
	Entries []Entry
}

// Extend appends the entries of other, which must share the staging
// directory. A freshly staged entry replaces an older one at the same path;
// failed entries never displace data that is still staged.
func (r *Record) Extend(other *Record) {
	if other == nil {
		return
	}
	for _, e := range other.Entries {
		replaced := false
		for i := range r.Entries {
			if e.State == Staged && r.Entries[i].Staged == e.Staged {
				r.Entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			r.Entries = append(r.Entries, e)
		}
	}
}

// HardFailures returns entries that failed for a reason other than the path
// being absent. A missing optional path is expected on some devices.
func (r *Record) HardFailures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.State == Failed && paths.Classify(e.Err) != paths.KindNotFound {
			out = append(out, e)
		}
	}
	return out
}

// Pending reports entries still waiting in the staging area
func (r *Record) Pending() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.State == Staged {
			out = append(out, e)
		}
	}
	return out
}

// Manager stages and restores paths through a single staging directory
type Manager struct {
	dir         string
	reservedExe string
	log         *oplog.Log
	logger      *logrus.Entry
}

// NewManager creates a Manager staging into dir. Staged entries named
// reservedExe (a basename) are never restored.
func NewManager(dir string, log *oplog.Log, reservedExe string) *Manager {
	return &Manager{
		dir:         dir,
		reservedExe: reservedExe,
		log:         log,
		logger:      logging.L("backup"),
	}
}

// Adopt returns a record holding whatever an interrupted earlier run left in
// the staging area, so that data is restored instead of cleaned away.
func (m *Manager) Adopt() *Record {
	rec := &Record{Dir: m.dir}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return rec
	}
	for _, entry := range entries {
		rec.Entries = append(rec.Entries, Entry{
			Staged: filepath.Join(m.dir, entry.Name()),
			State:  Staged,
		})
		m.log.Success("Recovery of staged "+entry.Name(), "left by an earlier run")
	}
	return rec
}

// Backup copies each target into the staging area keyed by basename.
// Individual failures are logged and never abort the batch.
func (m *Manager) Backup(targets ...Target) *Record {
	rec := &Record{Dir: m.dir}
	claimed := make(map[string]string)
	for _, t := range targets {
		name := filepath.Base(t.Path)
		desc := "Backup of " + name
		entry := Entry{
			Original: t.Path,
			Staged:   filepath.Join(m.dir, name),
			Critical: t.Critical,
		}

		err := m.claim(claimed, strings.ToLower(name), t.Path)
		if err != nil {
			// The name belongs to an earlier target in this batch.
			entry.Staged = ""
		} else {
			err = m.stage(entry.Original, entry.Staged)
		}
		if err != nil {
			entry.State = Failed
			entry.Err = err
			if t.Critical || paths.Classify(err) == paths.KindPermission {
				m.log.Critical(desc, paths.Describe(err))
			} else {
				m.log.Fail(desc, paths.Describe(err))
			}
		} else {
			entry.State = Staged
			m.log.Success(desc)
		}
		rec.Entries = append(rec.Entries, entry)
	}
	return rec
}

// claim reserves a staging name for one batch. A second target with the same
// basename would overwrite the first copy.
func (m *Manager) claim(claimed map[string]string, key, src string) error {
	if prev, ok := claimed[key]; ok {
		return fmt.Errorf("%w: %s already staged from %s", ErrNameClash, filepath.Base(src), prev)
	}
	claimed[key] = src
	return nil
}

func (m *Manager) stage(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	// A leftover from an interrupted run must not merge with this copy.
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	m.logger.WithField(logging.KeyPath, src).Debug("staging")
	if info.IsDir() {
		return paths.CopyTree(src, dst)
	}
	return paths.CopyFile(src, dst)
}

// Restore moves every staged entry into dest, replacing what is already
// there. Entries named after the reserved executable are discarded so a stale
// binary never lands next to a freshly fetched one.
func (m *Manager) Restore(rec *Record, dest string) {
	if rec == nil {
		return
	}
	for i := range rec.Entries {
		e := &rec.Entries[i]
		if e.State != Staged {
			continue
		}
		name := filepath.Base(e.Staged)

		if m.reservedExe != "" && strings.EqualFold(name, m.reservedExe) {
			e.State = Discarded
			m.log.Success("Discard of backed-up "+name, "superseded by fetched executable")
			continue
		}

		desc := "Restore of " + name
		if err := paths.Move(e.Staged, filepath.Join(dest, name)); err != nil {
			e.Err = err
			m.log.Fail(desc, paths.Describe(err), "kept in "+m.dir)
			continue
		}
		e.State = Restored
		m.log.Success(desc)
	}
}

// Cleanup removes the staging area once nothing in it is still pending.
// It is a no-op when the staging area is already gone.
func (m *Manager) Cleanup(rec *Record) error {
	if _, err := os.Stat(m.dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if rec != nil {
		if pending := rec.Pending(); len(pending) > 0 {
			names := make([]string, 0, len(pending))
			for _, e := range pending {
				names = append(names, filepath.Base(e.Staged))
			}
			m.log.Fail("Cleanup of backup staging", "kept for "+strings.Join(names, ", "))
			return nil
		}
	}
	if err := os.RemoveAll(m.dir); err != nil {
		m.log.Fail("Cleanup of backup staging", paths.Describe(err))
		return fmt.Errorf("failed to remove staging directory: %w", err)
	}
	m.log.Success("Cleanup of backup staging")
	return nil
}
