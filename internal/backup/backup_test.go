package backup

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/distantorigin/field-updater/internal/oplog"
	"github.com/distantorigin/field-updater/internal/paths"
)

func quietLog() *oplog.Log {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return oplog.New(logrus.NewEntry(l))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func lastOutcome(t *testing.T, log *oplog.Log) oplog.Outcome {
	t.Helper()
	entries := log.Entries()
	if len(entries) == 0 {
		t.Fatal("no log entries")
	}
	return entries[len(entries)-1].Outcome
}

func TestBackupStagesByBasename(t *testing.T) {
	root := t.TempDir()
	legacy := filepath.Join(root, "easycut-smartbench", "src")
	writeFile(t, filepath.Join(legacy, "jobCache", "part.nc"), "G0 X0")
	writeFile(t, filepath.Join(legacy, "sb_values", "z_head.txt"), "42")

	log := quietLog()
	m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
	rec := m.Backup(
		Target{Path: filepath.Join(legacy, "jobCache")},
		Target{Path: filepath.Join(legacy, "sb_values")},
	)

	if len(rec.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(rec.Entries))
	}
	for _, rel := range []string{"jobCache/part.nc", "sb_values/z_head.txt"} {
		if !paths.Exists(filepath.Join(root, "backup", paths.Denormalize(rel))) {
			t.Errorf("staging area missing %s", rel)
		}
	}
	if !paths.Exists(filepath.Join(legacy, "jobCache", "part.nc")) {
		t.Error("Backup() must not remove the original")
	}
	if s := log.Summary(); s.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", s.SuccessCount)
	}
}

func TestBackupFailureOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		target   func(root string) Target
		want     oplog.Outcome
		hardFail bool
	}{
		{
			name: "missing optional path",
			target: func(root string) Target {
				return Target{Path: filepath.Join(root, "absent")}
			},
			want: oplog.Failure,
		},
		{
			name: "missing critical path",
			target: func(root string) Target {
				return Target{Path: filepath.Join(root, "main.exe"), Critical: true}
			},
			want: oplog.CriticalFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			log := quietLog()
			m := NewManager(filepath.Join(root, "backup"), log, "main.exe")

			rec := m.Backup(tt.target(root))
			if rec.Entries[0].State != Failed {
				t.Errorf("State = %s, want failed", rec.Entries[0].State)
			}
			if got := lastOutcome(t, log); got != tt.want {
				t.Errorf("outcome = %s, want %s", got, tt.want)
			}
			if got := len(rec.HardFailures()); got != 0 {
				t.Errorf("HardFailures() = %d, want 0 for a not-found path", got)
			}
		})
	}
}

func TestBackupContinuesAfterFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep", "a"), "a")

	log := quietLog()
	m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
	rec := m.Backup(
		Target{Path: filepath.Join(root, "gone")},
		Target{Path: filepath.Join(root, "keep")},
	)

	if rec.Entries[1].State != Staged {
		t.Errorf("second entry State = %s, want staged", rec.Entries[1].State)
	}
	if len(log.Entries()) != 2 {
		t.Errorf("len(log) = %d, want 2", len(log.Entries()))
	}
}

func TestBackupPermissionIsCritical(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "inner", "f"), "x")
	if err := os.Chmod(filepath.Join(locked, "inner"), 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(locked, "inner"), 0755) })

	log := quietLog()
	m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
	rec := m.Backup(Target{Path: locked})

	if got := lastOutcome(t, log); got != oplog.CriticalFailure {
		t.Errorf("outcome = %s, want CRITICAL", got)
	}
	if len(rec.HardFailures()) != 1 {
		t.Errorf("HardFailures() = %d, want 1", len(rec.HardFailures()))
	}
}

func TestRestoreRelocatesAndReplaces(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "legacy", "jobCache", "new.nc"), "preserved")

	log := quietLog()
	m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
	rec := m.Backup(Target{Path: filepath.Join(root, "legacy", "jobCache")})

	dest := filepath.Join(root, "easycut")
	writeFile(t, filepath.Join(dest, "jobCache", "shipped.nc"), "from release")

	m.Restore(rec, dest)

	if rec.Entries[0].State != Restored {
		t.Fatalf("State = %s, want restored", rec.Entries[0].State)
	}
	data, err := os.ReadFile(filepath.Join(dest, "jobCache", "new.nc"))
	if err != nil || string(data) != "preserved" {
		t.Errorf("restored file = %q, %v", data, err)
	}
	if paths.Exists(filepath.Join(dest, "jobCache", "shipped.nc")) {
		t.Error("Restore() must replace the existing destination entry")
	}
	if paths.Exists(rec.Entries[0].Staged) {
		t.Error("Restore() left the staged copy behind")
	}
}

func TestRestoreNeverPlacesReservedExecutable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old", "Main.EXE"), "stale binary")

	log := quietLog()
	m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
	rec := m.Backup(Target{Path: filepath.Join(root, "old", "Main.EXE"), Critical: true})

	dest := filepath.Join(root, "easycut")
	writeFile(t, filepath.Join(dest, "main.exe"), "fresh binary")

	m.Restore(rec, dest)

	if rec.Entries[0].State != Discarded {
		t.Errorf("State = %s, want discarded", rec.Entries[0].State)
	}
	data, _ := os.ReadFile(filepath.Join(dest, "main.exe"))
	if string(data) != "fresh binary" {
		t.Errorf("main.exe = %q, want fresh binary", data)
	}
	if paths.Exists(filepath.Join(dest, "Main.EXE")) {
		t.Error("stale executable restored next to the fetched one")
	}
}

func TestCleanup(t *testing.T) {
	t.Run("removes staging when everything is relocated", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "legacy", "sb_values", "v"), "1")

		log := quietLog()
		m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
		rec := m.Backup(
			Target{Path: filepath.Join(root, "legacy", "sb_values")},
			Target{Path: filepath.Join(root, "legacy", "jobCache")},
		)
		m.Restore(rec, filepath.Join(root, "easycut"))

		if err := m.Cleanup(rec); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if paths.Exists(m.dir) {
			t.Error("Cleanup() left the staging area")
		}
	})

	t.Run("keeps staging while entries are pending", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "legacy", "jobCache", "a"), "a")

		log := quietLog()
		m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
		rec := m.Backup(Target{Path: filepath.Join(root, "legacy", "jobCache")})

		if err := m.Cleanup(rec); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if !paths.Exists(filepath.Join(m.dir, "jobCache", "a")) {
			t.Error("Cleanup() removed unrestored data")
		}
		if got := lastOutcome(t, log); got != oplog.Failure {
			t.Errorf("outcome = %s, want FAILED", got)
		}
	})

	t.Run("idempotent when staging is absent", func(t *testing.T) {
		root := t.TempDir()
		log := quietLog()
		m := NewManager(filepath.Join(root, "backup"), log, "main.exe")

		for i := 0; i < 2; i++ {
			if err := m.Cleanup(&Record{Dir: m.dir}); err != nil {
				t.Fatalf("Cleanup() call %d error = %v", i, err)
			}
		}
		if len(log.Entries()) != 0 {
			t.Errorf("Cleanup() of absent staging logged %d entries", len(log.Entries()))
		}
	})
}

func TestBackupRejectsNameClash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "data", "jobs.nc"), "jobs")
	writeFile(t, filepath.Join(root, "cfg", "Data", "settings"), "settings")

	log := quietLog()
	m := NewManager(filepath.Join(root, "backup"), log, "main.exe")
	rec := m.Backup(
		Target{Path: filepath.Join(root, "src", "data")},
		Target{Path: filepath.Join(root, "cfg", "Data")},
	)

	if rec.Entries[0].State != Staged {
		t.Fatalf("first entry state = %s, want staged", rec.Entries[0].State)
	}
	second := rec.Entries[1]
	if second.State != Failed || !errors.Is(second.Err, ErrNameClash) {
		t.Errorf("second entry = %s (%v), want failed with ErrNameClash", second.State, second.Err)
	}
	if len(rec.HardFailures()) != 1 {
		t.Errorf("HardFailures() = %d, want 1", len(rec.HardFailures()))
	}
	if lastOutcome(t, log) != oplog.Failure {
		t.Errorf("clash outcome = %s, want FAILED", lastOutcome(t, log))
	}
	if !paths.Exists(filepath.Join(root, "backup", "data", "jobs.nc")) {
		t.Error("first copy was overwritten")
	}
	if paths.Exists(filepath.Join(root, "backup", "data", "settings")) {
		t.Error("second target merged into the first copy")
	}
}

func TestRecordExtend(t *testing.T) {
	a := &Record{Dir: "b", Entries: []Entry{{Original: "x", Staged: "b/x", State: Staged}}}
	a.Extend(&Record{Dir: "b", Entries: []Entry{{Original: "y", Staged: "b/y", State: Failed, Err: os.ErrPermission}}})
	a.Extend(&Record{Dir: "b", Entries: []Entry{{Original: "x2", Staged: "b/x", State: Staged}}})
	a.Extend(nil)

	if len(a.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(a.Entries))
	}
	if a.Entries[0].Original != "x2" {
		t.Errorf("restaged entry not replaced: %+v", a.Entries[0])
	}
	if len(a.HardFailures()) != 1 || len(a.Pending()) != 1 {
		t.Errorf("HardFailures() = %d, Pending() = %d", len(a.HardFailures()), len(a.Pending()))
	}

	// A failed attempt must not hide data still waiting at the same path.
	a.Extend(&Record{Dir: "b", Entries: []Entry{{Original: "x3", Staged: "b/x", State: Failed, Err: os.ErrNotExist}}})
	if a.Entries[0].State != Staged || len(a.Pending()) != 1 {
		t.Errorf("failed entry displaced staged data: %+v", a.Entries)
	}
}

func TestAdoptRecoversLeftovers(t *testing.T) {
	root := t.TempDir()
	staging := filepath.Join(root, "backup")
	writeFile(t, filepath.Join(staging, "jobCache", "old.nc"), "from an interrupted run")

	log := quietLog()
	m := NewManager(staging, log, "main.exe")
	rec := m.Adopt()
	if len(rec.Pending()) != 1 {
		t.Fatalf("Pending() = %d, want 1", len(rec.Pending()))
	}

	dest := filepath.Join(root, "easycut")
	m.Restore(rec, dest)
	if err := m.Cleanup(rec); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if !paths.Exists(filepath.Join(dest, "jobCache", "old.nc")) {
		t.Error("adopted data was not restored")
	}
	if paths.Exists(staging) {
		t.Error("staging area not cleaned after restore")
	}
}

func TestAdoptWithoutStaging(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "backup"), quietLog(), "main.exe")
	if rec := m.Adopt(); len(rec.Entries) != 0 {
		t.Errorf("Adopt() = %d entries, want 0", len(rec.Entries))
	}
}
