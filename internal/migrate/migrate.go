// Package migrate sequences an update run: it detects what is installed,
// compares it with what the selected source offers, and when warranted moves
// the device from its current layout onto freshly fetched content while
// keeping user data.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/distantorigin/field-updater/internal/backup"
	"github.com/distantorigin/field-updater/internal/install"
	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/oplog"
	"github.com/distantorigin/field-updater/internal/paths"
	"github.com/distantorigin/field-updater/internal/process"
	"github.com/distantorigin/field-updater/internal/source"
	"github.com/distantorigin/field-updater/internal/version"
)

// ErrBackupIncomplete means user data or the installed executable could not
// be staged, so the destructive step that would follow was not attempted
var ErrBackupIncomplete = errors.New("backup incomplete")

// Result describes how a run ended
type Result struct {
	State        State
	Trace        []State
	Installation install.Installation
	Source       string
	Available    version.Version
	Log          *oplog.Log
}

// Orchestrator runs the update state machine against one installation root
type Orchestrator struct {
	layout      paths.Layout
	selector    *source.Selector
	exitWait    time.Duration
	waitForExit func(exePath string, timeout time.Duration) bool
	logger      *logrus.Entry
}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithExitWait sets how long to wait for a running packaged executable to stop
func WithExitWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.exitWait = d }
}

// WithExitProbe replaces the running-instance probe (useful for testing)
func WithExitProbe(fn func(exePath string, timeout time.Duration) bool) Option {
	return func(o *Orchestrator) { o.waitForExit = fn }
}

// New creates an orchestrator for layout drawing updates from selector
func New(layout paths.Layout, selector *source.Selector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		layout:      layout,
		selector:    selector,
		exitWait:    10 * time.Second,
		waitForExit: process.WaitForTermination,
		logger:      logging.L("migrate"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the state owned by a single invocation
type run struct {
	o      *Orchestrator
	log    *oplog.Log
	result *Result
	src    source.Source
	backup *backup.Manager
	record *backup.Record

	packagedCreated bool
}

func (o *Orchestrator) newRun() *run {
	log := oplog.New(o.logger.WithField(logging.KeyComponent, "oplog"))
	return &run{
		o:      o,
		log:    log,
		result: &Result{State: Init, Trace: []State{Init}, Log: log},
		// The executable is staged under its basename, whatever directory it lives in.
		backup: backup.NewManager(o.layout.BackupPath(), log, filepath.Base(o.layout.Executable)),
	}
}

func (r *run) enter(s State) {
	r.result.State = s
	r.result.Trace = append(r.result.Trace, s)
	r.o.logger.WithField(logging.KeyStep, s.String()).Debug("entering state")
}

func (r *run) halt(err error) error {
	r.enter(Halted)
	r.o.logger.WithError(err).Error("update halted")
	return err
}

// Plan runs the read-only prefix of the state machine and stops at the
// version decision. It never modifies the filesystem.
func (o *Orchestrator) Plan(ctx context.Context) (*Result, error) {
	r := o.newRun()
	if err := r.decide(ctx); err != nil {
		return r.result, r.halt(err)
	}
	return r.result, nil
}

// Run performs a complete update run. The returned Result is never nil; its
// Log holds every step taken, including those before a halting error.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	r := o.newRun()
	if err := r.decide(ctx); err != nil {
		return r.result, r.halt(err)
	}
	if r.result.State != NeedsUpdate {
		return r.result, nil
	}

	// Nothing has been modified yet; honour a cancellation that arrived
	// while the source was being queried.
	if err := ctx.Err(); err != nil {
		return r.result, r.halt(err)
	}

	if err := r.update(ctx); err != nil {
		return r.result, r.halt(err)
	}
	r.enter(Done)
	return r.result, nil
}

func (r *run) decide(ctx context.Context) error {
	r.enter(DetectState)
	r.detect()

	r.enter(SelectSource)
	src, err := r.o.selector.Select()
	if err != nil {
		r.log.Critical("Update source", "none available")
		return err
	}
	r.src = src
	r.result.Source = src.Name()
	r.log.Success("Update source", src.Name())

	r.enter(CompareVersions)
	available, err := src.CurrentVersion(ctx)
	if err != nil {
		r.log.Critical("Available version from "+src.Name(), err.Error())
		return fmt.Errorf("failed to read available version: %w", err)
	}
	r.result.Available = available

	inst := r.result.Installation
	switch {
	case version.IsAheadOfRemote(inst.Installed, available):
		r.log.Fail("Version check", fmt.Sprintf("installed %s is ahead of available %s; nothing changed", inst.Installed, available))
		r.enter(AheadOfRemote)
	case version.Compare(inst.Installed, available) != version.Less && inst.BasicRequirements:
		r.log.Success("Version check", "up to date at "+inst.Installed.String())
		r.enter(UpToDate)
	case version.Compare(inst.Installed, available) == version.Less:
		r.log.Success("Newer version available", inst.Installed.String()+" -> "+available.String())
		r.enter(NeedsUpdate)
	default:
		r.log.Success("Version check", "basic requirements missing; reinstalling "+available.String())
		r.enter(NeedsUpdate)
	}
	return nil
}

func (r *run) detect() {
	inst := install.Detect(r.o.layout)
	r.result.Installation = inst

	if inst.LegacyPresent {
		r.log.Success("Legacy installation directory", "found")
	}
	if inst.PackagedPresent {
		r.log.Success("Packaged installation directory", "found")
	}
	switch {
	case inst.MarkerErr != nil:
		r.fsFailure("Installed version marker", inst.MarkerErr)
	case inst.MarkerName != "":
		r.log.Success("Installed version marker", inst.MarkerName)
	default:
		r.log.Fail("Installed version marker", "not found; assuming "+version.Sentinel.String())
	}
}

// fsFailure logs a filesystem failure: permission problems are critical,
// everything else is recoverable
func (r *run) fsFailure(desc string, err error) {
	if paths.Classify(err) == paths.KindPermission {
		r.log.Critical(desc, paths.Describe(err))
		return
	}
	r.log.Fail(desc, paths.Describe(err))
}
