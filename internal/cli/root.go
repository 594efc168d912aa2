// Package cli wires configuration, sources and the update state machine into
// the field-updater command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/distantorigin/field-updater/internal/chime"
	"github.com/distantorigin/field-updater/internal/config"
	"github.com/distantorigin/field-updater/internal/console"
	"github.com/distantorigin/field-updater/internal/download"
	"github.com/distantorigin/field-updater/internal/github"
	"github.com/distantorigin/field-updater/internal/logging"
	"github.com/distantorigin/field-updater/internal/media"
	"github.com/distantorigin/field-updater/internal/migrate"
	"github.com/distantorigin/field-updater/internal/source"
)

// Version is the updater's own version, set with -ldflags "-X"
var Version = "dev"

// errCritical makes a run that completed with critical log entries exit non-zero
var errCritical = errors.New("update finished with critical failures")

type options struct {
	configFile     string
	logLevel       string
	quiet          bool
	nonInteractive bool
}

// NewRootCmd returns the root command. Without a subcommand it performs an update run.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "field-updater",
		Short:         "Migrate and update the controller application on a field device",
		Long: `Migrate and update the controller application on a field device.

Updates come from removable media carrying a version marker at its root, or
from a GitHub release registry. The registry is disabled until registry.owner
and registry.repo are configured; see updater.example.yaml. Without media or a
configured registry a run stops with "no update source available".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, opts, false)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: updater.yaml in $HOME or /etc/field-updater)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output and audio cues")
	flags.BoolVar(&opts.nonInteractive, "non-interactive", false, "never wait for a key press")

	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether an update is needed without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, opts, true)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the updater version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "field-updater %s\n", Version)
			return err
		},
	}
}

// Execute runs the CLI with the process stdio and returns the exit code
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func execute(cmd *cobra.Command, opts *options, planOnly bool) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if err := logging.Init(cfg.Log.Format, level, cmd.ErrOrStderr()); err != nil {
		return err
	}
	console.Init(opts.quiet)
	console.SetIO(cmd.OutOrStdout(), cmd.InOrStdin())
	chime.Init(opts.quiet || planOnly || !cfg.Chime)

	layout, err := cfg.DeviceLayout()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout())
		defer cancel()
	}

	orch := migrate.New(layout, buildSelector(cfg), migrate.WithExitWait(cfg.ExitWait()))
	run := orch.Run
	if planOnly {
		run = orch.Plan
	}
	res, runErr := run(ctx)

	if err := console.PrintSummary(res.Log.Summary()); err != nil {
		logging.L("cli").WithError(err).Warn("failed to print summary")
	}
	console.Log("Result: %s", describe(res))

	failed := runErr != nil || res.Log.HasCritical()
	chime.Play(!failed)

	if !planOnly && cfg.Interactive && !opts.nonInteractive && console.IsInteractive() {
		console.WaitForKey("Press Enter to exit...", false)
	}

	if runErr != nil {
		return runErr
	}
	if res.Log.HasCritical() {
		return errCritical
	}
	return nil
}

// buildSelector orders the configured sources: removable media first, then
// the remote registry
func buildSelector(cfg *config.Config) *source.Selector {
	var sources []source.Source

	if !cfg.Media.Disabled {
		mount := cfg.Media.Path
		if mount == "" {
			mount = media.Discover(cfg.Media.Roots)
		}
		if mount != "" {
			sources = append(sources, source.NewLocalMedia(mount))
		}
	}

	if cfg.RegistryEnabled() {
		client := github.NewClient(cfg.Registry.Owner, cfg.Registry.Repo, github.NewHTTPClient(cfg.Registry.Retries))
		client.SetBaseURL(cfg.Registry.BaseURL)
		client.SetToken(cfg.Registry.Token)

		remote := source.NewRemoteRegistry(client, cfg.Registry.Tag)
		remote.SetProgress(progressLogger())
		sources = append(sources, remote)
	}

	return source.NewSelector(sources...)
}

// progressLogger reports download progress in 25% steps
func progressLogger() download.ProgressCallback {
	last := -1
	return func(complete, total int64, percentage int) {
		step := percentage / 25
		if step == last {
			return
		}
		last = step
		if total > 0 {
			console.Log("Downloading... %d%% (%d of %d bytes)", percentage, complete, total)
		}
	}
}

func describe(res *migrate.Result) string {
	switch res.State {
	case migrate.UpToDate:
		return "already up to date at " + res.Installation.Installed.String()
	case migrate.AheadOfRemote:
		return fmt.Sprintf("installed %s is newer than available %s; nothing changed", res.Installation.Installed, res.Available)
	case migrate.NeedsUpdate:
		return fmt.Sprintf("update available: %s -> %s", res.Installation.Installed, res.Available)
	case migrate.Done:
		return "updated to " + res.Available.String()
	default:
		return "halted"
	}
}
