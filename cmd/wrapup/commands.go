// Package wrapup is the wrapup command line
package wrapup

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/wrapup/internal/version"
	"github.com/arthur-debert/wrapup/pkg/cobrax/topics"
	"github.com/arthur-debert/wrapup/pkg/core"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/paths"
	"github.com/arthur-debert/wrapup/pkg/style"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/ui"
	"github.com/arthur-debert/wrapup/pkg/ui/confirmations"
)

//go:embed topics
var topicsFS embed.FS

// Options replaces parts of the host the commands run against. Zero
// values select the real host.
type Options struct {
	Paths     paths.Paths
	Overrides map[string]interface{}
	Runner    execx.Runner
	// In is read for confirmations; defaults to os.Stdin
	In io.Reader
}

// reported marks an error that was already shown to the user
type reported struct{ error }

func (r reported) Unwrap() error { return r.error }

// flags holds the global flag values of one command tree
type flags struct {
	opts       Options
	verbosity  int
	configFile string
	dryRun     bool
}

// NewRootCmd creates the command tree for the real host
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithOptions(Options{})
}

// NewRootCmdWithOptions creates the command tree
func NewRootCmdWithOptions(opts Options) *cobra.Command {
	initTemplateFormatting()
	f := &flags{opts: opts}

	rootCmd := &cobra.Command{
		Use:               "wrapup",
		Short:             MsgRootShort,
		Long:              MsgRootLong,
		Version:           version.Version,
		Args:              cobra.NoArgs,
		RunE:              f.runUp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&f.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, MsgFlagDryRun)
	rootCmd.PersistentFlags().StringVar(&f.configFile, "config", "", MsgFlagConfig)

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "COMMANDS:"})
	rootCmd.AddGroup(&cobra.Group{ID: "misc", Title: "MISC:"})
	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	rootCmd.AddCommand(f.newUpCmd())
	rootCmd.AddCommand(f.newStatusCmd())
	rootCmd.AddCommand(f.newUninstallCmd(false))
	rootCmd.AddCommand(f.newUninstallCmd(true))
	rootCmd.AddCommand(f.newSnapshotsCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	var renderer topics.Renderer = topics.PlainRenderer{}
	if ui.IsTerminal(os.Stdout) {
		renderer = topics.NewGlamourRenderer()
	}
	helpTopics, err := topics.Load(topicsFS, "topics", topics.Options{Renderer: renderer})
	if err != nil {
		log.Warn().Err(err).Msg("Help topics unavailable")
	} else {
		helpTopics.Install(rootCmd)
	}

	return rootCmd
}

// Execute runs the command tree and returns the process exit code
func Execute(rootCmd *cobra.Command) int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var done reported
	if !stderrors.As(err, &done) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), style.RenderError(err))
	}
	return 1
}

// session is one opened application with its log and renderer
type session struct {
	app    *core.App
	log    *logging.RunLog
	out    io.Writer
	render ui.Renderer
}

func (s *session) Close() {
	if err := s.log.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close log file")
	}
}

// fail writes err to stderr and, through the mirror, into the run log, then
// marks it as reported so Execute does not print it again
func fail(cmd *cobra.Command, run *logging.RunLog, err error) error {
	log.Debug().Err(err).Str("command", cmd.Name()).Msg("Command failed")
	fmt.Fprintln(run.Mirror(cmd.ErrOrStderr()), style.RenderError(err))
	return reported{err}
}

// withSession opens a session, runs fn and closes the session. Errors fn
// has not rendered itself reach the run log before it is closed.
func (f *flags) withSession(cmd *cobra.Command, format ui.Format, fn func(*session) error) error {
	s, err := f.open(cmd, format)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s); err != nil {
		var done reported
		if stderrors.As(err, &done) {
			return err
		}
		return fail(cmd, s.log, err)
	}
	return nil
}

// open sets up logging and wires the application. Output written through
// the session is mirrored into the run log. Failures after the log file
// exists are recorded in it.
func (f *flags) open(cmd *cobra.Command, format ui.Format) (*session, error) {
	p := f.opts.Paths
	if p == nil {
		var err error
		if p, err = paths.New(); err != nil {
			return nil, err
		}
	}

	run := logging.SetupLogger(f.verbosity, p.LogDir())
	log.Debug().Str("command", cmd.Name()).Str("version", version.String()).Msg("Command started")

	format = ui.ResolveFormat(format, cmd.OutOrStdout())
	out := run.Mirror(cmd.OutOrStdout())
	render, err := ui.NewRenderer(format, out)
	if err != nil {
		err = fail(cmd, run, err)
		_ = run.Close()
		return nil, err
	}

	app, err := core.Open(core.Options{
		ConfigFile: f.configFile,
		Overrides:  f.opts.Overrides,
		Paths:      p,
		Runner:     f.opts.Runner,
		Stream:     out,
		LogPath:    run.Path,
	})
	if err != nil {
		err = fail(cmd, run, err)
		_ = run.Close()
		return nil, err
	}
	return &session{app: app, log: run, out: out, render: render}, nil
}

func (f *flags) input() io.Reader {
	if f.opts.In != nil {
		return f.opts.In
	}
	return os.Stdin
}

// signalContext is cancelled on SIGINT or SIGTERM so cleanup runs before
// the process exits
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func (f *flags) newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "up",
		Short:   MsgUpShort,
		Long:    MsgUpLong,
		Example: MsgUpExample,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    f.runUp,
	}
}

func (f *flags) runUp(cmd *cobra.Command, _ []string) error {
	return f.withSession(cmd, ui.FormatAuto, func(s *session) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		report, err := s.app.Up(ctx, core.UpOptions{
			DryRun: f.dryRun,
			OnStage: func(sr types.StageReport) {
				_ = s.render.RenderStage(sr)
			},
		})
		if len(report.Stages) > 0 {
			if rerr := s.render.RenderSummary(report); rerr != nil {
				log.Warn().Err(rerr).Msg("Failed to render summary")
			}
		}
		if err != nil {
			if report.FailedStage == "" {
				_ = s.render.RenderError(err)
			}
			return reported{err}
		}
		return nil
	})
}

func (f *flags) newStatusCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "status",
		Short:   MsgStatusShort,
		Long:    MsgStatusLong,
		Example: MsgStatusExample,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmtValue, err := ui.ParseFormat(format)
			if err != nil {
				return err
			}
			return f.withSession(cmd, fmtValue, func(s *session) error {
				ctx, stop := signalContext(cmd)
				defer stop()

				report, err := s.app.Status(ctx)
				if err != nil {
					_ = s.render.RenderError(err)
					return reported{err}
				}
				return s.render.RenderResult(report)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "auto", MsgFlagFormat)
	return cmd
}

func (f *flags) newUninstallCmd(purge bool) *cobra.Command {
	use, short, long := "uninstall", MsgUninstallShort, MsgUninstallLong
	if purge {
		use, short, long = "purge", MsgPurgeShort, MsgPurgeLong
	}
	return &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.withSession(cmd, ui.FormatAuto, func(s *session) error {
				if f.dryRun {
					return s.render.RenderMessage(s.app.UninstallQuestion(purge))
				}

				ctx, stop := signalContext(cmd)
				defer stop()

				dialog := confirmations.NewConsoleDialog(f.input(), s.out)
				res, err := s.app.Uninstall(ctx, purge, dialog)
				if err != nil {
					_ = s.render.RenderError(err)
					return reported{err}
				}
				if !res.Confirmed {
					return s.render.RenderMessage(MsgDeclined)
				}
				return s.render.RenderResult(res)
			})
		},
	}
}

func (f *flags) newSnapshotsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "snapshots",
		Short:   MsgSnapshotsShort,
		Long:    MsgSnapshotsLong,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmtValue, err := ui.ParseFormat(format)
			if err != nil {
				return err
			}
			return f.withSession(cmd, fmtValue, func(s *session) error {
				snaps, err := s.app.Snapshots()
				if err != nil {
					return err
				}
				return s.render.RenderResult(snaps)
			})
		},
	}
	cmd.PersistentFlags().StringVarP(&format, "format", "f", "auto", MsgFlagFormat)

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: MsgPruneShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmtValue, err := ui.ParseFormat(format)
			if err != nil {
				return err
			}
			return f.withSession(cmd, fmtValue, func(s *session) error {
				removed, err := s.app.PruneSnapshots()
				if err != nil {
					return err
				}
				if fmtValue == ui.FormatJSON || fmtValue == ui.FormatYAML {
					return s.render.RenderResult(removed)
				}
				return s.render.RenderMessage(fmt.Sprintf(MsgPruned, len(removed)))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: MsgRestoreShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.withSession(cmd, ui.FormatAuto, func(s *session) error {
				snap, err := s.app.RestoreConfigStore()
				if err != nil {
					return err
				}
				return s.render.RenderMessage(fmt.Sprintf(MsgRestored, snap.Source, snap.Path))
			})
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		Long:                  MsgCompletionLong,
		GroupID:               "misc",
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return GenCompletion(cmd.Root(), args[0], cmd.OutOrStdout())
		},
	}
}

// GenCompletion writes the completion script for shell
func GenCompletion(rootCmd *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(w, true)
	case "zsh":
		return rootCmd.GenZshCompletion(w)
	case "fish":
		return rootCmd.GenFishCompletion(w, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unknown shell %q, supported: bash, zsh, fish, powershell", shell)
	}
}
