package core

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/lifecycle"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/paths"
	"github.com/arthur-debert/wrapup/pkg/snapshot"
	"github.com/arthur-debert/wrapup/pkg/stages"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/wrapper"
)

// Options configures Open. Zero values select the production setup.
type Options struct {
	// ConfigFile replaces the default user config file
	ConfigFile string
	// Overrides is applied on top of every other config layer
	Overrides map[string]interface{}
	Paths     paths.Paths
	Runner    execx.Runner
	// Stream receives the output of external tools
	Stream io.Writer
	// LogPath is reported when a run fails
	LogPath string
}

// App is one wired invocation
type App struct {
	Config *config.Config
	Paths  paths.Paths
	Env    *stages.Env

	logPath string
	logger  zerolog.Logger
}

// Open loads the configuration and wires the stage environment
func Open(opts Options) (*App, error) {
	logger := logging.GetLogger("core")

	p := opts.Paths
	if p == nil {
		var err error
		if p, err = paths.New(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadConfiguration(p, config.Options{File: opts.ConfigFile, Overrides: opts.Overrides})
	if err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = execx.NewOSRunner()
	}

	env, err := stages.NewEnv(cfg, p, runner, stages.EnvOptions{Stream: opts.Stream})
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("cache", p.CacheDir()).
		Str("state", p.StateDir()).
		Str("wrapper", cfg.Wrapper.Path).
		Msg("Application wired")

	return &App{Config: cfg, Paths: p, Env: env, logPath: opts.LogPath, logger: logger}, nil
}

// UpOptions adjusts a provisioning run
type UpOptions struct {
	DryRun bool
	// OnStage is called as each stage finishes
	OnStage func(types.StageReport)
}

// Up runs the provisioning chain. The report is complete even when an
// error is returned.
func (a *App) Up(ctx context.Context, opts UpOptions) (types.RunReport, error) {
	o, err := stages.NewDefault()
	if err != nil {
		return types.RunReport{}, err
	}
	return o.Run(ctx, a.Env, stages.Options{
		DryRun:  opts.DryRun,
		LogPath: a.logPath,
		OnStage: opts.OnStage,
	})
}

// Status evaluates every stage predicate without running anything
func (a *App) Status(ctx context.Context) (types.RunReport, error) {
	return a.Up(ctx, UpOptions{DryRun: true})
}

// Uninstall removes the wrapper, and the base packages with purge, after
// confirm accepts
func (a *App) Uninstall(ctx context.Context, purge bool, confirm lifecycle.Confirmer) (lifecycle.Result, error) {
	return lifecycle.New(a.Env, confirm).Uninstall(ctx, purge)
}

// UninstallQuestion describes what Uninstall would remove
func (a *App) UninstallQuestion(purge bool) string {
	return lifecycle.New(a.Env, nil).Question(purge)
}

// Snapshots lists every safety snapshot, oldest first
func (a *App) Snapshots() ([]snapshot.Snapshot, error) {
	snaps, err := a.Env.Snapshots.List("")
	if err != nil {
		return nil, err
	}
	if snaps == nil {
		snaps = []snapshot.Snapshot{}
	}
	return snaps, nil
}

// PruneSnapshots applies the retention limit to every label and returns
// what was removed
func (a *App) PruneSnapshots() ([]snapshot.Snapshot, error) {
	removed, err := a.Env.Snapshots.Prune("")
	if err != nil {
		return nil, err
	}
	if removed == nil {
		removed = []snapshot.Snapshot{}
	}
	a.logger.Info().Int("removed", len(removed)).Msg("Snapshots pruned")
	return removed, nil
}

// RestoreConfigStore puts the newest snapshot of the wrapper config store
// back in place. The next run re-converges whatever it no longer matches.
func (a *App) RestoreConfigStore() (*snapshot.Snapshot, error) {
	return a.Env.Snapshots.Restore(wrapper.SnapshotLabel)
}
