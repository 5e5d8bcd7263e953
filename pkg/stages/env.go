package stages

import (
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/arthur-debert/wrapup/pkg/artifacts"
	"github.com/arthur-debert/wrapup/pkg/cleanup"
	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/converge"
	"github.com/arthur-debert/wrapup/pkg/deps"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/filesystem"
	"github.com/arthur-debert/wrapup/pkg/paths"
	"github.com/arthur-debert/wrapup/pkg/pkgmgr"
	"github.com/arthur-debert/wrapup/pkg/preflight"
	"github.com/arthur-debert/wrapup/pkg/resolver"
	"github.com/arthur-debert/wrapup/pkg/snapshot"
	"github.com/arthur-debert/wrapup/pkg/state"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/wrapper"
)

// Env carries the configuration and the components stages work with. It
// is built once per run.
type Env struct {
	Config    *config.Config
	Paths     paths.Paths
	FS        types.FS
	Runner    execx.Runner
	Stream    io.Writer
	Registry  *cleanup.Registry
	Resolver  *resolver.Resolver
	Store     *artifacts.Store
	Converger *converge.Converger
	Assembler *wrapper.Assembler
	Packages  pkgmgr.Manager
	Deps      *deps.Installer
	Preflight *preflight.Checker
	Snapshots *snapshot.Manager
	State     *state.Record
	StateFile *state.Store
	Now       func() time.Time

	// settings keys that failed to converge during this run, per stage
	failedKeys map[string][]string
	// set when wrapper links could not be repaired during this run
	linksUnrepaired bool
}

// EnvOptions adjusts how NewEnv wires components. Zero values select the
// production defaults.
type EnvOptions struct {
	Client *http.Client
	FS     types.FS
	// Stream receives the output of external tools
	Stream io.Writer
	Now    func() time.Time
}

// NewEnv wires every component from cfg and loads the state record
func NewEnv(cfg *config.Config, p paths.Paths, runner execx.Runner, opts EnvOptions) (*Env, error) {
	fs := opts.FS
	if fs == nil {
		fs = filesystem.NewOS()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Network.Timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	registry := cleanup.New(fs)
	registry.Defer(func() error {
		client.CloseIdleConnections()
		return nil
	})
	snapshots := snapshot.New(p.SnapshotDir(), cfg.Snapshots.Keep)
	stateFile := state.NewStore(fs, p.StateFile())
	record, err := stateFile.Load()
	if err != nil {
		return nil, err
	}

	return &Env{
		Config:    cfg,
		Paths:     p,
		FS:        fs,
		Runner:    runner,
		Stream:    opts.Stream,
		Registry:  registry,
		Resolver:  resolver.New(cfg, client),
		Store:     artifacts.New(client, registry, p),
		Converger: converge.New(fs),
		Assembler: wrapper.New(cfg, runner, snapshots, registry),
		Packages:  pkgmgr.NewHomebrew(cfg.Base.Manager, runner, opts.Stream),
		Deps:      deps.New(cfg.Dependencies, fs, runner, opts.Stream),
		Preflight: preflight.NewChecker(cfg.Preflight, runner, client, p.CacheDir(), filepath.Dir(cfg.Wrapper.Path)),
		Snapshots: snapshots,
		State:     record,
		StateFile: stateFile,
		Now:       now,
	}, nil
}

// WrapperPath is the wrapper root
func (e *Env) WrapperPath() string {
	return e.Config.Wrapper.Path
}

// WrapperFile resolves rel inside the wrapper
func (e *Env) WrapperFile(rel string) string {
	return filepath.Join(e.Config.Wrapper.Path, rel)
}

// ConfigStore is the wrapper's config store
func (e *Env) ConfigStore() string {
	return e.WrapperFile(e.Config.Wrapper.ConfigStore)
}

// BasePackages lists every package the package manager must provide,
// the wrapper manager last
func (e *Env) BasePackages() []config.Package {
	pkgs := append([]config.Package(nil), e.Config.Base.Packages...)
	if e.Config.Base.WrapperManager.Name != "" {
		pkgs = append(pkgs, e.Config.Base.WrapperManager)
	}
	return pkgs
}

// FailedKeys lists the settings of stage that failed to converge in this run
func (e *Env) FailedKeys(stage string) []string {
	return e.failedKeys[stage]
}

func (e *Env) recordFailedKeys(stage string, keys []string) {
	if e.failedKeys == nil {
		e.failedKeys = map[string][]string{}
	}
	e.failedKeys[stage] = keys
}
