package stages

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/wrapup/pkg/artifacts"
	"github.com/arthur-debert/wrapup/pkg/converge"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/wrapper"
)

// Stage names, in the order of the default chain
const (
	Preflight      = "preflight"
	BaseRuntime    = "base-runtime-present"
	WrapperReady   = "wrapper-assembled"
	Dependencies   = "dependencies-installed"
	GuestInstalled = "guest-installed"
	AudioEnv       = "audio-environment-configured"
)

// Default returns the provisioning chain
func Default() []Stage {
	return []Stage{
		preflightStage{},
		baseRuntimeStage{},
		wrapperStage{},
		dependenciesStage{},
		guestStage{},
		audioStage{},
	}
}

// NewDefault returns an orchestrator for the provisioning chain
func NewDefault() (*Orchestrator, error) {
	return NewOrchestrator(Default()...)
}

// preflightStage verifies the host can be provisioned. A pass is cached in
// the state record for the configured TTL and only for the same host
// fingerprint.
type preflightStage struct{}

func (preflightStage) Name() string    { return Preflight }
func (preflightStage) Label() string   { return "Checking host requirements" }
func (preflightStage) After() []string { return nil }

func (preflightStage) Done(_ context.Context, env *Env) (bool, error) {
	return env.State.PreflightValid(env.Preflight.Fingerprint(), env.Config.Preflight.TTL, env.Now()), nil
}

func (preflightStage) Run(ctx context.Context, env *Env) error {
	if _, err := env.Preflight.Run(ctx); err != nil {
		return err
	}
	env.State.RecordPreflight(env.Preflight.Fingerprint(), env.Now())
	return nil
}

type baseRuntimeStage struct{}

func (baseRuntimeStage) Name() string    { return BaseRuntime }
func (baseRuntimeStage) Label() string   { return "Installing base runtime" }
func (baseRuntimeStage) After() []string { return []string{Preflight} }

func (baseRuntimeStage) Done(ctx context.Context, env *Env) (bool, error) {
	for _, pkg := range env.BasePackages() {
		ok, err := env.Packages.Installed(ctx, pkg)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (baseRuntimeStage) Run(ctx context.Context, env *Env) error {
	for _, pkg := range env.BasePackages() {
		ok, err := env.Packages.Installed(ctx, pkg)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := env.Packages.Install(ctx, pkg); err != nil {
			return err
		}
	}
	return nil
}

// wrapperStage composes the wrapper from the template and the engine and
// converges its own settings. Settings and links that could not be put in
// place this run are excluded from the completion check.
type wrapperStage struct{}

func (wrapperStage) Name() string    { return WrapperReady }
func (wrapperStage) Label() string   { return "Assembling wrapper" }
func (wrapperStage) After() []string { return []string{BaseRuntime} }

func (wrapperStage) Done(_ context.Context, env *Env) (bool, error) {
	target := env.WrapperPath()
	if !env.Assembler.Assembled(target) {
		return false, nil
	}
	if !env.linksUnrepaired && !env.Assembler.LinksOK(target) {
		return false, nil
	}
	return env.Converger.Converged(env.ConfigStore(), settingsFor(env, WrapperReady))
}

func (s wrapperStage) Run(ctx context.Context, env *Env) error {
	logger := logging.GetLogger("stages.wrapper")
	target := env.WrapperPath()

	if !env.Assembler.Assembled(target) {
		if err := s.assemble(ctx, env, target); err != nil {
			return err
		}
	} else if !env.Assembler.LinksOK(target) {
		for _, w := range env.Assembler.EnsureLinks(target) {
			logger.Warn().Err(w).Msg("Wrapper link not repaired")
		}
	}
	env.linksUnrepaired = !env.Assembler.LinksOK(target)

	return applySettings(env, WrapperReady, env.Config.Wrapper.Settings)
}

func (wrapperStage) assemble(ctx context.Context, env *Env, target string) error {
	logger := logging.GetLogger("stages.wrapper")
	cfg := env.Config

	template, err := env.Resolver.Resolve(ctx, types.ArtifactTemplate)
	if err != nil {
		return err
	}
	templateDir := env.Paths.TemplateDir(template.Name)
	if _, err := env.Store.Ensure(ctx, template, templateDir, cfg.Template.Strip, cfg.Template.Marker); err != nil {
		return err
	}

	engine, err := env.Resolver.Resolve(ctx, types.ArtifactEngine)
	if err != nil {
		return err
	}
	archive, err := env.Store.Fetch(ctx, engine.URL, env.Paths.ArchivePath(engine.Kind, engine.Name),
		artifacts.WithChecksum(engine.SHA256))
	if err != nil {
		return err
	}

	res, err := env.Assembler.Assemble(ctx, templateDir, archive.Path, target)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrExtract) && archive.Hit {
			logger.Warn().Str("path", archive.Path).Msg("Removing unusable cached engine archive")
			_ = os.Remove(archive.Path)
		}
		return err
	}
	for _, w := range res.Warnings {
		logger.Warn().Err(w).Msg("Wrapper assembled with warnings")
	}

	env.State.SetArtifact(template)
	env.State.SetArtifact(engine)
	return nil
}

type dependenciesStage struct{}

func (dependenciesStage) Name() string    { return Dependencies }
func (dependenciesStage) Label() string   { return "Installing dependencies" }
func (dependenciesStage) After() []string { return []string{WrapperReady} }

func (dependenciesStage) Done(_ context.Context, env *Env) (bool, error) {
	return env.Deps.Done(env.WrapperFile(env.Config.Wrapper.PrefixDir))
}

func (dependenciesStage) Run(ctx context.Context, env *Env) error {
	return env.Deps.Install(ctx, env.WrapperFile(env.Config.Wrapper.PrefixDir), env.WrapperFile(env.Config.Wrapper.EngineDir))
}

// guestStage downloads the guest installer and runs it inside the wrapper.
// The guest marker is the only evidence of a completed install.
type guestStage struct{}

func (guestStage) Name() string    { return GuestInstalled }
func (guestStage) Label() string   { return "Installing guest application" }
func (guestStage) After() []string { return []string{Dependencies} }

func (guestStage) Done(_ context.Context, env *Env) (bool, error) {
	marker := env.Config.Guest.Marker
	if marker == "" {
		return true, nil
	}
	return types.Exists(env.FS, env.WrapperFile(marker))
}

func (guestStage) Run(ctx context.Context, env *Env) error {
	cfg := env.Config.Guest
	if cfg.InstallerURL == "" {
		return errors.New(errors.ErrGuestInstall, "guest installer is not configured, set guest.installer_url")
	}
	if len(cfg.Command) == 0 {
		return errors.New(errors.ErrGuestInstall, "guest.command is empty")
	}

	name := cfg.InstallerName
	if name == "" {
		name = path.Base(cfg.InstallerURL)
	}
	installer, err := env.Store.Fetch(ctx, cfg.InstallerURL, env.Paths.DownloadPath(name),
		artifacts.WithChecksum(env.Config.Checksum(name)))
	if err != nil {
		return err
	}

	prefix := env.WrapperFile(env.Config.Wrapper.PrefixDir)
	replacer := strings.NewReplacer(
		"{engine}", env.WrapperFile(env.Config.Wrapper.EngineDir),
		"{installer}", installer.Path,
		"{prefix}", prefix,
		"{wrapper}", env.WrapperPath(),
	)
	argv := make([]string, len(cfg.Command))
	for i, a := range cfg.Command {
		argv[i] = replacer.Replace(a)
	}

	cmd := execx.Command{
		Name:   argv[0],
		Args:   argv[1:],
		Dir:    filepath.Dir(installer.Path),
		Env:    map[string]string{"WINEPREFIX": prefix},
		Stream: env.Stream,
	}
	logging.LogCommand(cmd.Name, cmd.Args)
	if _, err := env.Runner.Run(ctx, cmd); err != nil {
		if errors.IsErrorCode(err, errors.ErrCancelled) {
			return err
		}
		return errors.Wrap(err, errors.ErrGuestInstall, "guest installer failed").
			WithDetail("installer", installer.Path)
	}
	return nil
}

// audioStage converges the audio environment into the wrapper config store
type audioStage struct{}

func (audioStage) Name() string    { return AudioEnv }
func (audioStage) Label() string   { return "Configuring audio environment" }
func (audioStage) After() []string { return []string{GuestInstalled} }

func (audioStage) Done(_ context.Context, env *Env) (bool, error) {
	return env.Converger.Converged(env.ConfigStore(), settingsFor(env, AudioEnv))
}

func (audioStage) Run(_ context.Context, env *Env) error {
	return applySettings(env, AudioEnv, env.Config.Audio.Settings)
}

// settingsFor returns the settings the stage must have converged, minus
// the ones that failed earlier in this run
func settingsFor(env *Env, stage string) []types.ConfigSetting {
	var all []types.ConfigSetting
	switch stage {
	case WrapperReady:
		all = env.Config.Wrapper.Settings
	case AudioEnv:
		all = env.Config.Audio.Settings
	}
	return converge.Without(all, env.FailedKeys(stage))
}

// applySettings snapshots the config store and applies settings to it. Keys
// that fail are recorded against the stage and do not fail it, even when the
// whole store is unreadable.
func applySettings(env *Env, stage string, settings []types.ConfigSetting) error {
	logger := logging.GetLogger("stages").With().Str("stage", stage).Logger()
	store := env.ConfigStore()

	if ok, err := env.Converger.Converged(store, settings); err == nil && ok {
		env.recordFailedKeys(stage, nil)
		return nil
	}

	if _, err := env.Snapshots.Take(wrapper.SnapshotLabel, store); err != nil {
		return err
	}
	report, err := env.Converger.Apply(store, settings)
	if err != nil {
		logger.Warn().Err(err).Str("store", store).Msg("Config store not converged")
	}
	failed := report.FailedKeys()
	env.recordFailedKeys(stage, failed)
	if len(failed) > 0 {
		logger.Warn().Strs("keys", failed).Msg("Some settings could not be applied")
	}
	return nil
}
