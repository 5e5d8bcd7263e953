package wrapper

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/artifacts"
	"github.com/arthur-debert/wrapup/pkg/cleanup"
	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/filesystem"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/snapshot"
)

// SnapshotLabel labels the config store copies taken before a rebuild
const SnapshotLabel = "wrapper-config"

// Result describes one Assemble call
type Result struct {
	// Skipped is true when the wrapper already carried an engine
	Skipped bool
	// Rebuilt is true when a wrapper without engine was removed first
	Rebuilt  bool
	Snapshot *snapshot.Snapshot
	// Cosmetic failures: links and quarantine clearing
	Warnings []error
}

// Assembler composes a wrapper from a template tree and an engine archive
type Assembler struct {
	layout    config.Wrapper
	strip     int
	runner    execx.Runner
	snapshots *snapshot.Manager
	registry  *cleanup.Registry
	logger    zerolog.Logger
}

// New creates an Assembler. snapshots may be nil to disable safety copies.
func New(cfg *config.Config, runner execx.Runner, snapshots *snapshot.Manager, registry *cleanup.Registry) *Assembler {
	return &Assembler{
		layout:    cfg.Wrapper,
		strip:     cfg.Engine.Strip,
		runner:    runner,
		snapshots: snapshots,
		registry:  registry,
		logger:    logging.GetLogger("wrapper"),
	}
}

// EngineMarker is the path whose presence means target carries an engine
func (a *Assembler) EngineMarker(target string) string {
	return filepath.Join(target, a.layout.EngineMarker)
}

// ConfigStore is the config store path inside target
func (a *Assembler) ConfigStore(target string) string {
	return filepath.Join(target, a.layout.ConfigStore)
}

// Assembled reports whether target carries an injected engine
func (a *Assembler) Assembled(target string) bool {
	_, err := os.Lstat(a.EngineMarker(target))
	return err == nil
}

// Assemble builds target from template and engineArchive. A target with
// an engine is left alone. A target without one is a partial earlier
// attempt: its config store is snapshotted and the whole tree rebuilt.
// Copy and injection failures are fatal; link and quarantine failures are
// logged and returned as warnings.
func (a *Assembler) Assemble(ctx context.Context, template, engineArchive, target string) (Result, error) {
	var res Result

	if a.Assembled(target) {
		a.logger.Debug().Str("target", target).Msg("Wrapper already assembled")
		res.Skipped = true
		return res, nil
	}

	if info, err := os.Lstat(template); err != nil || !info.IsDir() {
		return res, errors.Newf(errors.ErrAssembly, "template %s is not an extracted directory", template).
			WithDetail("template", template)
	}

	if _, err := os.Lstat(target); err == nil {
		a.logger.Warn().Str("target", target).Msg("Wrapper has no engine, rebuilding it")
		if a.snapshots != nil {
			snap, err := a.snapshots.Take(SnapshotLabel, a.ConfigStore(target))
			if err != nil {
				return res, err
			}
			res.Snapshot = snap
		}
		if err := os.RemoveAll(target); err != nil {
			return res, errors.Wrapf(err, errors.ErrAssembly, "failed to remove partial wrapper %s", target)
		}
		res.Rebuilt = true
	}

	// Until the engine is in place the tree is a temporary artifact
	a.registry.Track(target)
	built := false
	defer func() {
		a.registry.Untrack(target)
		if !built {
			_ = os.RemoveAll(target)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return res, errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(target))
	}
	if err := filesystem.CopyTree(template, target); err != nil {
		return res, errors.Wrapf(err, errors.ErrAssembly, "failed to copy template into %s", target).
			WithDetail("template", template)
	}
	a.logger.Info().Str("template", template).Str("target", target).Msg("Template copied")

	engineDir := filepath.Join(target, a.layout.EngineDir)
	if err := artifacts.Extract(ctx, engineArchive, engineDir, a.strip, ""); err != nil {
		return res, err
	}
	if !a.Assembled(target) {
		return res, errors.Newf(errors.ErrAssembly, "engine marker %s missing after injection", a.layout.EngineMarker).
			WithDetail("marker", a.EngineMarker(target)).
			WithDetail("archive", engineArchive)
	}
	built = true
	a.logger.Info().Str("engine", filepath.Base(engineArchive)).Str("target", target).Msg("Engine injected")

	res.Warnings = append(res.Warnings, a.EnsureLinks(target)...)
	if err := a.ClearQuarantine(ctx, target); err != nil {
		res.Warnings = append(res.Warnings, err)
	}
	return res, nil
}

// EnsureLinks creates the configured links inside target. Links already
// pointing at the right place are kept, wrong ones replaced. Every failure
// is logged and returned; none stops the remaining links.
func (a *Assembler) EnsureLinks(target string) []error {
	var failures []error
	for _, l := range a.layout.Links {
		if err := a.ensureLink(target, l); err != nil {
			a.logger.Warn().Err(err).Str("link", l.Path).Msg("Failed to create wrapper link")
			failures = append(failures, err)
		}
	}
	return failures
}

// LinksOK reports whether every configured link is in place
func (a *Assembler) LinksOK(target string) bool {
	for _, l := range a.layout.Links {
		got, err := os.Readlink(filepath.Join(target, l.Path))
		if err != nil || got != l.Target {
			return false
		}
	}
	return true
}

func (a *Assembler) ensureLink(target string, l config.Link) error {
	path := filepath.Join(target, l.Path)
	if got, err := os.Readlink(path); err == nil && got == l.Target {
		return nil
	}
	if err := os.MkdirAll(l.Target, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create link target %s", l.Target)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(path))
	}
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to replace %s", path)
	}
	if err := os.Symlink(l.Target, path); err != nil {
		return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to link %s -> %s", path, l.Target)
	}
	a.logger.Debug().Str("link", path).Str("target", l.Target).Msg("Wrapper link created")
	return nil
}

// ClearQuarantine removes the transfer quarantine attribute from the
// whole tree. A host without xattr has nothing to clear.
func (a *Assembler) ClearQuarantine(ctx context.Context, target string) error {
	if a.layout.QuarantineAttr == "" {
		return nil
	}
	if _, err := a.runner.LookPath("xattr"); err != nil {
		a.logger.Debug().Msg("xattr not available, skipping quarantine clearing")
		return nil
	}
	_, err := a.runner.Run(ctx, execx.Command{
		Name: "xattr",
		Args: []string{"-dr", a.layout.QuarantineAttr, target},
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("target", target).Msg("Failed to clear quarantine attribute")
		return errors.Wrapf(err, errors.ErrAssembly, "failed to clear %s", a.layout.QuarantineAttr)
	}
	return nil
}
