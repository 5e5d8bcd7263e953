// Package deps installs runtime dependencies into the wrapper prefix with
// a winetricks-style installer.
package deps

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// Attempts is how often a single package install is tried
const Attempts = 2

// Installer runs the dependency installer once per missing package. The
// installer records every package it installed in a log file inside the
// prefix; that log is the only source of truth for what is present.
type Installer struct {
	cfg    config.Dependencies
	fs     types.FS
	runner execx.Runner
	stream io.Writer
	logger zerolog.Logger
}

// New creates an Installer. Installer output is streamed to stream when
// it is not nil.
func New(cfg config.Dependencies, fs types.FS, runner execx.Runner, stream io.Writer) *Installer {
	return &Installer{
		cfg:    cfg,
		fs:     fs,
		runner: runner,
		stream: stream,
		logger: logging.GetLogger("deps"),
	}
}

// LogPath is the installer log inside prefix
func (i *Installer) LogPath(prefix string) string {
	return filepath.Join(prefix, i.cfg.LogFile)
}

// Installed returns the packages listed in the installer log. A missing
// log means nothing is installed.
func (i *Installer) Installed(prefix string) (map[string]bool, error) {
	installed := map[string]bool{}
	data, err := i.fs.ReadFile(i.LogPath(prefix))
	if stderrors.Is(err, fs.ErrNotExist) {
		return installed, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", i.LogPath(prefix))
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Lines may carry extra words such as flags after the verb
		installed[strings.Fields(line)[0]] = true
	}
	return installed, nil
}

// Missing lists the configured packages not yet installed, in order
func (i *Installer) Missing(prefix string) ([]string, error) {
	installed, err := i.Installed(prefix)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, pkg := range i.cfg.Packages {
		if !installed[pkg] {
			missing = append(missing, pkg)
		}
	}
	return missing, nil
}

// Done reports whether every configured package is installed
func (i *Installer) Done(prefix string) (bool, error) {
	missing, err := i.Missing(prefix)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// Install installs each missing package, trying every one twice before
// giving up. engine is the engine directory the installer should use.
func (i *Installer) Install(ctx context.Context, prefix, engine string) error {
	missing, err := i.Missing(prefix)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		i.logger.Debug().Msg("All dependencies already installed")
		return nil
	}

	for _, pkg := range missing {
		if err := i.installOne(ctx, prefix, engine, pkg); err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) installOne(ctx context.Context, prefix, engine, pkg string) error {
	cmd := execx.Command{
		Name: i.cfg.Installer,
		Args: append(append([]string(nil), i.cfg.Args...), pkg),
		Env: map[string]string{
			"WINEPREFIX": prefix,
			"WINE":       filepath.Join(engine, "bin", "wine"),
		},
		Stream: i.stream,
	}

	var lastErr error
	for attempt := 1; attempt <= Attempts; attempt++ {
		logging.LogCommand(cmd.Name, cmd.Args)
		_, err := i.runner.Run(ctx, cmd)
		if err == nil {
			i.logger.Info().Str("package", pkg).Int("attempt", attempt).Msg("Dependency installed")
			return nil
		}
		if errors.IsErrorCode(err, errors.ErrCancelled) {
			return err
		}
		lastErr = err
		i.logger.Warn().Err(err).Str("package", pkg).Int("attempt", attempt).Msg("Dependency install failed")
	}
	return errors.Wrapf(lastErr, errors.ErrDependencyInstall, "failed to install %s after %d attempts", pkg, Attempts).
		WithDetail("package", pkg)
}
