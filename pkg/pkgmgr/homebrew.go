// Package pkgmgr drives the external package manager that supplies the
// base runtime and the wrapper manager.
package pkgmgr

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/logging"
)

// Manager installs and removes packages
type Manager interface {
	Installed(ctx context.Context, pkg config.Package) (bool, error)
	Install(ctx context.Context, pkg config.Package) error
	Uninstall(ctx context.Context, pkg config.Package) error
}

// Homebrew is a Manager backed by the brew command
type Homebrew struct {
	bin    string
	runner execx.Runner
	stream io.Writer
	logger zerolog.Logger

	mu       sync.Mutex
	formulae map[string]bool
	casks    map[string]bool
}

// NewHomebrew creates a Homebrew manager. Install output is streamed to
// stream when it is not nil.
func NewHomebrew(bin string, runner execx.Runner, stream io.Writer) *Homebrew {
	if bin == "" {
		bin = "brew"
	}
	return &Homebrew{
		bin:    bin,
		runner: runner,
		stream: stream,
		logger: logging.GetLogger("pkgmgr.homebrew"),
	}
}

// Installed reports whether pkg is present. The installed lists are read
// once and refreshed after every install or uninstall.
func (h *Homebrew) Installed(ctx context.Context, pkg config.Package) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.formulae == nil {
		if err := h.refresh(ctx); err != nil {
			return false, err
		}
	}
	name := shortName(pkg.Name)
	if pkg.Cask {
		return h.casks[name], nil
	}
	return h.formulae[name], nil
}

// Install taps pkg.Tap when set and installs pkg
func (h *Homebrew) Install(ctx context.Context, pkg config.Package) error {
	if pkg.Tap != "" {
		if _, err := h.run(ctx, "tap", pkg.Tap); err != nil {
			return errors.Wrapf(err, errors.ErrPackageManager, "failed to tap %s", pkg.Tap)
		}
	}

	args := []string{"install"}
	if pkg.Cask {
		args = append(args, "--cask")
	}
	args = append(args, qualifiedName(pkg))

	h.logger.Info().Str("package", pkg.Name).Bool("cask", pkg.Cask).Msg("Installing package")
	if _, err := h.run(ctx, args...); err != nil {
		return errors.Wrapf(err, errors.ErrPackageManager, "failed to install %s", pkg.Name).
			WithDetail("package", pkg.Name)
	}
	h.invalidate()
	return nil
}

// Uninstall removes pkg. Callers check Installed first.
func (h *Homebrew) Uninstall(ctx context.Context, pkg config.Package) error {
	args := []string{"uninstall"}
	if pkg.Cask {
		args = append(args, "--cask")
	}
	args = append(args, shortName(pkg.Name))

	h.logger.Info().Str("package", pkg.Name).Bool("cask", pkg.Cask).Msg("Uninstalling package")
	if _, err := h.run(ctx, args...); err != nil {
		return errors.Wrapf(err, errors.ErrPackageManager, "failed to uninstall %s", pkg.Name).
			WithDetail("package", pkg.Name)
	}
	h.invalidate()
	return nil
}

func (h *Homebrew) run(ctx context.Context, args ...string) (execx.Result, error) {
	return h.runner.Run(ctx, execx.Command{Name: h.bin, Args: args, Stream: h.stream})
}

func (h *Homebrew) invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.formulae = nil
	h.casks = nil
}

// refresh must be called with h.mu held
func (h *Homebrew) refresh(ctx context.Context) error {
	formulae := map[string]bool{}
	res, err := h.runner.Run(ctx, execx.Command{Name: h.bin, Args: []string{"list", "--formula", "-1"}})
	if err != nil {
		// No brew at all means nothing is installed
		if res.ExitCode == execx.ExitNotFound {
			h.formulae, h.casks = formulae, map[string]bool{}
			return nil
		}
		return errors.Wrap(err, errors.ErrPackageManager, "failed to list installed formulae")
	}
	parseList(res.Stdout, formulae)

	casks := map[string]bool{}
	res, err = h.runner.Run(ctx, execx.Command{Name: h.bin, Args: []string{"list", "--cask", "-1"}})
	if err != nil {
		// Casks might not be supported on this host
		h.logger.Debug().Err(err).Msg("Cask listing failed, assuming none installed")
	} else {
		parseList(res.Stdout, casks)
	}

	h.formulae, h.casks = formulae, casks
	return nil
}

func parseList(out string, into map[string]bool) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		for _, name := range strings.Fields(scanner.Text()) {
			into[name] = true
		}
	}
}

// shortName drops a tap prefix: "user/tap/name" lists as "name"
func shortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func qualifiedName(pkg config.Package) string {
	if pkg.Tap != "" && !strings.Contains(pkg.Name, "/") {
		return pkg.Tap + "/" + pkg.Name
	}
	return pkg.Name
}
