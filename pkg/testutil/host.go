package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
)

// FakeHost simulates the external collaborators of a provisioning run on
// top of a FakeRunner: a package manager that remembers what it installed,
// a dependency installer that records verbs in its log, and a guest
// installer that drops the guest marker into the wrapper.
type FakeHost struct {
	mu       sync.Mutex
	cfg      *config.Config
	formulae map[string]bool
	casks    map[string]bool
	failures map[string]int
}

// NewFakeHost registers the simulated tools on runner
func NewFakeHost(runner *execx.FakeRunner, cfg *config.Config) *FakeHost {
	h := &FakeHost{
		cfg:      cfg,
		formulae: map[string]bool{},
		casks:    map[string]bool{},
		failures: map[string]int{},
	}
	brew := cfg.Base.Manager
	runner.On(brew+" list --formula", func(execx.Command) (execx.Result, error) {
		return execx.Result{Stdout: h.list(false)}, nil
	})
	runner.On(brew+" list --cask", func(execx.Command) (execx.Result, error) {
		return execx.Result{Stdout: h.list(true)}, nil
	})
	runner.On(brew+" install", func(c execx.Command) (execx.Result, error) {
		h.setInstalled(c.Args, true)
		return execx.Result{}, nil
	})
	runner.On(brew+" uninstall", func(c execx.Command) (execx.Result, error) {
		h.setInstalled(c.Args, false)
		return execx.Result{}, nil
	})
	runner.On(cfg.Dependencies.Installer, h.installDependency)

	wine := filepath.Join(cfg.Wrapper.Path, cfg.Wrapper.EngineDir, "bin", "wine")
	runner.On(wine, h.installGuest)
	return h
}

// Preinstall marks packages as already installed
func (h *FakeHost) Preinstall(pkgs ...config.Package) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range pkgs {
		h.mark(p.Cask, p.Name, true)
	}
}

// Installed reports whether the simulated package manager holds name
func (h *FakeHost) Installed(name string, cask bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cask {
		return h.casks[short(name)]
	}
	return h.formulae[short(name)]
}

// FailDependency makes the next n installs of pkg fail
func (h *FakeHost) FailDependency(pkg string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[pkg] = n
}

func (h *FakeHost) list(cask bool) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.formulae
	if cask {
		set = h.casks
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

func (h *FakeHost) setInstalled(args []string, installed bool) {
	if len(args) == 0 {
		return
	}
	cask := false
	for _, a := range args {
		if a == "--cask" {
			cask = true
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mark(cask, args[len(args)-1], installed)
}

// mark must be called with h.mu held
func (h *FakeHost) mark(cask bool, name string, installed bool) {
	set := h.formulae
	if cask {
		set = h.casks
	}
	if installed {
		set[short(name)] = true
	} else {
		delete(set, short(name))
	}
}

func (h *FakeHost) installDependency(c execx.Command) (execx.Result, error) {
	if len(c.Args) == 0 {
		return execx.Result{}, nil
	}
	pkg := c.Args[len(c.Args)-1]

	h.mu.Lock()
	remaining := h.failures[pkg]
	if remaining > 0 {
		h.failures[pkg] = remaining - 1
	}
	h.mu.Unlock()
	if remaining > 0 {
		return execx.Result{ExitCode: 1, Stderr: "download failed"},
			errors.Newf(errors.ErrCommand, "command failed: %s", c.String()).WithDetail("exitCode", 1)
	}

	prefix := c.Env["WINEPREFIX"]
	if prefix == "" {
		return execx.Result{}, fmt.Errorf("WINEPREFIX not set")
	}
	logPath := filepath.Join(prefix, h.cfg.Dependencies.LogFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return execx.Result{}, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return execx.Result{}, err
	}
	defer func() {
		_ = f.Close()
	}()
	_, err = fmt.Fprintln(f, pkg)
	return execx.Result{}, err
}

func (h *FakeHost) installGuest(execx.Command) (execx.Result, error) {
	marker := filepath.Join(h.cfg.Wrapper.Path, h.cfg.Guest.Marker)
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		return execx.Result{}, err
	}
	return execx.Result{}, os.WriteFile(marker, []byte("guest"), 0755)
}

func short(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
