// Package lifecycle removes what a provisioning run created. Uninstall
// removes the wrapper and the guest's support directory; purge also
// removes the base packages. The artifact cache is never touched, so a
// later run can rebuild without downloading again.
package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/snapshot"
	"github.com/arthur-debert/wrapup/pkg/stages"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/wrapper"
)

// Confirmer asks a yes/no question. Anything but an explicit yes is a no.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Result describes what an uninstall did
type Result struct {
	Purge     bool `json:"purge" yaml:"purge"`
	Confirmed bool `json:"confirmed" yaml:"confirmed"`
	// Snapshot of the config store taken before removal, if there was one
	Snapshot    *snapshot.Snapshot `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Removed     []string           `json:"removed,omitempty" yaml:"removed,omitempty"`
	Uninstalled []string           `json:"uninstalled,omitempty" yaml:"uninstalled,omitempty"`
}

// Manager runs uninstall and purge against a wired environment
type Manager struct {
	env     *stages.Env
	confirm Confirmer
	logger  zerolog.Logger
}

// New creates a Manager
func New(env *stages.Env, confirm Confirmer) *Manager {
	return &Manager{env: env, confirm: confirm, logger: logging.GetLogger("lifecycle")}
}

// Question is the prompt shown before anything is removed
func (m *Manager) Question(purge bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This removes %s and %s", m.env.WrapperPath(), m.env.Config.Wrapper.SupportDir)
	if purge {
		names := make([]string, 0, len(m.env.BasePackages()))
		for _, p := range m.env.BasePackages() {
			names = append(names, p.Name)
		}
		fmt.Fprintf(&b, ", and uninstalls %s", strings.Join(names, ", "))
	}
	b.WriteString(". Continue?")
	return b.String()
}

// Uninstall asks for confirmation and, when given, removes the wrapper
// and the support directory and forgets stage outcomes. With purge the
// base packages are uninstalled too, each only if installed. A declined
// confirmation returns a Result with Confirmed false and changes nothing.
func (m *Manager) Uninstall(ctx context.Context, purge bool) (Result, error) {
	res := Result{Purge: purge}

	ok, err := m.confirm.Confirm(m.Question(purge))
	if err != nil {
		return res, errors.Wrap(err, errors.ErrInvalidInput, "failed to read confirmation")
	}
	if !ok {
		m.logger.Info().Bool("purge", purge).Msg("Uninstall declined")
		return res, nil
	}
	res.Confirmed = true

	snap, err := m.env.Snapshots.Take(wrapper.SnapshotLabel, m.env.ConfigStore())
	if err != nil {
		return res, err
	}
	res.Snapshot = snap

	for _, path := range []string{m.env.WrapperPath(), m.env.Config.Wrapper.SupportDir} {
		if path == "" {
			continue
		}
		removed, err := m.remove(path)
		if err != nil {
			return res, err
		}
		if removed {
			res.Removed = append(res.Removed, path)
		}
	}

	m.env.State.Reset()
	if err := m.env.StateFile.Save(m.env.State, m.env.Now()); err != nil {
		return res, err
	}

	if purge {
		uninstalled, err := m.purge(ctx)
		res.Uninstalled = uninstalled
		if err != nil {
			return res, err
		}
	}

	m.logger.Info().
		Strs("removed", res.Removed).
		Strs("uninstalled", res.Uninstalled).
		Msg("Uninstall finished")
	return res, nil
}

func (m *Manager) remove(path string) (bool, error) {
	exists, err := types.Exists(m.env.FS, path)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to inspect %s", path)
	}
	if !exists {
		m.logger.Debug().Str("path", path).Msg("Nothing to remove")
		return false, nil
	}
	if err := m.env.FS.RemoveAll(path); err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to remove %s", path)
	}
	m.logger.Info().Str("path", path).Msg("Removed")
	return true, nil
}

// purge removes packages in reverse install order, so the wrapper manager
// goes first
func (m *Manager) purge(ctx context.Context) ([]string, error) {
	pkgs := m.env.BasePackages()
	var uninstalled []string
	for i := len(pkgs) - 1; i >= 0; i-- {
		pkg := pkgs[i]
		installed, err := m.env.Packages.Installed(ctx, pkg)
		if err != nil {
			return uninstalled, err
		}
		if !installed {
			m.logger.Debug().Str("package", pkg.Name).Msg("Not installed, skipping")
			continue
		}
		if err := m.env.Packages.Uninstall(ctx, pkg); err != nil {
			return uninstalled, err
		}
		uninstalled = append(uninstalled, pkg.Name)
	}
	return uninstalled, nil
}
