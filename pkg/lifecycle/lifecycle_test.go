// TEST TYPE: Integration Test
// DEPENDENCIES: real filesystem, httptest artifact server, FakeHost
// PURPOSE: Verify uninstall and purge honour the confirmation, spare the
// artifact cache and only remove installed packages

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/stages"
	"github.com/arthur-debert/wrapup/pkg/testutil"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/wrapper"
)

type answer struct {
	yes   bool
	err   error
	asked []string
}

func (a *answer) Confirm(q string) (bool, error) {
	a.asked = append(a.asked, q)
	return a.yes, a.err
}

func newEnv(t *testing.T, te *testutil.TestEnvironment) *stages.Env {
	t.Helper()
	env, err := stages.NewEnv(te.Config(), te.Paths, te.Runner, stages.EnvOptions{})
	require.NoError(t, err)
	return env
}

func provisioned(t *testing.T) *testutil.TestEnvironment {
	t.Helper()
	te := testutil.NewTestEnvironment(t)
	o, err := stages.NewDefault()
	require.NoError(t, err)
	_, err = o.Run(context.Background(), newEnv(t, te), stages.Options{})
	require.NoError(t, err)
	te.Runner.Reset()
	return te
}

func TestUninstall_DeclinedChangesNothing(t *testing.T) {
	te := provisioned(t)
	before := testutil.TreeDigest(t, te.Root)

	a := &answer{yes: false}
	res, err := New(newEnv(t, te), a).Uninstall(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	require.Len(t, a.asked, 1)
	assert.Contains(t, a.asked[0], te.WrapperPath())
	assert.Contains(t, a.asked[0], "sikarugir")

	assert.Equal(t, before, testutil.TreeDigest(t, te.Root))
	assert.Empty(t, te.Runner.Calls())
}

func TestUninstall_RemovesWrapperAndKeepsCache(t *testing.T) {
	te := provisioned(t)
	cfg := te.Config()
	env := newEnv(t, te)
	store := testutil.ReadFile(t, env.ConfigStore())
	engineArchive := te.Paths.ArchivePath(types.ArtifactEngine, testutil.EngineArchive)
	require.FileExists(t, engineArchive)

	res, err := New(env, &answer{yes: true}).Uninstall(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, []string{cfg.Wrapper.Path, cfg.Wrapper.SupportDir}, res.Removed)
	assert.Empty(t, res.Uninstalled)

	assert.NoDirExists(t, cfg.Wrapper.Path)
	assert.NoDirExists(t, cfg.Wrapper.SupportDir)
	assert.FileExists(t, engineArchive, "the cache survives uninstall")
	assert.True(t, te.Host.Installed("sikarugir", true), "packages survive a plain uninstall")

	require.NotNil(t, res.Snapshot)
	assert.Equal(t, store, testutil.ReadFile(t, res.Snapshot.Content()))
	latest, err := env.Snapshots.Latest(wrapper.SnapshotLabel)
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.Path, latest.Path)

	rec, err := env.StateFile.Load()
	require.NoError(t, err)
	assert.Empty(t, rec.Stages)
	assert.Nil(t, rec.Preflight)
}

func TestUninstall_ThenProvisionUsesCache(t *testing.T) {
	te := provisioned(t)
	_, err := New(newEnv(t, te), &answer{yes: true}).Uninstall(context.Background(), false)
	require.NoError(t, err)
	downloads := te.Server.Downloads()

	o, err := stages.NewDefault()
	require.NoError(t, err)
	report, err := o.Run(context.Background(), newEnv(t, te), stages.Options{})
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, report.Outcome)
	assert.Equal(t, downloads, te.Server.Downloads())
	assert.DirExists(t, te.WrapperPath())
}

func TestPurge_UninstallsOnlyInstalledPackages(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Host.Preinstall(config.Package{Name: "winetricks"})

	res, err := New(newEnv(t, te), &answer{yes: true}).Uninstall(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"winetricks"}, res.Uninstalled)
	assert.Empty(t, res.Removed)
	assert.Nil(t, res.Snapshot)
	assert.Equal(t, 1, te.Runner.Count("brew uninstall"))
	assert.False(t, te.Host.Installed("winetricks", false))
}

func TestPurge_RemovesEverything(t *testing.T) {
	te := provisioned(t)

	res, err := New(newEnv(t, te), &answer{yes: true}).Uninstall(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"sikarugir", "winetricks", "gstreamer-runtime"}, res.Uninstalled)
	assert.False(t, te.Host.Installed("sikarugir", true))
	assert.False(t, te.Host.Installed("gstreamer-runtime", true))
	assert.NoDirExists(t, te.WrapperPath())
}

func TestUninstall_ConfirmationErrors(t *testing.T) {
	te := provisioned(t)

	_, err := New(newEnv(t, te), &answer{err: fmt.Errorf("stdin closed")}).Uninstall(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	_, statErr := os.Stat(te.WrapperPath())
	assert.NoError(t, statErr)
}
