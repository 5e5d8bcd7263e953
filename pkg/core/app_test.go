// TEST TYPE: Integration Test
// DEPENDENCIES: real filesystem, httptest artifact server, FakeHost
// PURPOSE: Verify the application wiring behind each command

package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/stages"
	"github.com/arthur-debert/wrapup/pkg/testutil"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/wrapper"
)

type yes struct{}

func (yes) Confirm(string) (bool, error) { return true, nil }

func open(t *testing.T, te *testutil.TestEnvironment) *App {
	t.Helper()
	app, err := Open(Options{
		Paths:     te.Paths,
		Overrides: te.Overrides(),
		Runner:    te.Runner,
		LogPath:   filepath.Join(te.Paths.LogDir(), "run.log"),
	})
	require.NoError(t, err)
	return app
}

func TestOpen_MissingConfigFile(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	_, err := Open(Options{
		Paths:      te.Paths,
		Runner:     te.Runner,
		ConfigFile: filepath.Join(te.Root, "missing.toml"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))
}

func TestUpThenStatus(t *testing.T) {
	te := testutil.NewTestEnvironment(t)

	var streamed []string
	report, err := open(t, te).Up(context.Background(), UpOptions{
		OnStage: func(sr types.StageReport) { streamed = append(streamed, sr.Name) },
	})
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, report.Outcome)
	assert.Len(t, streamed, 6)

	te.Runner.Reset()
	status, err := open(t, te).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.DryRun)
	assert.True(t, status.AllSkipped())
}

func TestStatus_FreshHost(t *testing.T) {
	te := testutil.NewTestEnvironment(t)

	status, err := open(t, te).Status(context.Background())
	require.NoError(t, err)
	sr, ok := status.Stage(stages.Preflight)
	require.True(t, ok)
	assert.Equal(t, types.StageStatusWouldRun, sr.Status)
	assert.Zero(t, te.Server.Downloads())
}

func TestUp_FailureCarriesLogPath(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Set("guest.installer_url", "")

	app := open(t, te)
	report, err := app.Up(context.Background(), UpOptions{})
	require.Error(t, err)
	assert.Equal(t, stages.GuestInstalled, report.FailedStage)
	assert.Equal(t, filepath.Join(te.Paths.LogDir(), "run.log"), report.LogPath)
}

func TestUninstall(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	_, err := open(t, te).Up(context.Background(), UpOptions{})
	require.NoError(t, err)

	res, err := open(t, te).Uninstall(context.Background(), false, yes{})
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.NoDirExists(t, te.WrapperPath())
}

func TestSnapshots_ListAndPrune(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Set("snapshots.keep", 0)
	source := testutil.CreateFile(t, te.Root, "Info.plist", "<plist/>")

	app := open(t, te)
	empty, err := app.Snapshots()
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for i := 0; i < 4; i++ {
		_, err := app.Env.Snapshots.Take(wrapper.SnapshotLabel, source)
		require.NoError(t, err)
	}
	snaps, err := app.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snaps, 4)

	te.Set("snapshots.keep", 1)
	removed, err := open(t, te).PruneSnapshots()
	require.NoError(t, err)
	assert.Len(t, removed, 3)
	assert.Equal(t, snaps[:3], removed)

	left, err := app.Snapshots()
	require.NoError(t, err)
	assert.Equal(t, snaps[3:], left)
}

func TestRestoreConfigStore(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	app := open(t, te)
	_, err := app.Up(context.Background(), UpOptions{})
	require.NoError(t, err)

	store := app.Env.ConfigStore()
	require.NoError(t, os.WriteFile(store, []byte("damaged"), 0644))

	snap, err := app.RestoreConfigStore()
	require.NoError(t, err)
	assert.Equal(t, store, snap.Source)
	assert.Equal(t, testutil.ReadFile(t, snap.Content()), testutil.ReadFile(t, store))
	assert.NotEqual(t, "damaged", testutil.ReadFile(t, store))
}

func TestRestoreConfigStore_NothingToRestore(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	_, err := open(t, te).RestoreConfigStore()
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestUninstallQuestion(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	app := open(t, te)

	q := app.UninstallQuestion(false)
	assert.Contains(t, q, te.WrapperPath())
	assert.NotContains(t, q, "winetricks")
	assert.Contains(t, app.UninstallQuestion(true), "winetricks")
}
