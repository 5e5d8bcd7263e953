// TEST TYPE: Integration Test
// DEPENDENCIES: real filesystem, httptest artifact server, FakeHost
// PURPOSE: Verify whole provisioning runs: first run, no-op re-runs,
// fallback resolution, recovery from partial state and best-effort
// configuration

package stages

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/testutil"
	"github.com/arthur-debert/wrapup/pkg/types"
	"github.com/arthur-debert/wrapup/pkg/wrapper"
)

func provision(t *testing.T, te *testutil.TestEnvironment, opts Options) (types.RunReport, *Env, error) {
	t.Helper()
	env, err := NewEnv(te.Config(), te.Paths, te.Runner, EnvOptions{})
	require.NoError(t, err)
	o, err := NewDefault()
	require.NoError(t, err)
	report, err := o.Run(context.Background(), env, opts)
	return report, env, err
}

func statuses(report types.RunReport) map[string]types.StageStatus {
	out := map[string]types.StageStatus{}
	for _, s := range report.Stages {
		out[s.Name] = s.Status
	}
	return out
}

func TestProvision_FirstRunThenNoOp(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	cfg := te.Config()

	report, env, err := provision(t, te, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, report.Outcome)
	require.Len(t, report.Stages, 6)
	for _, s := range report.Stages {
		assert.Equal(t, types.StageStatusDone, s.Status, s.Name)
	}

	target := te.WrapperPath()
	assert.FileExists(t, filepath.Join(target, cfg.Wrapper.EngineDir, "bin", "wine"))
	assert.FileExists(t, filepath.Join(target, cfg.Guest.Marker))
	assert.True(t, te.Host.Installed("sikarugir", true))
	assert.True(t, te.Host.Installed("winetricks", false))

	store := testutil.ReadFile(t, env.ConfigStore())
	assert.Contains(t, store, "<string>Guest</string>")
	assert.Contains(t, store, "<key>Environment</key>")
	assert.Contains(t, store, "<integer>60</integer>")

	deps := testutil.ReadFile(t, filepath.Join(target, cfg.Wrapper.PrefixDir, cfg.Dependencies.LogFile))
	for _, pkg := range cfg.Dependencies.Packages {
		assert.Contains(t, deps, pkg)
	}

	rec, err := env.StateFile.Load()
	require.NoError(t, err)
	assert.Equal(t, testutil.EngineArchive, rec.Artifacts["engine"].Name)
	assert.Equal(t, testutil.TemplateArchive, rec.Artifacts["template"].Name)
	assert.NotNil(t, rec.Preflight)

	digest := testutil.TreeDigest(t, target)
	downloads := te.Server.Downloads()
	te.Runner.Reset()

	// Nothing is left to do: no stage runs, no download happens and the
	// wrapper is byte-identical
	for i := 0; i < 2; i++ {
		report, _, err = provision(t, te, Options{})
		require.NoError(t, err)
		assert.True(t, report.AllSkipped(), "run %d: %v", i, statuses(report))
		assert.Equal(t, digest, testutil.TreeDigest(t, target))
		assert.Equal(t, downloads, te.Server.Downloads())
	}
	for _, call := range te.Runner.Calls() {
		assert.True(t, strings.HasPrefix(call, "brew list"), "unexpected command %q", call)
	}
}

func TestProvision_DryRunOnFreshHost(t *testing.T) {
	te := testutil.NewTestEnvironment(t)

	report, env, err := provision(t, te, Options{DryRun: true})
	require.NoError(t, err)
	for _, s := range report.Stages {
		assert.Equal(t, types.StageStatusWouldRun, s.Status, s.Name)
	}
	assert.NoDirExists(t, te.WrapperPath())
	assert.Zero(t, te.Server.Downloads())
	assert.NoFileExists(t, env.StateFile.Path())
}

func TestProvision_FallsBackWhenIndexHasNoMatch(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Server.AddFile("Engine-1.0.0.tar.gz", testutil.TarGz(t, testutil.EngineEntries()...))
	te.Server.Publish("engine", "Unrelated-3.0.zip")

	_, env, err := provision(t, te, Options{})
	require.NoError(t, err)

	engine := env.State.Artifacts["engine"]
	assert.True(t, engine.Fallback)
	assert.Equal(t, "Engine-1.0.0.tar.gz", engine.Name)
	assert.False(t, env.State.Artifacts["template"].Fallback)
	assert.Equal(t, 1, te.Server.Hits("/download/Engine-1.0.0.tar.gz"))
}

func TestProvision_FallsBackWhenIndexIsDown(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Server.AddFile("Template-1.0.tar.gz", testutil.TarGz(t, testutil.TemplateEntries()...))
	te.Server.SetStatus("/index/template", 503)

	_, env, err := provision(t, te, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Template-1.0.tar.gz", env.State.Artifacts["template"].Name)
}

func TestProvision_RebuildsPartialWrapper(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	target := te.WrapperPath()
	testutil.CreateFile(t, target, "Contents/Info.plist", "<plist>user edits</plist>")
	testutil.CreateFile(t, target, "Contents/half-copied", "x")

	report, env, err := provision(t, te, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusDone, statuses(report)[WrapperReady])
	assert.NoFileExists(t, filepath.Join(target, "Contents/half-copied"))
	assert.True(t, env.Assembler.Assembled(target))

	snaps, err := env.Snapshots.List(wrapper.SnapshotLabel)
	require.NoError(t, err)
	var contents []string
	for _, s := range snaps {
		contents = append(contents, testutil.ReadFile(t, s.Content()))
	}
	assert.Contains(t, contents, "<plist>user edits</plist>")
}

func TestProvision_CorruptCachedEngineIsDiscarded(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	cached := te.Paths.ArchivePath(types.ArtifactEngine, testutil.EngineArchive)
	testutil.CreateFile(t, filepath.Dir(cached), filepath.Base(cached), "not an archive")

	report, _, err := provision(t, te, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrExtract))
	assert.Equal(t, WrapperReady, report.FailedStage)
	assert.NoFileExists(t, cached)
	assert.NoDirExists(t, te.WrapperPath())

	// The next run downloads the archive again and succeeds
	_, _, err = provision(t, te, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, te.Server.Hits("/download/"+testutil.EngineArchive))
}

func TestProvision_DependencyRetriedOnce(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Host.FailDependency("corefonts", 1)

	_, _, err := provision(t, te, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, te.Runner.Count("winetricks -q corefonts"))
	assert.Equal(t, 1, te.Runner.Count("winetricks -q vcrun2019"))
}

func TestProvision_DependencyFailureResumes(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Host.FailDependency("corefonts", 2)

	report, _, err := provision(t, te, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrDependencyInstall))
	assert.Equal(t, Dependencies, errors.StageOf(err))
	assert.Equal(t, Dependencies, report.FailedStage)
	assert.Len(t, report.Stages, 4)

	// Earlier work is kept; only the missing package is installed
	te.Runner.Reset()
	report, _, err = provision(t, te, Options{})
	require.NoError(t, err)
	st := statuses(report)
	assert.Equal(t, types.StageStatusSkipped, st[Preflight])
	assert.Equal(t, types.StageStatusSkipped, st[BaseRuntime])
	assert.Equal(t, types.StageStatusSkipped, st[WrapperReady])
	assert.Equal(t, types.StageStatusDone, st[Dependencies])
	assert.Equal(t, 1, te.Runner.Count("winetricks"))
}

func TestProvision_GuestNotConfigured(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Set("guest.installer_url", "")

	report, _, err := provision(t, te, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrGuestInstall))
	assert.Equal(t, GuestInstalled, report.FailedStage)
	assert.Contains(t, err.Error(), "guest.installer_url")
}

func TestProvision_GuestInstallerFailure(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	cfg := te.Config()
	wine := filepath.Join(cfg.Wrapper.Path, cfg.Wrapper.EngineDir, "bin", "wine")
	te.Runner.On(wine, func(c execx.Command) (execx.Result, error) {
		return execx.Result{ExitCode: 2}, errors.New(errors.ErrCommand, "installer exited 2")
	})

	report, _, err := provision(t, te, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrGuestInstall))
	assert.Equal(t, GuestInstalled, report.FailedStage)
	assert.NoFileExists(t, filepath.Join(cfg.Wrapper.Path, cfg.Guest.Marker))
}

func TestProvision_BadSettingIsBestEffort(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Set("audio.settings", []interface{}{
		map[string]interface{}{"key": "Environment:PULSE_LATENCY_MSEC", "type": "integer", "value": "sixty"},
		map[string]interface{}{"key": "Environment:WINEDLLOVERRIDES", "type": "string", "value": "dsound=n,b"},
	})

	report, env, err := provision(t, te, Options{})
	require.NoError(t, err)
	audio, ok := report.Stage(AudioEnv)
	require.True(t, ok)
	assert.Equal(t, types.StageStatusDone, audio.Status)
	assert.Contains(t, audio.Message, "1 setting(s) not applied")
	assert.Equal(t, []string{"Environment:PULSE_LATENCY_MSEC"}, env.FailedKeys(AudioEnv))

	store := testutil.ReadFile(t, env.ConfigStore())
	assert.Contains(t, store, "dsound=n,b")
	assert.NotContains(t, store, "PULSE_LATENCY_MSEC")
}

func TestProvision_PreflightFailureMutatesNothing(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	te.Set("preflight.platforms", []interface{}{"plan9/mips"})

	report, env, err := provision(t, te, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPreflight))
	assert.Equal(t, Preflight, report.FailedStage)
	assert.Nil(t, env.State.Preflight)
	assert.NoDirExists(t, te.WrapperPath())
	assert.Empty(t, te.Runner.Calls())
	_, statErr := os.Stat(te.Paths.CacheDir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestProvision_CorruptConfigStoreIsBestEffort(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	cfg := te.Config()

	_, env, err := provision(t, te, Options{})
	require.NoError(t, err)
	store := env.ConfigStore()
	require.NoError(t, os.WriteFile(store, []byte("<plist><dict><key>x"), 0644))

	report, env, err := provision(t, te, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, report.Outcome)
	assert.Empty(t, report.FailedStage)

	st := statuses(report)
	assert.Equal(t, types.StageStatusDone, st[WrapperReady])
	assert.Equal(t, types.StageStatusDone, st[AudioEnv])
	assert.Equal(t, types.StageStatusSkipped, st[Dependencies])
	assert.Equal(t, types.StageStatusSkipped, st[GuestInstalled])

	assert.Len(t, env.FailedKeys(WrapperReady), len(cfg.Wrapper.Settings))
	assert.Len(t, env.FailedKeys(AudioEnv), len(cfg.Audio.Settings))
	audio, ok := report.Stage(AudioEnv)
	require.True(t, ok)
	assert.Contains(t, audio.Message, "setting(s) not applied")

	assert.Equal(t, "<plist><dict><key>x", testutil.ReadFile(t, store))
}

type idleTransport struct {
	closed int
}

func (t *idleTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return http.DefaultTransport.RoundTrip(r)
}

func (t *idleTransport) CloseIdleConnections() {
	t.closed++
}

func TestRun_ReleasesIdleConnections(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	transport := &idleTransport{}
	env, err := NewEnv(te.Config(), te.Paths, te.Runner, EnvOptions{Client: &http.Client{Transport: transport}})
	require.NoError(t, err)

	o, err := NewOrchestrator(&scriptedStage{name: "a"})
	require.NoError(t, err)
	_, err = o.Run(context.Background(), env, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, transport.closed)
}

func TestProvision_RepairsRemovedLink(t *testing.T) {
	te := testutil.NewTestEnvironment(t)
	cfg := te.Config()
	require.NotEmpty(t, cfg.Wrapper.Links)
	link := filepath.Join(te.WrapperPath(), cfg.Wrapper.Links[0].Path)

	_, _, err := provision(t, te, Options{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(link))

	report, _, err := provision(t, te, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, types.StageStatusWouldRun, statuses(report)[WrapperReady])

	report, env, err := provision(t, te, Options{})
	require.NoError(t, err)
	st := statuses(report)
	assert.Equal(t, types.StageStatusDone, st[WrapperReady])
	assert.Equal(t, types.StageStatusSkipped, st[GuestInstalled])
	assert.True(t, env.Assembler.LinksOK(te.WrapperPath()))
	got, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, cfg.Wrapper.Links[0].Target, got)
}
