// TEST TYPE: Integration Test
// DEPENDENCIES: real filesystem, FakeRunner
// PURPOSE: Verify wrapper composition, no-op on complete wrappers, rebuild
// of partial wrappers and non-fatal cosmetic steps

package wrapper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/wrapup/pkg/cleanup"
	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
	"github.com/arthur-debert/wrapup/pkg/filesystem"
	"github.com/arthur-debert/wrapup/pkg/snapshot"
	"github.com/arthur-debert/wrapup/pkg/testutil"
)

type fixture struct {
	env       *testutil.TestEnvironment
	cfg       *config.Config
	runner    *execx.FakeRunner
	registry  *cleanup.Registry
	snapshots *snapshot.Manager
	asm       *Assembler
	template  string
	engine    string
	target    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewTestEnvironment(t)
	cfg := env.Config()

	template := filepath.Join(env.Root, "template")
	testutil.CreateFile(t, template, "Contents/Info.plist", testutil.TemplatePlist)
	testutil.CreateFile(t, template, "Contents/MacOS/launcher", "#!/bin/sh\n")
	testutil.CreateSymlink(t, "MacOS/launcher", filepath.Join(template, "Contents", "run"))

	runner := execx.NewFakeRunner()
	registry := cleanup.New(filesystem.NewOS())
	snapshots := snapshot.New(env.Paths.SnapshotDir(), cfg.Snapshots.Keep)

	return &fixture{
		env:       env,
		cfg:       cfg,
		runner:    runner,
		registry:  registry,
		snapshots: snapshots,
		asm:       New(cfg, runner, snapshots, registry),
		template:  template,
		engine:    testutil.WriteArchive(t, filepath.Join(env.Root, "archives"), "engine.tar.gz", testutil.EngineEntries()...),
		target:    cfg.Wrapper.Path,
	}
}

func TestAssemble_Fresh(t *testing.T) {
	f := newFixture(t)

	res, err := f.asm.Assemble(context.Background(), f.template, f.engine, f.target)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.False(t, res.Rebuilt)
	assert.Empty(t, res.Warnings)

	assert.True(t, f.asm.Assembled(f.target))
	assert.FileExists(t, filepath.Join(f.target, "Contents/SharedSupport/wine/bin/wine"))
	assert.FileExists(t, filepath.Join(f.target, "Contents/MacOS/launcher"))
	link, err := os.Readlink(filepath.Join(f.target, "Contents", "run"))
	require.NoError(t, err)
	assert.Equal(t, "MacOS/launcher", link)

	assert.True(t, f.asm.LinksOK(f.target))
	for _, l := range f.cfg.Wrapper.Links {
		got, err := os.Readlink(filepath.Join(f.target, l.Path))
		require.NoError(t, err)
		assert.Equal(t, l.Target, got)
		assert.DirExists(t, l.Target)
	}

	assert.Equal(t, []string{"xattr -dr com.apple.quarantine " + f.target}, f.runner.Calls())
	assert.Empty(t, f.registry.Pending())
}

func TestAssemble_CompleteWrapperIsNoOp(t *testing.T) {
	f := newFixture(t)
	_, err := f.asm.Assemble(context.Background(), f.template, f.engine, f.target)
	require.NoError(t, err)
	before := testutil.TreeDigest(t, f.target)
	f.runner.Reset()

	res, err := f.asm.Assemble(context.Background(), f.template, f.engine, f.target)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, f.runner.Calls())
	assert.Equal(t, before, testutil.TreeDigest(t, f.target))
}

func TestAssemble_PartialWrapperIsRebuilt(t *testing.T) {
	f := newFixture(t)
	testutil.CreateFile(t, f.target, "Contents/Info.plist", "<plist>user edits</plist>")
	testutil.CreateFile(t, f.target, "Contents/stale.bin", "half copied")
	testutil.CreateFile(t, f.target, "Contents/SharedSupport/wine/lib/partial", "x")

	res, err := f.asm.Assemble(context.Background(), f.template, f.engine, f.target)
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, "<plist>user edits</plist>", testutil.ReadFile(t, res.Snapshot.Content()))

	assert.NoFileExists(t, filepath.Join(f.target, "Contents/stale.bin"))
	assert.NoFileExists(t, filepath.Join(f.target, "Contents/SharedSupport/wine/lib/partial"))
	assert.Equal(t, testutil.TemplatePlist, testutil.ReadFile(t, filepath.Join(f.target, "Contents/Info.plist")))
	assert.True(t, f.asm.Assembled(f.target))

	snaps, err := f.snapshots.List(SnapshotLabel)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestAssemble_RebuildMatchesFreshBuild(t *testing.T) {
	fresh := newFixture(t)
	_, err := fresh.asm.Assemble(context.Background(), fresh.template, fresh.engine, fresh.target)
	require.NoError(t, err)

	partial := newFixture(t)
	testutil.CreateFile(t, partial.target, "Contents/leftover", "x")
	_, err = partial.asm.Assemble(context.Background(), partial.template, partial.engine, partial.target)
	require.NoError(t, err)

	// Link targets differ per environment; compare the copied payload
	for _, dir := range []string{"Contents/MacOS", "Contents/SharedSupport/wine"} {
		assert.Equal(t,
			testutil.TreeDigest(t, filepath.Join(fresh.target, dir)),
			testutil.TreeDigest(t, filepath.Join(partial.target, dir)), dir)
	}
}

func TestAssemble_EngineWithoutMarkerIsFatal(t *testing.T) {
	f := newFixture(t)
	engine := testutil.WriteArchive(t, t.TempDir(), "engine.tar.gz", testutil.File("wine/lib/only", "x"))

	_, err := f.asm.Assemble(context.Background(), f.template, engine, f.target)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAssembly))
	assert.NoDirExists(t, f.target, "a half-built wrapper must not survive")
	assert.Empty(t, f.registry.Pending())
	assert.Empty(t, f.runner.Calls())
}

func TestAssemble_CorruptEngineIsFatal(t *testing.T) {
	f := newFixture(t)
	engine := testutil.CreateFile(t, t.TempDir(), "engine.tar.gz", "garbage")

	_, err := f.asm.Assemble(context.Background(), f.template, engine, f.target)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrExtract))
	assert.NoDirExists(t, f.target)
}

func TestAssemble_MissingTemplate(t *testing.T) {
	f := newFixture(t)
	_, err := f.asm.Assemble(context.Background(), filepath.Join(f.env.Root, "nope"), f.engine, f.target)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAssembly))
}

func TestAssemble_QuarantineFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.runner.On("xattr", execx.Fail(1, "operation not permitted"))

	res, err := f.asm.Assemble(context.Background(), f.template, f.engine, f.target)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.True(t, f.asm.Assembled(f.target))
}

func TestClearQuarantine_WithoutXattr(t *testing.T) {
	f := newFixture(t)
	f.runner.Missing("xattr")
	require.NoError(t, f.asm.ClearQuarantine(context.Background(), f.target))
	assert.Empty(t, f.runner.Calls())
}

func TestEnsureLinks(t *testing.T) {
	f := newFixture(t)
	require.NotEmpty(t, f.cfg.Wrapper.Links)
	first := f.cfg.Wrapper.Links[0]
	second := f.cfg.Wrapper.Links[1]

	// Wrong link is replaced, a directory in the way too
	testutil.CreateSymlink(t, "/somewhere/else", filepath.Join(f.target, first.Path))
	testutil.CreateFile(t, filepath.Join(f.target, second.Path), "placeholder", "x")

	assert.Empty(t, f.asm.EnsureLinks(f.target))
	assert.True(t, f.asm.LinksOK(f.target))

	// Correct links are kept as they are
	before := testutil.TreeDigest(t, f.target)
	assert.Empty(t, f.asm.EnsureLinks(f.target))
	assert.Equal(t, before, testutil.TreeDigest(t, f.target))
}

func TestEnsureLinks_FailureIsReported(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	blocker := testutil.CreateFile(t, env.Root, "blocker", "file, not a dir")
	env.Set("wrapper.links", []interface{}{
		map[string]interface{}{"path": "Contents/Logs", "target": filepath.Join(blocker, "logs")},
		map[string]interface{}{"path": "Contents/Data", "target": filepath.Join(env.Root, "data")},
	})
	cfg := env.Config()
	asm := New(cfg, execx.NewFakeRunner(), nil, cleanup.New(filesystem.NewOS()))
	require.NoError(t, os.MkdirAll(cfg.Wrapper.Path, 0755))

	failures := asm.EnsureLinks(cfg.Wrapper.Path)
	require.Len(t, failures, 1)
	got, err := os.Readlink(filepath.Join(cfg.Wrapper.Path, "Contents/Data"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.Root, "data"), got)
}
