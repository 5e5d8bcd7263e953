// TEST TYPE: Unit Test
// DEPENDENCIES: execx.FakeRunner, httptest
// PURPOSE: Verify each preflight check and the aggregated PREFLIGHT error

package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/execx"
)

func newTestChecker(t *testing.T, cfg config.Preflight, runner execx.Runner, free uint64) *Checker {
	t.Helper()
	c := NewChecker(cfg, runner, nil, filepath.Join(t.TempDir(), "not", "yet", "created"))
	c.platform = "darwin/arm64"
	c.freeBytes = func(string) (uint64, error) { return free, nil }
	return c
}

func TestChecker_AllPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Preflight{
		Platforms:       []string{"darwin/arm64"},
		MinFreeMB:       100,
		RequireNetwork:  true,
		NetworkProbeURL: srv.URL,
		Tools:           []string{"brew", "xattr"},
	}
	c := newTestChecker(t, cfg, execx.NewFakeRunner(), 200*bytesPerMB)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed())
	// platform, one disk, two tools, network
	assert.Len(t, report.Checks, 5)
}

func TestChecker_Failures(t *testing.T) {
	cfg := config.Preflight{
		Platforms:       []string{"darwin"},
		MinFreeMB:       100,
		RequireNetwork:  true,
		NetworkProbeURL: "http://127.0.0.1:1/unreachable",
		Tools:           []string{"brew", "xattr"},
	}
	c := newTestChecker(t, cfg, execx.NewFakeRunner().Missing("xattr"), 10*bytesPerMB)
	c.platform = "linux/amd64"

	report, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPreflight))
	assert.False(t, report.Passed())

	names := map[string]bool{}
	for _, f := range report.Failures() {
		names[f.Name] = true
	}
	assert.True(t, names["platform"])
	assert.True(t, names["tool:xattr"])
	assert.True(t, names["network"])
	assert.Len(t, report.Failures(), 4)
	assert.Contains(t, err.Error(), "missing required tool: xattr")
	assert.Contains(t, err.Error(), "insufficient disk space")
}

func TestChecker_GoosMatchesAnyArch(t *testing.T) {
	c := newTestChecker(t, config.Preflight{Platforms: []string{"darwin"}}, execx.NewFakeRunner(), 0)
	assert.True(t, c.checkPlatform().OK)
	c.platform = "windows/amd64"
	assert.False(t, c.checkPlatform().OK)
}

func TestChecker_UnmeasurableDiskIsNotFatal(t *testing.T) {
	c := newTestChecker(t, config.Preflight{MinFreeMB: 1}, execx.NewFakeRunner(), 0)
	c.freeBytes = func(string) (uint64, error) { return 0, fmt.Errorf("statfs unsupported") }

	_, err := c.Run(context.Background())
	assert.NoError(t, err)
}

func TestChecker_NetworkOptional(t *testing.T) {
	c := newTestChecker(t, config.Preflight{NetworkProbeURL: "http://127.0.0.1:1/"}, execx.NewFakeRunner(), 0)
	report, err := c.Run(context.Background())
	require.NoError(t, err)
	for _, check := range report.Checks {
		assert.NotEqual(t, "network", check.Name)
	}
}

func TestChecker_Fingerprint(t *testing.T) {
	cfg := config.Preflight{Tools: []string{"b", "a"}, MinFreeMB: 10}
	a := NewChecker(cfg, execx.NewFakeRunner(), nil, "/x")
	b := NewChecker(config.Preflight{Tools: []string{"a", "b"}, MinFreeMB: 10}, execx.NewFakeRunner(), nil, "/x")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := NewChecker(config.Preflight{Tools: []string{"a", "b"}, MinFreeMB: 20}, execx.NewFakeRunner(), nil, "/x")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)
}

func TestExistingAncestor(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, existingAncestor(filepath.Join(root, "a", "b", "c")))
	assert.Equal(t, root, existingAncestor(root))
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	if err != nil {
		t.Skipf("free space unsupported here: %v", err)
	}
	assert.Greater(t, free, uint64(0))
}
