// TEST TYPE: Unit Test
// DEPENDENCIES: httptest release index
// PURPOSE: Verify version selection, fallback behavior and per-run memoization

package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/types"
)

const index = `[
  {"tag_name": "v1.1", "assets": [
    {"name": "Engine-1.10.0.tar.gz", "browser_download_url": "https://dl.example/Engine-1.10.0.tar.gz"},
    {"name": "Engine-1.10.0.tar.gz.sha256", "browser_download_url": "https://dl.example/x"},
    {"name": "Other-9.0.0.tar.gz", "browser_download_url": "https://dl.example/Other"}
  ]},
  {"tag_name": "v1.0", "assets": [
    {"name": "Engine-1.9.3.tar.gz", "browser_download_url": "https://dl.example/Engine-1.9.3.tar.gz"},
    {"name": "Engine-nightly.tar.gz", "browser_download_url": "https://dl.example/nightly"}
  ]},
  {"tag_name": "draft", "draft": true, "assets": [
    {"name": "Engine-99.0.0.tar.gz", "browser_download_url": "https://dl.example/draft"}
  ]}
]`

func testConfig(indexURL string) *config.Config {
	return &config.Config{
		Network: config.Network{Timeout: 2 * time.Second, UserAgent: "wrapup-test", Token: "tok"},
		Engine: config.Artifact{
			IndexURL:     indexURL,
			DownloadBase: "https://fallback.example/dl/",
			Prefix:       "Engine-",
			Suffix:       ".tar.gz",
			Fallback:     "Engine-1.0.0.tar.gz",
		},
		Template: config.Artifact{
			IndexURL:     indexURL,
			DownloadBase: "https://fallback.example/tpl",
			Prefix:       "Template-",
			Suffix:       ".tar.gz",
			Fallback:     "Template-2.0.tar.gz",
		},
		Checksums: map[string]string{"Engine-1.10.0.tar.gz": "ABC"},
	}
}

func indexServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "wrapup-test", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolve_PicksGreatestSemver(t *testing.T) {
	srv, hits := indexServer(t, http.StatusOK, index)
	r := New(testConfig(srv.URL), nil)

	id, err := r.Resolve(context.Background(), types.ArtifactEngine)
	require.NoError(t, err)
	assert.Equal(t, "Engine-1.10.0.tar.gz", id.Name)
	assert.Equal(t, "1.10.0", id.Version)
	assert.Equal(t, "https://dl.example/Engine-1.10.0.tar.gz", id.URL)
	assert.Equal(t, "abc", id.SHA256)
	assert.False(t, id.Fallback)

	// Memoized for the rest of the run
	again, err := r.Resolve(context.Background(), types.ArtifactEngine)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestResolve_NoMatchFallsBack(t *testing.T) {
	srv, _ := indexServer(t, http.StatusOK, index)
	r := New(testConfig(srv.URL), nil)

	id, err := r.Resolve(context.Background(), types.ArtifactTemplate)
	require.NoError(t, err)
	assert.True(t, id.Fallback)
	assert.Equal(t, "Template-2.0.tar.gz", id.Name)
	assert.Equal(t, "2.0", id.Version)
	assert.Equal(t, "https://fallback.example/tpl/Template-2.0.tar.gz", id.URL)
}

func TestResolve_FailuresFallBackAndAreNotMemoized(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"rate limited", http.StatusForbidden, `{"message":"rate limit"}`},
		{"undecodable", http.StatusOK, "<html>"},
		{"empty index", http.StatusOK, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := indexServer(t, tt.status, tt.body)
			r := New(testConfig(srv.URL), nil)

			for i := 0; i < 2; i++ {
				id, err := r.Resolve(context.Background(), types.ArtifactEngine)
				require.NoError(t, err)
				assert.True(t, id.Fallback)
				assert.Equal(t, "Engine-1.0.0.tar.gz", id.Name)
				assert.Equal(t, "https://fallback.example/dl/Engine-1.0.0.tar.gz", id.URL)
			}
			// Every call retries the network
			assert.Equal(t, int32(2), atomic.LoadInt32(hits))
		})
	}
}

func TestResolve_NetworkDown(t *testing.T) {
	r := New(testConfig("http://127.0.0.1:1/releases"), nil)
	id, err := r.Resolve(context.Background(), types.ArtifactEngine)
	require.NoError(t, err)
	assert.True(t, id.Fallback)
}

func TestResolve_SingleReleaseObject(t *testing.T) {
	srv, _ := indexServer(t, http.StatusOK,
		`{"tag_name":"v2","assets":[{"name":"Template-3.1.tar.gz","browser_download_url":""}]}`)
	r := New(testConfig(srv.URL), nil)

	id, err := r.Resolve(context.Background(), types.ArtifactTemplate)
	require.NoError(t, err)
	assert.False(t, id.Fallback)
	assert.Equal(t, "3.1", id.Version)
	// Missing download URL is composed from the base
	assert.Equal(t, "https://fallback.example/tpl/Template-3.1.tar.gz", id.URL)
}

func TestResolve_UnknownKind(t *testing.T) {
	r := New(testConfig(""), nil)
	_, err := r.Resolve(context.Background(), "plugin")
	assert.Error(t, err)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.10.0", "1.9.3", 1},
		{"v2.0", "1.99", 1},
		{"24.0.7_7", "24.0.7_10", -1},
		{"24.0.7_7", "24.0.7", 1},
		{"1.0.0", "nightly", 1},
		{"alpha", "beta", -1},
		{"1.0.0-rc1", "1.0.0", -1},
		{"3.0", "3.0.0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, compareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, compareVersions(tt.b, tt.a))
		})
	}
}

func TestVersionOf(t *testing.T) {
	v, ok := versionOf("WS12WineCX24.0.7_7.tar.xz", "WS12WineCX", ".tar.xz")
	assert.True(t, ok)
	assert.Equal(t, "24.0.7_7", v)

	_, ok = versionOf("WS12WineCX.tar.xz", "WS12WineCX", ".tar.xz")
	assert.False(t, ok)
	_, ok = versionOf("Other.tar.xz", "WS12WineCX", ".tar.xz")
	assert.False(t, ok)
}
