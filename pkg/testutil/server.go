package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ArtifactServer serves release indexes under /index/<name> and files
// under /download/<name>, counting every request it answers.
type ArtifactServer struct {
	*httptest.Server

	mu      sync.Mutex
	files   map[string][]byte
	indexes map[string][]string
	status  map[string]int
	hits    map[string]int
}

// NewArtifactServer starts a server that is closed when the test ends
func NewArtifactServer(t *testing.T) *ArtifactServer {
	t.Helper()
	s := &ArtifactServer{
		files:   map[string][]byte{},
		indexes: map[string][]string{},
		status:  map[string]int{},
		hits:    map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// AddFile publishes data as /download/name and returns its URL
func (s *ArtifactServer) AddFile(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return s.DownloadURL(name)
}

// Publish makes the index /index/index list the named files as assets
// of a single release, and returns the index URL
func (s *ArtifactServer) Publish(index string, names ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[index] = append([]string(nil), names...)
	return s.IndexURL(index)
}

// SetStatus makes requests for path answer with code and no body.
// A code of 0 restores normal behavior.
func (s *ArtifactServer) SetStatus(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.status, path)
		return
	}
	s.status[path] = code
}

// IndexURL is the URL of the named release index
func (s *ArtifactServer) IndexURL(index string) string {
	return s.URL + "/index/" + index
}

// DownloadURL is the URL of the named file
func (s *ArtifactServer) DownloadURL(name string) string {
	return s.URL + "/download/" + name
}

// DownloadBase is the prefix every DownloadURL starts with
func (s *ArtifactServer) DownloadBase() string {
	return s.URL + "/download"
}

// Hits returns how many requests path received
func (s *ArtifactServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Downloads returns how many requests hit /download/ paths
func (s *ArtifactServer) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path, c := range s.hits {
		if strings.HasPrefix(path, "/download/") {
			n += c
		}
	}
	return n
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int    `json:"size"`
}

type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

func (s *ArtifactServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	code, forced := s.status[r.URL.Path]
	s.mu.Unlock()

	if forced {
		w.WriteHeader(code)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/index/"):
		s.mu.Lock()
		names, ok := s.indexes[strings.TrimPrefix(r.URL.Path, "/index/")]
		rel := release{TagName: "v1.0"}
		for _, n := range names {
			rel.Assets = append(rel.Assets, asset{Name: n, BrowserDownloadURL: s.DownloadURL(n), Size: len(s.files[n])})
		}
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]release{rel})
	case strings.HasPrefix(r.URL.Path, "/download/"):
		s.mu.Lock()
		data, ok := s.files[strings.TrimPrefix(r.URL.Path, "/download/")]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	default:
		// HEAD probes and anything else
		w.WriteHeader(http.StatusOK)
	}
}
