package types

import "time"

// ArtifactKind distinguishes the versioned payloads wrapup downloads
type ArtifactKind string

const (
	// ArtifactEngine is the runtime engine injected into the wrapper
	ArtifactEngine ArtifactKind = "engine"

	// ArtifactTemplate is the wrapper skeleton the wrapper is copied from
	ArtifactTemplate ArtifactKind = "template"
)

// ArtifactIdentifier names a versioned archive. It is resolved once per run
// and treated as immutable afterwards.
type ArtifactIdentifier struct {
	Kind    ArtifactKind `json:"kind" toml:"kind"`
	Name    string       `json:"name" toml:"name"`
	Version string       `json:"version" toml:"version"`
	URL     string       `json:"url" toml:"url"`
	// Fallback is true when the remote index could not supply the name
	Fallback bool `json:"fallback" toml:"fallback"`
	// SHA256 is the expected content checksum, if one is pinned
	SHA256 string `json:"sha256,omitempty" toml:"sha256,omitempty"`
}

// String returns the archive name
func (a ArtifactIdentifier) String() string {
	return a.Name
}

// CachedArchive is a verified download living in the content cache
type CachedArchive struct {
	ID       ArtifactIdentifier
	Path     string
	Size     int64
	Checksum string
	// Hit is true when the archive was already cached and no network access happened
	Hit       bool
	FetchedAt time.Time
}
