package state

import (
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// SchemaVersion is written into every record
const SchemaVersion = 1

// PreflightPass records a successful preflight for one host fingerprint
type PreflightPass struct {
	Fingerprint string    `toml:"fingerprint"`
	At          time.Time `toml:"at"`
}

// StageEntry is the last outcome of a stage
type StageEntry struct {
	Status  types.StageStatus `toml:"status"`
	At      time.Time         `toml:"at"`
	Message string            `toml:"message,omitempty"`
}

// Record is the explicit state record. The filesystem stays authoritative
// for artifacts; the record only carries what inspection cannot recover.
type Record struct {
	Version   int                                 `toml:"version"`
	RunID     string                              `toml:"run_id"`
	UpdatedAt time.Time                           `toml:"updated_at"`
	Preflight *PreflightPass                      `toml:"preflight,omitempty"`
	Artifacts map[string]types.ArtifactIdentifier `toml:"artifacts,omitempty"`
	Stages    map[string]StageEntry               `toml:"stages,omitempty"`
}

// NewRecord returns an empty record
func NewRecord() *Record {
	return &Record{
		Version:   SchemaVersion,
		Artifacts: map[string]types.ArtifactIdentifier{},
		Stages:    map[string]StageEntry{},
	}
}

// PreflightValid reports whether a pass for fingerprint exists that is
// younger than ttl at now. A zero ttl never trusts a previous pass.
func (r *Record) PreflightValid(fingerprint string, ttl time.Duration, now time.Time) bool {
	if r.Preflight == nil || ttl <= 0 || fingerprint == "" {
		return false
	}
	if r.Preflight.Fingerprint != fingerprint {
		return false
	}
	age := now.Sub(r.Preflight.At)
	return age >= 0 && age < ttl
}

// RecordPreflight stores a pass
func (r *Record) RecordPreflight(fingerprint string, now time.Time) {
	r.Preflight = &PreflightPass{Fingerprint: fingerprint, At: now.UTC()}
}

// SetStage stores the outcome of a stage
func (r *Record) SetStage(name string, status types.StageStatus, message string, now time.Time) {
	if r.Stages == nil {
		r.Stages = map[string]StageEntry{}
	}
	r.Stages[name] = StageEntry{Status: status, At: now.UTC(), Message: message}
}

// SetArtifact remembers the identifier resolved for a kind
func (r *Record) SetArtifact(id types.ArtifactIdentifier) {
	if r.Artifacts == nil {
		r.Artifacts = map[string]types.ArtifactIdentifier{}
	}
	r.Artifacts[string(id.Kind)] = id
}

// Reset forgets stage outcomes and the preflight pass. Artifact
// identifiers survive because the cache survives.
func (r *Record) Reset() {
	r.Stages = map[string]StageEntry{}
	r.Preflight = nil
}

// Store reads and writes a Record at a fixed path
type Store struct {
	fs     types.FS
	path   string
	logger zerolog.Logger
}

// NewStore creates a Store for the record at path
func NewStore(fs types.FS, path string) *Store {
	return &Store{fs: fs, path: path, logger: logging.GetLogger("state")}
}

// Path returns the record location
func (s *Store) Path() string { return s.path }

// Load reads the record. A missing record yields an empty one; an
// unreadable or corrupt record is logged and replaced by an empty one,
// since every predicate can fall back to inspection.
func (s *Store) Load() (*Record, error) {
	exists, err := types.Exists(s.fs, s.path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrState, "failed to stat state record %s", s.path)
	}
	if !exists {
		return NewRecord(), nil
	}

	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrState, "failed to read state record %s", s.path)
	}

	rec := NewRecord()
	if err := toml.Unmarshal(data, rec); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("State record is corrupt, starting from inspection")
		return NewRecord(), nil
	}
	if rec.Artifacts == nil {
		rec.Artifacts = map[string]types.ArtifactIdentifier{}
	}
	if rec.Stages == nil {
		rec.Stages = map[string]StageEntry{}
	}
	return rec, nil
}

// Save writes the record, creating its directory if needed
func (s *Store) Save(rec *Record, now time.Time) error {
	rec.Version = SchemaVersion
	rec.UpdatedAt = now.UTC()

	data, err := toml.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrState, "failed to encode state record")
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(s.path))
	}
	if err := s.fs.WriteFile(s.path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrState, "failed to write state record %s", s.path)
	}
	return nil
}
