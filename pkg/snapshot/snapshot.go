// Package snapshot takes safety copies of files and trees immediately
// before they are overwritten or removed.
package snapshot

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/filesystem"
	"github.com/arthur-debert/wrapup/pkg/logging"
)

// timestampLayout sorts lexically in chronological order
const timestampLayout = "20060102T150405.000000000Z"

// sourceFile records where a snapshot was taken from
const sourceFile = ".source"

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Snapshot is one safety copy
type Snapshot struct {
	Label     string    `json:"label" yaml:"label"`
	Path      string    `json:"path" yaml:"path"`
	Source    string    `json:"source" yaml:"source"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Content is the copied file or tree inside the snapshot directory
func (s Snapshot) Content() string {
	return filepath.Join(s.Path, filepath.Base(s.Source))
}

// Manager owns the snapshot directory
type Manager struct {
	dir    string
	keep   int
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Manager storing snapshots under dir and keeping the newest
// keep per label. keep 0 disables pruning.
func New(dir string, keep int) *Manager {
	return &Manager{
		dir:    dir,
		keep:   keep,
		now:    time.Now,
		logger: logging.GetLogger("snapshot"),
	}
}

// Dir returns the snapshot root
func (m *Manager) Dir() string { return m.dir }

// Take copies source into a new snapshot labelled label. A missing source
// yields a nil snapshot and no error: there is nothing to lose.
func (m *Manager) Take(label, source string) (*Snapshot, error) {
	if _, err := os.Lstat(source); err != nil {
		if os.IsNotExist(err) {
			m.logger.Debug().Str("source", source).Msg("Nothing to snapshot")
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrSnapshot, "failed to stat %s", source)
	}

	label = sanitize(label)
	created := m.now().UTC()
	snapDir := filepath.Join(m.dir, label+"-"+created.Format(timestampLayout))
	if err := os.MkdirAll(snapDir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDirCreate, "failed to create snapshot dir %s", snapDir)
	}

	snap := &Snapshot{Label: label, Path: snapDir, Source: source, CreatedAt: created}
	if err := filesystem.CopyTree(source, snap.Content()); err != nil {
		_ = os.RemoveAll(snapDir)
		return nil, errors.Wrapf(err, errors.ErrSnapshot, "failed to snapshot %s", source)
	}
	if err := os.WriteFile(filepath.Join(snapDir, sourceFile), []byte(source+"\n"), 0644); err != nil {
		_ = os.RemoveAll(snapDir)
		return nil, errors.Wrapf(err, errors.ErrSnapshot, "failed to record snapshot source")
	}

	m.logger.Info().Str("label", label).Str("source", source).Str("path", snapDir).Msg("Safety snapshot taken")

	if m.keep > 0 {
		if _, err := m.Prune(label); err != nil {
			m.logger.Warn().Err(err).Str("label", label).Msg("Snapshot pruning failed")
		}
	}
	return snap, nil
}

// List returns the snapshots for label, oldest first. An empty label lists
// every snapshot.
func (m *Manager) List(label string) ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrSnapshot, "failed to read %s", m.dir)
	}

	var out []Snapshot
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		snap, ok := m.parse(e.Name())
		if !ok {
			continue
		}
		if label != "" && snap.Label != sanitize(label) {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Label < out[j].Label
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Latest returns the newest snapshot for label
func (m *Manager) Latest(label string) (*Snapshot, error) {
	snaps, err := m.List(label)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, errors.Newf(errors.ErrNotFound, "no snapshot for %s", label)
	}
	latest := snaps[len(snaps)-1]
	return &latest, nil
}

// Restore copies the newest snapshot for label back over its source
func (m *Manager) Restore(label string) (*Snapshot, error) {
	snap, err := m.Latest(label)
	if err != nil {
		return nil, err
	}
	if snap.Source == "" {
		return nil, errors.Newf(errors.ErrSnapshot, "snapshot %s has no recorded source", snap.Path)
	}
	if err := os.RemoveAll(snap.Source); err != nil {
		return nil, errors.Wrapf(err, errors.ErrSnapshot, "failed to clear %s", snap.Source)
	}
	if err := filesystem.CopyTree(snap.Content(), snap.Source); err != nil {
		return nil, errors.Wrapf(err, errors.ErrSnapshot, "failed to restore %s", snap.Source)
	}
	m.logger.Info().Str("label", snap.Label).Str("source", snap.Source).Msg("Snapshot restored")
	return snap, nil
}

// Prune removes all but the newest keep snapshots of label and returns
// the removed ones. An empty label prunes every label independently.
func (m *Manager) Prune(label string) ([]Snapshot, error) {
	if m.keep <= 0 {
		return nil, nil
	}
	snaps, err := m.List(label)
	if err != nil {
		return nil, err
	}

	byLabel := map[string][]Snapshot{}
	for _, s := range snaps {
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}

	var removed []Snapshot
	for _, group := range byLabel {
		if len(group) <= m.keep {
			continue
		}
		for _, s := range group[:len(group)-m.keep] {
			if err := os.RemoveAll(s.Path); err != nil {
				return removed, errors.Wrapf(err, errors.ErrSnapshot, "failed to remove %s", s.Path)
			}
			m.logger.Debug().Str("path", s.Path).Msg("Pruned snapshot")
			removed = append(removed, s)
		}
	}
	return removed, nil
}

func (m *Manager) parse(name string) (Snapshot, bool) {
	i := strings.LastIndex(name, "-")
	if i <= 0 || i == len(name)-1 {
		return Snapshot{}, false
	}
	created, err := time.Parse(timestampLayout, name[i+1:])
	if err != nil {
		return Snapshot{}, false
	}
	snap := Snapshot{
		Label:     name[:i],
		Path:      filepath.Join(m.dir, name),
		CreatedAt: created,
	}
	if data, err := os.ReadFile(filepath.Join(snap.Path, sourceFile)); err == nil {
		snap.Source = strings.TrimSpace(string(data))
	}
	return snap, true
}

func sanitize(label string) string {
	label = strings.Trim(unsafeLabel.ReplaceAllString(label, "-"), "-")
	if label == "" {
		return "snapshot"
	}
	return label
}
