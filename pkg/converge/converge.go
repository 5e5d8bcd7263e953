package converge

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// KeyError is a setting that could not be converged
type KeyError struct {
	Key string
	Err error
}

func (e KeyError) Error() string {
	return e.Key + ": " + e.Err.Error()
}

// Report describes one Apply call
type Report struct {
	Store     string
	Created   []string
	Updated   []string
	Unchanged []string
	Failed    []KeyError
	// Written is true when the store file was rewritten
	Written bool
}

// Changed reports whether any key was created or updated
func (r Report) Changed() bool {
	return len(r.Created)+len(r.Updated) > 0
}

// FailedKeys lists the keys of every failed setting
func (r Report) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		keys = append(keys, f.Key)
	}
	return keys
}

// Converger upserts settings into property list stores
type Converger struct {
	fs     types.FS
	logger zerolog.Logger
}

// New creates a Converger working on fs
func New(fs types.FS) *Converger {
	return &Converger{fs: fs, logger: logging.GetLogger("converge")}
}

// Apply sets every setting in store, creating missing keys with their
// declared type. Settings are independent: one that fails is logged and
// reported while the others still apply. The store is written only when
// something changed, so applying the same settings again leaves the file
// byte-identical. A missing store is created.
//
// The returned error is set only when the store itself cannot be read or
// written; every setting is then reported as failed.
func (c *Converger) Apply(store string, settings []types.ConfigSetting) (Report, error) {
	report := Report{Store: store}

	doc, created, err := c.load(store)
	if err != nil {
		failAll(&report, settings, err)
		return report, err
	}
	dict, err := rootDict(doc)
	if err != nil {
		err = errors.Wrapf(err, errors.ErrConfigStore, "invalid config store %s", store)
		failAll(&report, settings, err)
		return report, err
	}

	changed := created
	for _, s := range settings {
		outcome, err := set(dict, s)
		if err != nil {
			c.logger.Warn().Str("store", store).Str("key", s.Key).Err(err).Msg("Failed to converge setting")
			report.Failed = append(report.Failed, KeyError{Key: s.Key, Err: errors.Wrap(err, errors.ErrConfigStore, "setting not applied")})
			continue
		}
		switch outcome {
		case outcomeCreated:
			report.Created = append(report.Created, s.Key)
			changed = true
		case outcomeUpdated:
			report.Updated = append(report.Updated, s.Key)
			changed = true
		default:
			report.Unchanged = append(report.Unchanged, s.Key)
		}
	}

	if !changed {
		c.logger.Debug().Str("store", store).Msg("Config store already converged")
		return report, nil
	}

	doc.IndentTabs()
	data, err := doc.WriteToBytes()
	if err == nil {
		if err = c.fs.MkdirAll(filepath.Dir(store), 0755); err == nil {
			err = c.fs.WriteFile(store, data, 0644)
		}
	}
	if err != nil {
		err = errors.Wrapf(err, errors.ErrConfigStore, "failed to write config store %s", store)
		report.Created, report.Updated, report.Unchanged = nil, nil, nil
		failAll(&report, settings, err)
		return report, err
	}

	report.Written = true
	c.logger.Info().
		Str("store", store).
		Strs("created", report.Created).
		Strs("updated", report.Updated).
		Msg("Config store converged")
	return report, nil
}

// Converged reports whether every setting already holds in store. A
// setting that cannot be encoded never holds. An empty settings list always
// holds, whatever state the store is in.
func (c *Converger) Converged(store string, settings []types.ConfigSetting) (bool, error) {
	if len(settings) == 0 {
		return true, nil
	}
	data, err := c.fs.ReadFile(store)
	if stderrors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrConfigStore, "failed to read config store %s", store)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return false, nil
	}
	dict, err := rootDict(doc)
	if err != nil {
		return false, nil
	}

	for _, s := range settings {
		tag, text, err := s.Encode()
		if err != nil {
			return false, nil
		}
		path := s.Path()
		parent, _, err := descend(dict, path[:len(path)-1], false)
		if err != nil || parent == nil {
			return false, nil
		}
		val := lookup(parent, path[len(path)-1])
		if val == nil || val.Tag != tag || val.Text() != text {
			return false, nil
		}
	}
	return true, nil
}

// Without returns settings minus the given keys
func Without(settings []types.ConfigSetting, keys []string) []types.ConfigSetting {
	if len(keys) == 0 {
		return settings
	}
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	out := make([]types.ConfigSetting, 0, len(settings))
	for _, s := range settings {
		if !skip[s.Key] {
			out = append(out, s)
		}
	}
	return out
}

func (c *Converger) load(store string) (*etree.Document, bool, error) {
	data, err := c.fs.ReadFile(store)
	if stderrors.Is(err, fs.ErrNotExist) {
		c.logger.Debug().Str("store", store).Msg("Creating config store")
		return newPlist(), true, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, errors.ErrConfigStore, "failed to read config store %s", store)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, false, errors.Wrapf(err, errors.ErrConfigStore, "failed to parse config store %s", store)
	}
	return doc, false, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

func set(dict *etree.Element, s types.ConfigSetting) (outcome, error) {
	tag, text, err := s.Encode()
	if err != nil {
		return outcomeUnchanged, err
	}
	path := s.Path()
	parent, _, err := descend(dict, path[:len(path)-1], true)
	if err != nil {
		return outcomeUnchanged, err
	}

	name := path[len(path)-1]
	val := lookup(parent, name)
	if val == nil {
		parent.CreateElement("key").SetText(name)
		parent.CreateElement(tag).SetText(text)
		return outcomeCreated, nil
	}
	if !scalar(val) {
		return outcomeUnchanged, stderrors.New(name + " holds a " + val.Tag + " and cannot take a " + tag)
	}
	if val.Tag == tag && val.Text() == text {
		return outcomeUnchanged, nil
	}
	val.Tag = tag
	val.SetText(text)
	return outcomeUpdated, nil
}

func failAll(r *Report, settings []types.ConfigSetting, err error) {
	r.Failed = r.Failed[:0]
	for _, s := range settings {
		r.Failed = append(r.Failed, KeyError{Key: s.Key, Err: err})
	}
}
