// Package cleanup tracks temporary artifacts of a run and releases them on
// every exit path.
package cleanup

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/types"
)

type entry struct {
	path string
	fn   func() error
}

// Registry collects temporary paths and release actions. Release runs them
// in reverse registration order. Paths handed over to their final owner
// are removed with Untrack before Release.
type Registry struct {
	mu       sync.Mutex
	fs       types.FS
	entries []entry
	logger  zerolog.Logger
}

// New creates an empty registry removing paths through fs
func New(fs types.FS) *Registry {
	return &Registry{fs: fs, logger: logging.GetLogger("cleanup")}
}

// Track registers path for removal on Release
func (r *Registry) Track(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{path: path})
	r.logger.Trace().Str("path", path).Msg("Tracking temporary path")
}

// Untrack drops path from the registry; it will survive Release
func (r *Registry) Untrack(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.fn == nil && e.path == path {
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
}

// Defer registers an arbitrary release action
func (r *Registry) Defer(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{fn: fn})
}

// Pending returns the tracked paths not yet released
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.fn == nil {
			out = append(out, e.path)
		}
	}
	return out
}

// Release removes every tracked path and runs every deferred action. It is
// safe to call more than once; later calls only see newly added entries.
// Failures are logged and counted, never fatal.
func (r *Registry) Release() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	failures := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var err error
		if e.fn != nil {
			err = e.fn()
		} else {
			err = r.fs.RemoveAll(e.path)
		}
		if err != nil {
			failures++
			r.logger.Warn().Err(err).Str("path", e.path).Msg("Cleanup action failed")
			continue
		}
		if e.path != "" {
			r.logger.Debug().Str("path", e.path).Msg("Removed temporary path")
		}
	}
	return failures
}
