// Package paths provides centralized path handling for wrapup.
// It implements XDG Base Directory specification compliance for wrapup's
// own directories (config, cache, state, logs, snapshots) and expands the
// user-supplied locations of the wrapper and its support files.
package paths
