// Package state persists the small record of facts that filesystem
// inspection cannot recover: the last preflight pass, the identifiers
// resolved by the last run and each stage's last outcome.
package state
