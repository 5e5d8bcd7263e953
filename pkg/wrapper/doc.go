// Package wrapper composes the runtime wrapper: a copy of the template
// tree with the engine injected into its runtime directory, the internal
// links its tooling expects, and the quarantine attribute cleared.
//
// A wrapper is either complete (its engine marker exists) or rebuilt from
// scratch. Nothing is ever patched into a partial tree.
package wrapper
