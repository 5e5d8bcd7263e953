// Package types defines the core types and interfaces used throughout wrapup.
// This includes the FS seam used by completion predicates, artifact
// identifiers, configuration settings and stage statuses.
package types
