// Package filesystem provides filesystem implementations for wrapup.
//
// NewOS is the real filesystem used at runtime; its WriteFile is atomic so
// an interrupted run never leaves a half-written configuration store.
// NewAferoFS adapts an afero.Fs, which tests use to evaluate completion
// predicates against an in-memory layout. CopyTree and CopyFile work on
// the real filesystem only.
package filesystem
