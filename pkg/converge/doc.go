// Package converge applies typed settings to a property list store with
// set-or-create semantics.
//
// Keys use ':' to address nested dictionaries ("Environment:PATH").
// Booleans are stored as integers 0 or 1. Values are stored verbatim, so
// placeholders such as $HOME are left for the consuming runtime to expand.
package converge
