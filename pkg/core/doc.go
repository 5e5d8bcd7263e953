// Package core wires configuration, paths and the provisioning components
// into the operations the command line exposes: running the stage chain,
// reporting status, uninstalling and managing snapshots.
//
// An App is opened once per command invocation. It loads the layered
// configuration, reads the state record and builds the stage environment;
// every operation then works against that environment. Nothing here
// prints: results are returned for the ui package to render.
package core
