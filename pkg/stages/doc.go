// Package stages holds the provisioning chain and the orchestrator that
// walks it.
//
// Every stage pairs a completion predicate with a body. The predicate only
// inspects the host: installed packages, marker files inside the wrapper,
// the installer log, the keys of the config store. The orchestrator runs a
// body only when its predicate fails, and checks the predicate again
// afterwards, so a stage that claims success without producing its
// evidence fails the run. Running the chain on a provisioned host skips
// every stage and touches neither the network nor the filesystem.
//
// The chain is:
//
//	preflight
//	base-runtime-present
//	wrapper-assembled
//	dependencies-installed
//	guest-installed
//	audio-environment-configured
//
// followed by the run summary, which the caller renders from the returned
// RunReport.
package stages
