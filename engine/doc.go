// Package engine turns a validated graph definition into a live set of
// extension groups wired through a message router.
//
// Start is atomic-or-nothing: the definition is validated and every addon
// resolved before any goroutine is spawned, and a failure in any extension's
// OnInit or OnStart hook tears the whole engine back down rather than leaving
// a partially initialized graph running. A started engine moves through
// starting, running, stopping and stopped exactly once; Stop on a stopped
// engine is a no-op.
//
// Startup order is deterministic: groups start in first-use order, extensions
// instantiate in declaration order on their owning group's goroutine, every
// OnInit completes before any OnStart runs. Teardown reverses creation order,
// after the router has answered all in-flight commands with Aborted results.
package engine
