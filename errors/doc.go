// Package errors provides standardized error handling for the agentgraph runtime.
// It defines the runtime's error taxonomy as sentinel variables, an error
// classification scheme (transient / invalid / fatal), and helper functions for
// consistent error wrapping across packages.
//
// Structural conditions (graph validation failures, unknown addons, startup
// failures) are fatal to the operation that raised them and are surfaced to the
// owner of the affected engine. Routing-level conditions (no route, stale
// results, aborted commands) are resolved locally by the router and never abort
// an engine.
package errors
