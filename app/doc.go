// Package app hosts the process container for graph engines.
//
// An App owns the addon registry, the metrics registry, and zero or more
// engines, one per running graph. The package-level registry of live apps is
// established by Init and torn down by Deinit, which refuses to run while
// any app remains; shutdown order is apps first, process last.
//
// Run drives a configured app end to end: addon loaders, the diagnostics
// gateway, the NATS protocol connection, and every auto_start predefined
// graph, then blocks until the context is cancelled and closes everything in
// reverse.
package app
