// Package metric manages Prometheus metric registration for the agentgraph
// runtime.
//
// MetricsRegistry wraps a dedicated prometheus.Registry (plus the standard Go
// and process collectors) and namespaces registrations per component so two
// packages cannot silently collide. Packages that record metrics keep their
// own unexported metrics struct with nil-safe record methods; a nil registry
// disables metrics without conditional call sites.
package metric
