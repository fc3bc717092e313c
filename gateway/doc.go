// Package gateway serves the process diagnostics surface: Prometheus metrics
// at /metrics, a liveness probe at /healthz, and a websocket feed at /ws
// streaming app and engine lifecycle events as JSON.
//
// The gateway is an operator window into the runtime, not a message
// transport; graph traffic never passes through it.
package gateway
