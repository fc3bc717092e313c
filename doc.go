// Package agentgraph is an in-process graph execution engine. It composes
// small units of behavior, called extensions, into directed graphs and
// routes typed messages between them.
//
// # Architecture
//
// A running process hosts one or more apps. Each app owns an addon
// registry, a metrics registry, and any number of engines, one per running
// graph:
//
//	┌─────────────────────────────────────┐
//	│              App                    │  process container,
//	│  (registry, metrics, gateway, NATS) │  predefined graphs
//	└─────────────────────────────────────┘
//	           ↓ starts
//	┌─────────────────────────────────────┐
//	│            Engine                   │  one per graph,
//	│  (spawn groups, lifecycle, stop)    │  atomic start
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│      Extension groups               │  one goroutine and one
//	│  (mailbox loop, bound extensions)   │  mailbox per group
//	└─────────────────────────────────────┘
//	           ↓ exchange
//	┌─────────────────────────────────────┐
//	│           Messages                  │  Command, CmdResult, Data,
//	│   (routed by the graph's rules)     │  AudioFrame, VideoFrame
//	└─────────────────────────────────────┘
//
// # Threading model
//
// Every extension group runs a single goroutine that drains an unbounded
// FIFO mailbox. Extensions bound to the same group never run concurrently
// with each other; extensions in different groups run in parallel. All
// lifecycle hooks and message handlers execute on the owning group's loop,
// so extension code needs no locking of its own.
//
// # Commands and results
//
// Commands expect results. The router keeps a pending table keyed by the
// command's origin id: results flow back to the sender's registered
// handler on the sender's own loop, fan-out is settled by the command's
// result policy, and commands abandoned at engine stop are answered with
// an aborted status rather than silently dropped.
//
// # Package map
//
//   - message: the five message kinds, properties, locations
//   - graph: graph definitions, validation, route tables
//   - addon: registry of extension, group, protocol, and loader factories
//   - extension: the Extension interface, groups, mailboxes, Env
//   - router: message routing and command result correlation
//   - engine: graph lifecycle, atomic start, ordered teardown
//   - app: process container, predefined graphs, Run loop
//   - protocol/natsbridge: NATS connectivity as an addon pair
//   - gateway: diagnostics HTTP server (health, metrics, event feed)
//   - config: property file loading and validation
//   - metric, errors: prometheus wrapper and error classification
package agentgraph
