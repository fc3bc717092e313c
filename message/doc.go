// Package message defines the typed units of communication routed through an
// agentgraph engine: commands, command results, data, audio frames, and video
// frames.
//
// Every message carries an immutable envelope (process-unique id, routing name,
// source location) and a mutable ordered property bag. Messages never cross a
// goroutine boundary by reference: the router deep-clones a message per
// destination so concurrent handling can never share mutable state.
//
// Commands expect a correlated reply. A CmdResult references its originating
// command through InResponseTo and may be streamed: any number of non-final
// results may precede the terminal one. The terminal result carries one of the
// status codes Ok, NoRoute, Aborted, or Error.
package message
