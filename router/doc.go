// Package router resolves messages against a graph's connection table and
// moves them between extension groups.
//
// Sends from an extension are resolved by (source extension, message kind,
// message name) against an immutable route table built at engine start. One
// destination receives the original message; additional destinations receive
// deep copies with fresh identities, so no two handlers ever share mutable
// message state. Delivery is an enqueue onto the destination group's mailbox,
// which preserves FIFO order per sender goroutine.
//
// Commands additionally flow through a pending-result table keyed by the
// command's origin id. Results returned by destination extensions are
// correlated back to the sender's handler, which always runs on the sender's
// own group goroutine. A command with no route gets an immediate NoRoute
// result; a result with no pending entry is a stale result, counted and
// discarded; commands still pending when the engine tears down are answered
// with Aborted before any group goroutine exits.
package router
