// Package extension hosts the behavioral units of a graph and the cooperative
// scheduler that drives them.
//
// An Extension receives messages, may emit messages, and may return results
// for commands it received. Extensions are grouped: every extension group owns
// exactly one goroutine and one inbound FIFO mailbox, and the group loop
// invokes handlers one at a time. Two extensions in the same group never run
// concurrently, which eliminates intra-group locking; extensions in different
// groups run genuinely in parallel.
//
// Each extension acts on the world exclusively through its Env, the
// single-owner capability handle bound to it for its entire lifetime. Env
// methods must only be called from the owning group's goroutine; anything
// that needs to reach another thread goes through the router, which marshals
// the work onto the destination group's mailbox.
//
// A group's loop normally runs on a dedicated goroutine, but the Driver seam
// lets a foreign runtime host the loop on its own scheduler instead, as long
// as it preserves the one-consumer-per-mailbox contract.
package extension
