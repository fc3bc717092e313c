package router

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/extension"
	"github.com/c360/agentgraph/graph"
	"github.com/c360/agentgraph/message"
)

// pendingEntry tracks one in-flight command until its terminal result is
// delivered or the engine aborts it. received counts final results only;
// streaming partials pass through without advancing settlement.
type pendingEntry struct {
	cmdName  string
	origin   message.Location
	owner    *extension.Group
	handler  extension.ResultHandler
	policy   message.ResultPolicy
	expected int
	received int
}

// Router implements extension.Sender for one engine. The route table is
// immutable; the pending-result table is the only mutable state and is
// guarded by its own mutex so any group goroutine can send or settle.
type Router struct {
	graphName string
	routes    *graph.RouteTable
	groups    map[string]*extension.Group
	logger    *slog.Logger
	metrics   *Metrics

	mu      sync.Mutex
	pending map[string]*pendingEntry
	aborted bool
}

// New builds the router for one engine over its compiled route table and the
// engine's groups, keyed by group name. Metrics may be nil.
func New(
	graphName string, routes *graph.RouteTable, groups map[string]*extension.Group,
	logger *slog.Logger, metrics *Metrics,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		graphName: graphName,
		routes:    routes,
		groups:    groups,
		logger:    logger.With("graph", graphName),
		metrics:   metrics,
		pending:   make(map[string]*pendingEntry),
	}
}

// SendCommand resolves and fans out a command. With no matching rule the
// sender gets an immediate NoRoute result, invoked synchronously on the
// calling goroutine; that is a delivered outcome, not an error. Otherwise a
// pending entry is registered before any copy is enqueued, so a result can
// never race its own registration.
func (r *Router) SendCommand(from message.Location, cmd *message.Command, handler extension.ResultHandler) error {
	cmd.SetSource(from)

	dests := r.routes.Resolve(from, message.KindCommand, cmd.Name())
	if len(dests) == 0 {
		r.metrics.incNoRoute(r.graphName, message.KindCommand.String())
		r.logger.Debug("command has no route", "name", cmd.Name(), "source", from.String())
		if handler != nil {
			res := message.NewCmdResult(message.StatusNoRoute, cmd.OriginID())
			res.SetFinal(true)
			handler(res)
		}
		return nil
	}

	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return errors.Wrap(errors.ErrEngineStopped, "Router", "SendCommand",
			fmt.Sprintf("graph %q is stopping", r.graphName))
	}
	r.pending[cmd.OriginID()] = &pendingEntry{
		cmdName:  cmd.Name(),
		origin:   from,
		owner:    r.groups[from.Group],
		handler:  handler,
		policy:   cmd.ResultPolicy(),
		expected: len(dests),
	}
	r.metrics.setPending(r.graphName, len(r.pending))
	r.mu.Unlock()

	r.fanOut(cmd, dests)
	return nil
}

// SendMessage resolves and fans out a one-way message. No matching rule is a
// silent drop, observable only through the no-route counter.
func (r *Router) SendMessage(from message.Location, msg message.Message) error {
	msg.SetSource(from)

	dests := r.routes.Resolve(from, msg.Kind(), msg.Name())
	if len(dests) == 0 {
		r.metrics.incNoRoute(r.graphName, msg.Kind().String())
		r.logger.Debug("message has no route",
			"kind", msg.Kind().String(), "name", msg.Name(), "source", from.String())
		return nil
	}

	r.fanOut(msg, dests)
	return nil
}

// fanOut enqueues the message to every destination. The first destination
// gets the original; the rest get deep copies with fresh identities so no two
// handlers share mutable state. A command copy keeps the origin id, which is
// what results correlate on.
func (r *Router) fanOut(msg message.Message, dests []message.Location) {
	for i, dest := range dests {
		out := msg
		if i > 0 {
			out = msg.Clone()
		}

		group, ok := r.groups[dest.Group]
		if !ok {
			r.logger.Error("destination group missing", "dest", dest.String())
			r.metrics.incDropped(r.graphName)
			continue
		}
		if !group.Deliver(dest.Extension, out) {
			// The group is draining for shutdown; pending commands will be
			// answered by AbortPending.
			r.metrics.incDropped(r.graphName)
			continue
		}
		r.metrics.incRouted(r.graphName, out.Kind().String())
	}
}

// ReturnResult correlates a result back to its command's sender. Only a
// final result can settle the entry: FirstResultWins settles on the first
// one, WaitForAll settles once every destination has answered. Non-final
// results reach the handler unchanged and leave the entry pending. The entry
// is settled under the pending lock; the handler itself runs on the sender's
// group goroutine via a posted task. A result for an unknown or already
// settled command is a stale result: counted, logged, discarded.
func (r *Router) ReturnResult(from message.Location, res *message.CmdResult) error {
	res.SetSource(from)

	r.mu.Lock()
	entry, ok := r.pending[res.InResponseTo()]
	if !ok {
		r.mu.Unlock()
		r.metrics.incStale(r.graphName)
		r.logger.Warn("stale result discarded",
			"in_response_to", res.InResponseTo(), "from", from.String())
		return errors.Wrap(errors.ErrStaleResult, "Router", "ReturnResult",
			fmt.Sprintf("no pending command for result %s", res.InResponseTo()))
	}

	terminal := false
	if res.IsFinal() {
		entry.received++
		if entry.policy == message.WaitForAll {
			terminal = entry.received >= entry.expected
		} else {
			terminal = true
		}
		if terminal {
			delete(r.pending, res.InResponseTo())
			r.metrics.setPending(r.graphName, len(r.pending))
		}
	}
	r.mu.Unlock()

	// Under WaitForAll a destination's final result is not terminal for the
	// sender until the fan-in count is reached; re-stamp it so the handler
	// can tell them apart. Streaming partials keep their non-final flag.
	if res.IsFinal() {
		res.SetFinal(terminal)
	}
	r.deliverResult(entry, res)
	return nil
}

// AbortPending settles every outstanding command with an Aborted result and
// refuses new commands. Called by the engine at the start of teardown, before
// any group's mailbox closes, so every sender observes its Aborted result
// before its goroutine exits. Returns the number of commands aborted.
func (r *Router) AbortPending() int {
	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return 0
	}
	r.aborted = true
	entries := make(map[string]*pendingEntry, len(r.pending))
	for id, entry := range r.pending {
		entries[id] = entry
	}
	r.pending = make(map[string]*pendingEntry)
	r.metrics.setPending(r.graphName, 0)
	r.mu.Unlock()

	for id, entry := range entries {
		res := message.NewCmdResult(message.StatusAborted, id)
		res.SetDetail(fmt.Sprintf("engine for graph %q stopped before %q completed", r.graphName, entry.cmdName))
		res.SetFinal(true)
		r.metrics.incAborted(r.graphName)
		r.deliverResult(entry, res)
	}
	return len(entries)
}

// PendingCount returns the number of in-flight commands.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Router) deliverResult(entry *pendingEntry, res *message.CmdResult) {
	if entry.handler == nil {
		return
	}
	handler := entry.handler
	if entry.owner == nil || !entry.owner.Post(func() { handler(res) }) {
		r.logger.Warn("result handler unreachable, result dropped",
			"origin", entry.origin.String(), "in_response_to", res.InResponseTo())
		r.metrics.incDropped(r.graphName)
	}
}
