package extension

import (
	"sync"
	"sync/atomic"

	"github.com/c360/agentgraph/message"
)

// workItem is one unit of work for a group loop: either a message to deliver
// to a named extension, or a task closure (timer fire, result delivery,
// lifecycle call).
type workItem struct {
	dest string
	msg  message.Message
	task func()
}

// Mailbox is the single inbound queue of an extension group. Producers on any
// goroutine push; exactly one consumer (the group loop) pops. FIFO order is
// preserved per producer goroutine. The queue is unbounded: senders never
// block, so two groups sending to each other cannot deadlock.
//
// After Close, pushes are rejected (counted as discarded) and Pop drains the
// remaining items before reporting exhaustion.
type Mailbox struct {
	mu     sync.Mutex
	items  []workItem
	signal chan struct{}
	closed bool

	pushed    atomic.Uint64
	discarded atomic.Uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1)}
}

// Push enqueues an item. Returns false if the mailbox is closed; the item is
// discarded and counted.
func (m *Mailbox) Push(it workItem) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.discarded.Add(1)
		return false
	}
	m.items = append(m.items, it)
	m.mu.Unlock()

	m.pushed.Add(1)
	m.wake()
	return true
}

func (m *Mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Pop blocks until an item is available or the mailbox is closed and drained.
// The second return is false only when no more items will ever arrive.
func (m *Mailbox) Pop() (workItem, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			it := m.items[0]
			m.items[0] = workItem{}
			m.items = m.items[1:]
			m.mu.Unlock()
			return it, true
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return workItem{}, false
		}
		<-m.signal
	}
}

// Close rejects further pushes. Items already queued remain poppable; the
// consumer drains them before Pop reports exhaustion.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

// Depth returns the current queue length.
func (m *Mailbox) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Pushed returns the total number of accepted items.
func (m *Mailbox) Pushed() uint64 { return m.pushed.Load() }

// Discarded returns the total number of items rejected after Close.
func (m *Mailbox) Discarded() uint64 { return m.discarded.Load() }
