package extension

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/graph"
	"github.com/c360/agentgraph/message"
)

// Driver hosts a group's loop. The default driver runs the loop on a fresh
// goroutine; a foreign runtime can supply its own driver to host the loop on
// a thread it controls, as long as exactly one invocation of loop runs.
type Driver interface {
	Run(loop func())
}

// GoroutineDriver runs the loop on a dedicated goroutine.
type GoroutineDriver struct{}

// Run implements Driver.
func (GoroutineDriver) Run(loop func()) { go loop() }

// binding ties an extension instance to its Env and its addon teardown.
type binding struct {
	name    string
	ext     Extension
	env     *Env
	destroy func()
}

// Group owns one mailbox and one loop, and hosts the extension instances
// assigned to it. All hooks of all hosted extensions run on the loop, one at
// a time, in mailbox order.
type Group struct {
	name    string
	mailbox *Mailbox
	logger  *slog.Logger
	metrics *GroupMetrics

	// exts and order are only touched on the loop via Bind, so they need no
	// lock once the loop is running.
	exts  map[string]*binding
	order []*binding

	mu       sync.Mutex
	timers   map[*Timer]struct{}
	started  bool
	stopping bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewGroup creates a group named name. Metrics may be nil.
func NewGroup(name string, logger *slog.Logger, metrics *GroupMetrics) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		name:    name,
		mailbox: NewMailbox(),
		logger:  logger.With("group", name),
		metrics: metrics,
		exts:    make(map[string]*binding),
		timers:  make(map[*Timer]struct{}),
		done:    make(chan struct{}),
	}
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Depth returns the current mailbox depth.
func (g *Group) Depth() int { return g.mailbox.Depth() }

// Start hands the loop to the driver. A nil driver means GoroutineDriver.
func (g *Group) Start(driver Driver) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Group", "Start",
			fmt.Sprintf("group %q already started", g.name))
	}
	g.started = true
	g.mu.Unlock()

	if driver == nil {
		driver = GoroutineDriver{}
	}
	driver.Run(g.loop)
	return nil
}

// Bind registers an extension instance under its node name. Must run on the
// loop, which Call arranges; the engine binds extensions through Call during
// startup.
func (g *Group) Bind(name string, ext Extension, env *Env, destroy func()) error {
	if _, exists := g.exts[name]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateRegistration, "Group", "Bind",
			fmt.Sprintf("extension %q already bound in group %q", name, g.name))
	}
	b := &binding{name: name, ext: ext, env: env, destroy: destroy}
	g.exts[name] = b
	g.order = append(g.order, b)
	return nil
}

// Unbind removes an extension binding without running its lifecycle, used by
// startup rollback for instances whose OnInit never ran. Must run on the loop.
func (g *Group) Unbind(name string) {
	b, ok := g.exts[name]
	if !ok {
		return
	}
	delete(g.exts, name)
	for i, o := range g.order {
		if o == b {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if b.destroy != nil {
		b.destroy()
	}
}

// Post enqueues fn to run on the loop. Returns false if the group is shutting
// down and fn was discarded.
func (g *Group) Post(fn func()) bool {
	ok := g.mailbox.Push(workItem{task: fn})
	g.observeDepth()
	return ok
}

// Deliver enqueues a message for the named extension. Returns false if the
// group is shutting down and the message was discarded.
func (g *Group) Deliver(dest string, msg message.Message) bool {
	ok := g.mailbox.Push(workItem{dest: dest, msg: msg})
	g.observeDepth()
	return ok
}

// Call runs fn on the loop and waits for its result. It must not be called
// from the loop itself; that would deadlock. The engine uses Call to run
// instantiation and lifecycle hooks on the owning goroutine.
func (g *Group) Call(fn func() error) error {
	errCh := make(chan error, 1)
	if !g.Post(func() { errCh <- fn() }) {
		return errors.Wrap(errors.ErrEngineStopped, "Group", "Call",
			fmt.Sprintf("group %q is stopped", g.name))
	}
	return <-errCh
}

// Stop closes the mailbox, cancels outstanding timers, and waits for the loop
// to drain remaining work and tear down its extensions. Safe to call more
// than once; later calls just wait.
func (g *Group) Stop() {
	g.stopOnce.Do(func() {
		g.mu.Lock()
		g.stopping = true
		pending := make([]*Timer, 0, len(g.timers))
		for t := range g.timers {
			pending = append(pending, t)
		}
		g.timers = make(map[*Timer]struct{})
		g.mu.Unlock()

		for _, t := range pending {
			t.timer.Stop()
		}
		g.mailbox.Close()
	})

	g.mu.Lock()
	started := g.started
	g.mu.Unlock()
	if started {
		<-g.done
	}
}

// loop pops the mailbox until it is closed and drained, then runs teardown.
func (g *Group) loop() {
	defer close(g.done)

	for {
		it, ok := g.mailbox.Pop()
		if !ok {
			break
		}
		g.observeDepth()
		g.dispatch(it)
	}

	g.teardown()
}

func (g *Group) dispatch(it workItem) {
	if it.task != nil {
		it.task()
		return
	}

	b, ok := g.exts[it.dest]
	if !ok {
		g.logger.Warn("message for unknown extension dropped",
			"dest", it.dest, "kind", it.msg.Kind().String(), "name", it.msg.Name())
		g.metrics.incDiscarded(g.name)
		return
	}

	start := time.Now()
	switch m := it.msg.(type) {
	case *message.Command:
		b.ext.OnCmd(b.env, m)
	case *message.Data:
		b.ext.OnData(b.env, m)
	case *message.AudioFrame:
		b.ext.OnAudioFrame(b.env, m)
	case *message.VideoFrame:
		b.ext.OnVideoFrame(b.env, m)
	default:
		// Results reach extensions as handler tasks, never as deliveries.
		g.logger.Warn("unroutable message kind dropped",
			"dest", it.dest, "kind", it.msg.Kind().String())
		g.metrics.incDiscarded(g.name)
		return
	}
	g.metrics.observeHandled(g.name, it.msg.Kind().String(), time.Since(start))
}

// teardown stops every hosted extension in reverse bind order: all OnStop
// hooks first, then all OnDeinit hooks, then addon destroy callbacks.
func (g *Group) teardown() {
	for i := len(g.order) - 1; i >= 0; i-- {
		b := g.order[i]
		b.ext.OnStop(b.env)
	}
	for i := len(g.order) - 1; i >= 0; i-- {
		b := g.order[i]
		b.ext.OnDeinit(b.env)
		if b.destroy != nil {
			b.destroy()
		}
	}
	if n := g.mailbox.Discarded(); n > 0 {
		g.logger.Debug("discarded mailbox items during shutdown", "count", n)
	}
}

func (g *Group) observeDepth() {
	g.metrics.setDepth(g.name, g.mailbox.Depth())
}

// Timer is a pending callback scheduled onto a group loop.
type Timer struct {
	group *Group
	timer *time.Timer
}

// After schedules fn to run on the loop after d. The timer is cancelled
// automatically if the group stops first.
func (g *Group) After(d time.Duration, fn func()) *Timer {
	t := &Timer{group: g}
	t.timer = time.AfterFunc(d, func() {
		g.forgetTimer(t)
		g.Post(fn)
	})

	g.mu.Lock()
	if g.stopping {
		g.mu.Unlock()
		t.timer.Stop()
		return t
	}
	g.timers[t] = struct{}{}
	g.mu.Unlock()
	return t
}

// Cancel stops the timer if it has not fired. Safe to call repeatedly.
func (t *Timer) Cancel() {
	t.timer.Stop()
	t.group.forgetTimer(t)
}

func (g *Group) forgetTimer(t *Timer) {
	g.mu.Lock()
	delete(g.timers, t)
	g.mu.Unlock()
}

// RegisterBuiltins registers the default extension group addon. Its instance
// is the Driver that hosts the group loop.
func RegisterBuiltins(reg *addon.Registry) error {
	return reg.Register(&addon.Registration{
		Kind: addon.KindExtensionGroup,
		Name: graph.DefaultGroupAddon,
		Factory: func(_ json.RawMessage, _ addon.Dependencies) (any, addon.DestroyFunc, error) {
			return GoroutineDriver{}, nil, nil
		},
	})
}
