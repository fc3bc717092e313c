package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/extension"
	"github.com/c360/agentgraph/graph"
	"github.com/c360/agentgraph/message"
	"github.com/c360/agentgraph/metric"
	"github.com/c360/agentgraph/router"
)

// State is an engine's lifecycle phase.
type State int32

// Engine lifecycle states, in order.
const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options carries the services an engine needs. Registry is required; the
// rest default to usable zero behavior.
type Options struct {
	Registry        *addon.Registry
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	Metrics         *Metrics
	GroupMetrics    *extension.GroupMetrics
	RouterMetrics   *router.Metrics
}

// extRecord tracks one live extension instance through startup and teardown.
type extRecord struct {
	node   graph.Node
	loc    message.Location
	group  *extension.Group
	ext    extension.Extension
	env    *extension.Env
	inited bool
}

// Engine owns one graph's live extension groups and their router.
type Engine struct {
	def      *graph.Definition
	registry *addon.Registry
	logger   *slog.Logger
	metrics  *Metrics
	router   *router.Router

	state atomic.Int32

	// mu serializes Stop against itself. Startup runs before the engine is
	// visible to any other goroutine.
	mu           sync.Mutex
	groups       map[string]*extension.Group
	groupOrder   []*extension.Group
	groupHandles []*addon.Handle
	records      []*extRecord
}

// Start validates the definition, spins up its groups, instantiates and
// starts every extension, and returns the running engine.
//
// Start is atomic-or-nothing. Validation and addon resolution happen before
// any goroutine is created, so a malformed graph or unknown addon spawns
// nothing. A failure in any extension's OnInit or OnStart tears down
// everything already created and returns ErrStartupFailed; no partially
// initialized graph is ever left running.
func Start(def *graph.Definition, opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "Start", "addon registry required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	begin := time.Now()
	success := false
	defer func() {
		opts.Metrics.recordStart(def.Name, success, time.Since(begin).Seconds())
	}()

	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := resolveAddons(def, opts.Registry); err != nil {
		return nil, err
	}

	e := &Engine{
		def:      def,
		registry: opts.Registry,
		logger:   opts.Logger.With("graph", def.Name),
		metrics:  opts.Metrics,
		groups:   make(map[string]*extension.Group),
	}
	e.state.Store(int32(StateStarting))

	for _, name := range def.GroupNames() {
		e.groups[name] = extension.NewGroup(name, e.logger, opts.GroupMetrics)
	}
	e.router = router.New(def.Name, def.BuildRoutes(), e.groups, e.logger, opts.RouterMetrics)

	deps := addon.Dependencies{
		Logger:   e.logger,
		Metrics:  opts.MetricsRegistry,
		Registry: opts.Registry,
	}

	if err := e.startGroups(deps); err != nil {
		e.abortStart()
		return nil, startupFailed(err)
	}
	if err := e.instantiateExtensions(deps); err != nil {
		e.abortStart()
		return nil, startupFailed(err)
	}
	if err := e.initExtensions(); err != nil {
		e.abortStart()
		return nil, startupFailed(err)
	}
	if err := e.startExtensions(); err != nil {
		e.abortStart()
		return nil, startupFailed(err)
	}

	e.state.Store(int32(StateRunning))
	e.logger.Info("engine running",
		"groups", len(e.groups), "extensions", len(e.records))
	success = true
	return e, nil
}

// resolveAddons checks that every addon the definition names is registered.
// Runs before any goroutine exists.
func resolveAddons(def *graph.Definition, registry *addon.Registry) error {
	for _, name := range def.GroupNames() {
		node := def.GroupNode(name)
		if _, ok := registry.Lookup(addon.KindExtensionGroup, node.Addon); !ok {
			return errors.WrapInvalid(errors.ErrUnknownAddon, "Engine", "Start",
				fmt.Sprintf("extension_group %q uses unregistered addon %q", name, node.Addon))
		}
	}
	for _, node := range def.ExtensionNodes() {
		if _, ok := registry.Lookup(addon.KindExtension, node.Addon); !ok {
			return errors.WrapInvalid(errors.ErrUnknownAddon, "Engine", "Start",
				fmt.Sprintf("extension %q uses unregistered addon %q", node.Name, node.Addon))
		}
	}
	return nil
}

func startupFailed(err error) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: %w", errors.ErrStartupFailed, err),
		"Engine", "Start", "graph startup aborted")
}

// startGroups instantiates each group's addon to obtain its loop driver and
// starts the loop. Creation order is GroupNames order; teardown reverses it.
func (e *Engine) startGroups(deps addon.Dependencies) error {
	for _, name := range e.def.GroupNames() {
		node := e.def.GroupNode(name)
		handle, err := e.registry.Instantiate(addon.KindExtensionGroup, node.Addon, node.Property, deps)
		if err != nil {
			return err
		}
		driver, ok := handle.Instance().(extension.Driver)
		if !ok {
			handle.Destroy()
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "startGroups",
				fmt.Sprintf("addon %q instance does not implement extension.Driver", node.Addon))
		}
		e.groupHandles = append(e.groupHandles, handle)

		g := e.groups[name]
		if err := g.Start(driver); err != nil {
			return err
		}
		e.groupOrder = append(e.groupOrder, g)
	}
	return nil
}

// instantiateExtensions creates and binds every extension instance on its
// owning group's goroutine, in declaration order.
func (e *Engine) instantiateExtensions(deps addon.Dependencies) error {
	for _, groupName := range e.def.GroupNames() {
		g := e.groups[groupName]
		for _, node := range e.def.ExtensionsInGroup(groupName) {
			node := node
			err := g.Call(func() error {
				handle, err := e.registry.Instantiate(addon.KindExtension, node.Addon, node.Property, deps)
				if err != nil {
					return err
				}
				ext, ok := handle.Instance().(extension.Extension)
				if !ok {
					handle.Destroy()
					return errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "instantiateExtensions",
						fmt.Sprintf("addon %q instance does not implement extension.Extension", node.Addon))
				}

				props, err := parseProperties(node.Property)
				if err != nil {
					handle.Destroy()
					return errors.WrapInvalid(err, "Engine", "instantiateExtensions",
						fmt.Sprintf("extension %q property decode", node.Name))
				}

				loc := message.Location{Group: groupName, Extension: node.Name}
				env := extension.NewEnv(loc, g, e.router, props, e.logger)
				if err := g.Bind(node.Name, ext, env, handle.Destroy); err != nil {
					handle.Destroy()
					return err
				}
				e.records = append(e.records, &extRecord{
					node: node, loc: loc, group: g, ext: ext, env: env,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// initExtensions runs every OnInit hook on its owning goroutine, in creation
// order. On failure, instances whose OnInit never completed are unbound so
// teardown only runs stop hooks for fully initialized extensions.
func (e *Engine) initExtensions() error {
	for i, rec := range e.records {
		rec := rec
		err := rec.group.Call(func() error { return rec.ext.OnInit(rec.env) })
		if err != nil {
			for _, later := range e.records[i:] {
				later := later
				_ = later.group.Call(func() error {
					later.group.Unbind(later.node.Name)
					return nil
				})
			}
			e.records = e.records[:i]
			return errors.Wrap(err, "Engine", "initExtensions",
				fmt.Sprintf("extension %q init", rec.node.Name))
		}
		rec.inited = true
	}
	return nil
}

// startExtensions runs every OnStart hook after all OnInit hooks completed.
func (e *Engine) startExtensions() error {
	for _, rec := range e.records {
		rec := rec
		err := rec.group.Call(func() error { return rec.ext.OnStart(rec.env) })
		if err != nil {
			return errors.Wrap(err, "Engine", "startExtensions",
				fmt.Sprintf("extension %q start", rec.node.Name))
		}
	}
	return nil
}

// abortStart tears down whatever a failed startup already created.
func (e *Engine) abortStart() {
	e.state.Store(int32(StateStopping))
	e.router.AbortPending()
	e.stopGroups()
	e.state.Store(int32(StateStopped))
}

// stopGroups stops groups and destroys their driver handles in reverse
// creation order. Each group drains its mailbox and runs stop hooks before
// Stop returns.
func (e *Engine) stopGroups() {
	for i := len(e.groupOrder) - 1; i >= 0; i-- {
		e.groupOrder[i].Stop()
	}
	for i := len(e.groupHandles) - 1; i >= 0; i-- {
		e.groupHandles[i].Destroy()
	}
}

// Stop tears the engine down: outstanding commands are answered with Aborted
// results, then every group drains and stops in reverse creation order.
// Stopping an already stopped engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) == StateStopped {
		return nil
	}

	begin := time.Now()
	e.state.Store(int32(StateStopping))

	if aborted := e.router.AbortPending(); aborted > 0 {
		e.logger.Warn("aborted pending commands at shutdown", "count", aborted)
	}
	e.stopGroups()

	e.state.Store(int32(StateStopped))
	e.metrics.recordStop(e.def.Name, time.Since(begin).Seconds())
	e.logger.Info("engine stopped")
	return nil
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Name returns the graph's name.
func (e *Engine) Name() string { return e.def.Name }

// Definition returns the graph definition the engine is running.
func (e *Engine) Definition() *graph.Definition { return e.def }

// Router returns the engine's message router.
func (e *Engine) Router() *router.Router { return e.router }

// Groups returns the engine's group names in creation order.
func (e *Engine) Groups() []string {
	names := make([]string, 0, len(e.groupOrder))
	for _, g := range e.groupOrder {
		names = append(names, g.Name())
	}
	return names
}

func parseProperties(raw json.RawMessage) (*message.Properties, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	props := message.NewProperties()
	if err := json.Unmarshal(raw, props); err != nil {
		return nil, err
	}
	return props, nil
}
