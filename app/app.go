package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/config"
	"github.com/c360/agentgraph/engine"
	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/extension"
	"github.com/c360/agentgraph/gateway"
	"github.com/c360/agentgraph/graph"
	"github.com/c360/agentgraph/metric"
	"github.com/c360/agentgraph/protocol/natsbridge"
	"github.com/c360/agentgraph/router"
)

// gatewayShutdownTimeout bounds how long Close waits for in-flight gateway
// requests.
const gatewayShutdownTimeout = 3 * time.Second

// App is the process container: it owns the addon registry, the metrics
// registry, and the engines running its graphs.
type App struct {
	name   string
	cfg    *config.Config
	logger *slog.Logger

	registry        *addon.Registry
	metricsRegistry *metric.MetricsRegistry
	engineMetrics   *engine.Metrics
	groupMetrics    *extension.GroupMetrics
	routerMetrics   *router.Metrics

	gw *gateway.Server

	mu      sync.Mutex
	engines map[string]*engine.Engine
	nats    *addon.Handle
	closed  bool
}

// New creates an app, registers the builtin addons, and adds the app to the
// global registry. Init must have run first. A nil cfg means defaults; a nil
// logger builds one from the configured log level.
func New(name string, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "App", "New", "app name required")
	}
	if cfg == nil {
		cfg = config.Default()
	}

	if logger == nil {
		level, err := cfg.SlogLevel()
		if err != nil {
			return nil, errors.WrapInvalid(err, "App", "New", "log level")
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	logger = logger.With("app", name)

	metricsRegistry := metric.NewMetricsRegistry()
	engineMetrics, err := engine.NewMetrics(metricsRegistry)
	if err != nil {
		return nil, err
	}
	groupMetrics, err := extension.NewGroupMetrics(metricsRegistry)
	if err != nil {
		return nil, err
	}
	routerMetrics, err := router.NewMetrics(metricsRegistry)
	if err != nil {
		return nil, err
	}

	registry := addon.NewRegistry()
	if err := extension.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	if err := natsbridge.Register(registry); err != nil {
		return nil, err
	}

	a := &App{
		name:            name,
		cfg:             cfg,
		logger:          logger,
		registry:        registry,
		metricsRegistry: metricsRegistry,
		engineMetrics:   engineMetrics,
		groupMetrics:    groupMetrics,
		routerMetrics:   routerMetrics,
		engines:         make(map[string]*engine.Engine),
	}
	if err := registerApp(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Name returns the app's name.
func (a *App) Name() string { return a.name }

// Registry returns the app's addon registry, for registering extensions
// before graphs start.
func (a *App) Registry() *addon.Registry { return a.registry }

// MetricsRegistry returns the app's metrics registry.
func (a *App) MetricsRegistry() *metric.MetricsRegistry { return a.metricsRegistry }

// StartGraph starts an engine for the definition. Graph names are unique per
// app; starting a second graph with a running name fails. Engine startup
// faults are isolated: a failed start leaves other engines untouched.
func (a *App) StartGraph(def *graph.Definition) (*engine.Engine, error) {
	if def == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "App", "StartGraph", "nil definition")
	}
	if def.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "App", "StartGraph", "graph has no name")
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.WrapInvalid(errors.ErrEngineStopped, "App", "StartGraph", "app closed")
	}
	if _, dup := a.engines[def.Name]; dup {
		a.mu.Unlock()
		return nil, errors.WrapInvalid(errors.ErrAlreadyStarted, "App", "StartGraph",
			fmt.Sprintf("graph %q already running", def.Name))
	}
	// Reserve the name so concurrent starts of the same graph collide here,
	// not inside engine startup.
	a.engines[def.Name] = nil
	a.mu.Unlock()

	e, err := engine.Start(def, engine.Options{
		Registry:        a.registry,
		Logger:          a.logger,
		MetricsRegistry: a.metricsRegistry,
		Metrics:         a.engineMetrics,
		GroupMetrics:    a.groupMetrics,
		RouterMetrics:   a.routerMetrics,
	})

	a.mu.Lock()
	if err != nil {
		delete(a.engines, def.Name)
	} else {
		a.engines[def.Name] = e
	}
	a.mu.Unlock()

	if err != nil {
		a.publish(gateway.Event{Type: gateway.EventEngineFailed, Graph: def.Name, Detail: err.Error()})
		return nil, err
	}
	a.publish(gateway.Event{Type: gateway.EventEngineStarted, Graph: def.Name})
	return e, nil
}

// StartGraphByName starts a predefined graph from the app's property file.
func (a *App) StartGraphByName(name string) (*engine.Engine, error) {
	def, ok := a.cfg.Graph(name)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "App", "StartGraphByName",
			fmt.Sprintf("no predefined graph %q", name))
	}
	return a.StartGraph(def)
}

// StopGraph stops the named engine and removes it from the app.
func (a *App) StopGraph(name string) error {
	a.mu.Lock()
	e, ok := a.engines[name]
	a.mu.Unlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrNotStarted, "App", "StopGraph",
			fmt.Sprintf("graph %q is not running", name))
	}
	if e == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "App", "StopGraph",
			fmt.Sprintf("graph %q is still starting", name))
	}

	err := e.Stop()

	a.mu.Lock()
	delete(a.engines, name)
	a.mu.Unlock()

	a.publish(gateway.Event{Type: gateway.EventEngineStopped, Graph: name})
	return err
}

// StopAll stops every running engine, leaving the app open for new graphs.
// Returns the first stop error encountered.
func (a *App) StopAll() error {
	a.mu.Lock()
	names := make([]string, 0, len(a.engines))
	for name, e := range a.engines {
		if e != nil {
			names = append(names, name)
		}
	}
	a.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := a.StopGraph(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Engines returns a snapshot of the app's running engines.
func (a *App) Engines() []*engine.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*engine.Engine, 0, len(a.engines))
	for _, e := range a.engines {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Run brings the app up and blocks until ctx is cancelled: addon loaders
// run, the gateway starts if configured, the NATS protocol connects if
// configured, and every auto_start predefined graph starts concurrently. A
// failed auto-start aborts Run and closes the app.
func (a *App) Run(ctx context.Context) error {
	deps := addon.Dependencies{
		Logger:   a.logger,
		Metrics:  a.metricsRegistry,
		Registry: a.registry,
	}
	if err := a.registry.RunLoaders(deps); err != nil {
		return err
	}

	if a.cfg.Gateway.Enabled {
		a.gw = gateway.NewServer(a.cfg.Gateway.Address, a.metricsRegistry, a.logger)
		if err := a.gw.Start(); err != nil {
			return err
		}
	}

	if a.cfg.NATS.URL != "" {
		natsConfig, err := json.Marshal(a.cfg.NATS)
		if err != nil {
			return errors.WrapInvalid(err, "App", "Run", "nats config marshal")
		}
		handle, err := a.registry.Instantiate(addon.KindProtocol, natsbridge.ProtocolName, natsConfig, deps)
		if err != nil {
			a.shutdownGateway()
			return err
		}
		if p, ok := handle.Instance().(*natsbridge.Protocol); ok {
			a.logger.Info("nats protocol ready",
				"url", a.cfg.NATS.URL, "connected", p.Connected())
		}
		a.mu.Lock()
		a.nats = handle
		a.mu.Unlock()
	}

	a.publish(gateway.Event{Type: gateway.EventAppStarted})
	a.logger.Info("app running", "graphs", len(a.cfg.PredefinedGraphs))

	var group errgroup.Group
	for i := range a.cfg.PredefinedGraphs {
		def := &a.cfg.PredefinedGraphs[i]
		if !def.AutoStart {
			continue
		}
		group.Go(func() error {
			_, err := a.StartGraph(def)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		_ = a.Close()
		return err
	}

	<-ctx.Done()
	return a.Close()
}

// Close stops every engine, the NATS protocol, and the gateway, then removes
// the app from the global registry. Safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	engines := make(map[string]*engine.Engine, len(a.engines))
	for name, e := range a.engines {
		engines[name] = e
	}
	a.engines = make(map[string]*engine.Engine)
	nats := a.nats
	a.nats = nil
	a.mu.Unlock()

	a.publish(gateway.Event{Type: gateway.EventAppStopping})

	var firstErr error
	for name, e := range engines {
		if e == nil {
			continue
		}
		if err := e.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.publish(gateway.Event{Type: gateway.EventEngineStopped, Graph: name})
	}

	if nats != nil {
		nats.Destroy()
	}
	a.shutdownGateway()

	unregisterApp(a)
	a.logger.Info("app closed")
	return firstErr
}

func (a *App) shutdownGateway() {
	if a.gw == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), gatewayShutdownTimeout)
	defer cancel()
	if err := a.gw.Shutdown(ctx); err != nil {
		a.logger.Warn("gateway shutdown", "error", err)
	}
}

func (a *App) publish(evt gateway.Event) {
	if a.gw != nil {
		a.gw.Publish(evt)
	}
}
