package addon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/metric"
)

// Kind classifies what a registered factory produces.
type Kind string

// Addon kinds.
const (
	KindExtension      Kind = "extension"
	KindExtensionGroup Kind = "extension_group"
	KindProtocol       Kind = "protocol"
	KindLoader         Kind = "addon_loader"
)

// Dependencies carries the runtime services handed to every factory. Factories
// must not perform I/O; they allocate and configure the instance only.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.MetricsRegistry
	// Registry is the registry performing the instantiation, so protocol and
	// loader instances can resolve or register further addons.
	Registry *Registry
}

// DestroyFunc releases an instance's native resources. May be nil when the
// instance holds none.
type DestroyFunc func()

// Factory creates an addon instance from its raw JSON configuration. The
// returned destroy hook, if any, is invoked exactly once at teardown, after
// which the instance is never touched again.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (any, DestroyFunc, error)

// Registration holds a factory and its metadata.
type Registration struct {
	Kind     Kind
	Name     string
	Manifest Manifest
	Factory  Factory
	// SingleInstance serializes factory invocations for this addon: the
	// registry guarantees the factory never runs concurrently for two
	// instantiations of a single-instance addon.
	SingleInstance bool
}

// Loader is implemented by addon-loader instances. A loader registers further
// addons — typically factories bridging to a foreign language runtime — when
// the app invokes it at startup.
type Loader interface {
	RegisterAddons(r *Registry) error
}

type regKey struct {
	kind Kind
	name string
}

// Registry is the process-wide addon table. Registration and lookup are
// thread-safe; independent addons instantiate concurrently.
type Registry struct {
	mu        sync.RWMutex
	factories map[regKey]*Registration
	// serial holds one lock per single-instance addon, created lazily.
	serial map[regKey]*sync.Mutex
}

// NewRegistry creates an empty addon registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[regKey]*Registration),
		serial:    make(map[regKey]*sync.Mutex),
	}
}

// Register adds a factory under (kind, name). Fails with
// ErrDuplicateRegistration if the pair already exists; the first registration
// remains active.
func (r *Registry) Register(reg *Registration) error {
	if reg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "registration validation")
	}
	if reg.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "addon name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory validation")
	}
	switch reg.Kind {
	case KindExtension, KindExtensionGroup, KindProtocol, KindLoader:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown addon kind %q", errors.ErrInvalidConfig, reg.Kind),
			"Registry", "Register", "kind validation")
	}

	key := regKey{kind: reg.Kind, name: reg.Name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s %q", errors.ErrDuplicateRegistration, reg.Kind, reg.Name),
			"Registry", "Register", "duplicate registration check")
	}

	r.factories[key] = reg
	if reg.SingleInstance {
		r.serial[key] = &sync.Mutex{}
	}
	return nil
}

// Lookup returns the registration for (kind, name).
func (r *Registry) Lookup(kind Kind, name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[regKey{kind: kind, name: name}]
	return reg, ok
}

// Names returns the registered names for one kind.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for key := range r.factories {
		if key.kind == kind {
			names = append(names, key.name)
		}
	}
	return names
}

// Handle wraps an instantiated addon. Destroy runs the factory's destroy hook
// exactly once regardless of how many times it is called; the instance must
// never be invoked after Destroy returns.
type Handle struct {
	kind     Kind
	name     string
	instance any
	destroy  DestroyFunc
	once     sync.Once
}

// Kind returns the addon kind the handle was instantiated from.
func (h *Handle) Kind() Kind { return h.kind }

// AddonName returns the addon name the handle was instantiated from.
func (h *Handle) AddonName() string { return h.name }

// Instance returns the underlying instance.
func (h *Handle) Instance() any { return h.instance }

// Destroy releases the instance. Safe to call more than once; only the first
// call runs the hook.
func (h *Handle) Destroy() {
	h.once.Do(func() {
		if h.destroy != nil {
			h.destroy()
		}
	})
}

// Instantiate creates an instance of the addon registered under (kind, name).
// Fails with ErrUnknownAddon for unregistered pairs and propagates the
// factory's own error otherwise. Single-instance addons are serialized;
// unrelated addons instantiate concurrently.
func (r *Registry) Instantiate(kind Kind, name string, config json.RawMessage, deps Dependencies) (*Handle, error) {
	key := regKey{kind: kind, name: name}

	r.mu.RLock()
	reg, exists := r.factories[key]
	lock := r.serial[key]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s %q", errors.ErrUnknownAddon, kind, name),
			"Registry", "Instantiate", "factory lookup")
	}

	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}

	instance, destroy, err := reg.Factory(config, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Instantiate", fmt.Sprintf("factory %s %q", kind, name))
	}
	if instance == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("factory %s %q returned nil instance", kind, name),
			"Registry", "Instantiate", "factory contract check")
	}

	return &Handle{kind: kind, name: name, instance: instance, destroy: destroy}, nil
}

// RunLoaders instantiates every registered addon-loader and lets it register
// further addons. Loader errors abort with the first failure.
func (r *Registry) RunLoaders(deps Dependencies) error {
	for _, name := range r.Names(KindLoader) {
		handle, err := r.Instantiate(KindLoader, name, nil, deps)
		if err != nil {
			return err
		}
		loader, ok := handle.Instance().(Loader)
		if !ok {
			handle.Destroy()
			return errors.WrapInvalid(
				fmt.Errorf("addon_loader %q does not implement Loader", name),
				"Registry", "RunLoaders", "loader contract check")
		}
		if err := loader.RegisterAddons(r); err != nil {
			handle.Destroy()
			return errors.Wrap(err, "Registry", "RunLoaders", fmt.Sprintf("loader %q", name))
		}
		handle.Destroy()
	}
	return nil
}
