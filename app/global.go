package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/agentgraph/errors"
)

// global is the process-wide registry of live apps. The lock guards only
// list mutation and enumeration; it is never held across a blocking call.
var global struct {
	mu     sync.Mutex
	inited bool
	apps   map[*App]struct{}
}

// Init establishes the process-wide app registry. Must be called once before
// any app is created.
func Init() error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.inited {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "App", "Init",
			"global registry already initialized")
	}
	global.inited = true
	global.apps = make(map[*App]struct{})
	return nil
}

// Deinit tears down the process-wide registry. Every app must already be
// closed; otherwise Deinit fails with ErrShutdownOrder and changes nothing.
func Deinit() error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if !global.inited {
		return errors.WrapInvalid(errors.ErrNotStarted, "App", "Deinit",
			"global registry not initialized")
	}
	if n := len(global.apps); n > 0 {
		return errors.WrapInvalid(errors.ErrShutdownOrder, "App", "Deinit",
			fmt.Sprintf("%d app(s) still live", n))
	}
	global.inited = false
	global.apps = nil
	return nil
}

// LiveApps returns the names of currently registered apps, sorted.
func LiveApps() []string {
	global.mu.Lock()
	defer global.mu.Unlock()
	names := make([]string, 0, len(global.apps))
	for a := range global.apps {
		names = append(names, a.name)
	}
	sort.Strings(names)
	return names
}

func registerApp(a *App) error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if !global.inited {
		return errors.WrapInvalid(errors.ErrNotStarted, "App", "New",
			"app.Init must run before creating apps")
	}
	global.apps[a] = struct{}{}
	return nil
}

func unregisterApp(a *App) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.apps, a)
}
