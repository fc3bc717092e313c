package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/config"
	"github.com/c360/agentgraph/engine"
	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/extension"
	"github.com/c360/agentgraph/graph"
)

// initGlobal establishes the process registry for one test and verifies
// clean teardown afterwards.
func initGlobal(t *testing.T) {
	t.Helper()
	require.NoError(t, Init())
	t.Cleanup(func() { require.NoError(t, Deinit()) })
}

func registerNoopAddon(t *testing.T, a *App, name string) {
	t.Helper()
	require.NoError(t, a.Registry().Register(&addon.Registration{
		Kind: addon.KindExtension,
		Name: name,
		Factory: func(_ json.RawMessage, _ addon.Dependencies) (any, addon.DestroyFunc, error) {
			return extension.DefaultExtension{}, nil, nil
		},
	}))
}

func soloGraph(t *testing.T, name string) *graph.Definition {
	t.Helper()
	def, err := graph.Parse([]byte(`{
		"name": "` + name + `",
		"nodes": [{"type": "extension", "name": "worker", "addon": "noop", "extension_group": "main"}]
	}`))
	require.NoError(t, err)
	return def
}

func TestInitDeinitLifecycle(t *testing.T) {
	require.NoError(t, Init())
	assert.ErrorIs(t, Init(), errors.ErrAlreadyStarted)

	require.NoError(t, Deinit())
	assert.ErrorIs(t, Deinit(), errors.ErrNotStarted)
}

func TestNewRequiresInit(t *testing.T) {
	_, err := New("orphan", nil, slog.Default())
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestDeinitRefusesWhileAppsLive(t *testing.T) {
	require.NoError(t, Init())

	a, err := New("live", nil, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, LiveApps())

	err = Deinit()
	assert.ErrorIs(t, err, errors.ErrShutdownOrder)

	require.NoError(t, a.Close())
	assert.Empty(t, LiveApps())
	require.NoError(t, Deinit())
}

func TestStartAndStopGraph(t *testing.T) {
	initGlobal(t)

	a, err := New("runtime", nil, slog.Default())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	registerNoopAddon(t, a, "noop")

	e, err := a.StartGraph(soloGraph(t, "pipeline"))
	require.NoError(t, err)
	assert.Equal(t, engine.StateRunning, e.State())
	assert.Len(t, a.Engines(), 1)

	_, err = a.StartGraph(soloGraph(t, "pipeline"))
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	require.NoError(t, a.StopGraph("pipeline"))
	assert.Equal(t, engine.StateStopped, e.State())
	assert.Empty(t, a.Engines())

	err = a.StopGraph("pipeline")
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestStartGraphFailureIsIsolated(t *testing.T) {
	initGlobal(t)

	a, err := New("isolated", nil, slog.Default())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	registerNoopAddon(t, a, "noop")

	healthy, err := a.StartGraph(soloGraph(t, "healthy"))
	require.NoError(t, err)

	broken := soloGraph(t, "broken")
	broken.Nodes[0].Addon = "unregistered"
	_, err = a.StartGraph(broken)
	require.ErrorIs(t, err, errors.ErrUnknownAddon)

	assert.Equal(t, engine.StateRunning, healthy.State(), "unrelated engine must keep running")
	assert.Len(t, a.Engines(), 1)
}

func TestStopAllLeavesAppOpen(t *testing.T) {
	initGlobal(t)

	a, err := New("bulk", nil, slog.Default())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	registerNoopAddon(t, a, "noop")
	_, err = a.StartGraph(soloGraph(t, "one"))
	require.NoError(t, err)
	_, err = a.StartGraph(soloGraph(t, "two"))
	require.NoError(t, err)

	require.NoError(t, a.StopAll())
	assert.Empty(t, a.Engines())

	_, err = a.StartGraph(soloGraph(t, "again"))
	assert.NoError(t, err, "app stays usable after StopAll")
}

func TestCloseStopsEverythingAndIsIdempotent(t *testing.T) {
	initGlobal(t)

	a, err := New("closer", nil, slog.Default())
	require.NoError(t, err)
	registerNoopAddon(t, a, "noop")

	e1, err := a.StartGraph(soloGraph(t, "one"))
	require.NoError(t, err)
	e2, err := a.StartGraph(soloGraph(t, "two"))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.Equal(t, engine.StateStopped, e1.State())
	assert.Equal(t, engine.StateStopped, e2.State())

	require.NoError(t, a.Close())

	_, err = a.StartGraph(soloGraph(t, "late"))
	assert.Error(t, err)
}

func TestStartGraphByName(t *testing.T) {
	initGlobal(t)

	cfg, err := config.Parse([]byte(`{
		"predefined_graphs": [{
			"name": "predef",
			"nodes": [{"type": "extension", "name": "worker", "addon": "noop", "extension_group": "main"}]
		}]
	}`))
	require.NoError(t, err)

	a, err := New("named", cfg, slog.Default())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	registerNoopAddon(t, a, "noop")

	e, err := a.StartGraphByName("predef")
	require.NoError(t, err)
	assert.Equal(t, "predef", e.Name())

	_, err = a.StartGraphByName("absent")
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestRunAutoStartsAndShutsDown(t *testing.T) {
	initGlobal(t)

	cfg, err := config.Parse([]byte(`{
		"predefined_graphs": [
			{
				"name": "auto",
				"auto_start": true,
				"nodes": [{"type": "extension", "name": "worker", "addon": "noop", "extension_group": "main"}]
			},
			{
				"name": "manual",
				"nodes": [{"type": "extension", "name": "worker", "addon": "noop", "extension_group": "main"}]
			}
		]
	}`))
	require.NoError(t, err)

	a, err := New("runner", cfg, slog.Default())
	require.NoError(t, err)
	registerNoopAddon(t, a, "noop")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.Engines()) == 1
	}, 2*time.Second, 10*time.Millisecond, "auto_start graph should be running")
	assert.Equal(t, "auto", a.Engines()[0].Name())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunFailsWhenAutoStartFails(t *testing.T) {
	initGlobal(t)

	cfg, err := config.Parse([]byte(`{
		"predefined_graphs": [{
			"name": "doomed",
			"auto_start": true,
			"nodes": [{"type": "extension", "name": "worker", "addon": "missing", "extension_group": "main"}]
		}]
	}`))
	require.NoError(t, err)

	a, err := New("failing", cfg, slog.Default())
	require.NoError(t, err)

	err = a.Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrUnknownAddon)
	assert.Empty(t, LiveApps(), "failed run closes the app")
}

func TestLoaderAddonsRunOnRun(t *testing.T) {
	initGlobal(t)

	a, err := New("loading", nil, slog.Default())
	require.NoError(t, err)

	require.NoError(t, a.Registry().Register(&addon.Registration{
		Kind: addon.KindLoader,
		Name: "bundle",
		Factory: func(_ json.RawMessage, _ addon.Dependencies) (any, addon.DestroyFunc, error) {
			return loaderFunc(func(r *addon.Registry) error {
				return r.Register(&addon.Registration{
					Kind: addon.KindExtension,
					Name: "loaded",
					Factory: func(_ json.RawMessage, _ addon.Dependencies) (any, addon.DestroyFunc, error) {
						return extension.DefaultExtension{}, nil, nil
					},
				})
			}), nil, nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := a.Registry().Lookup(addon.KindExtension, "loaded")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// loaderFunc adapts a function to the addon.Loader interface.
type loaderFunc func(*addon.Registry) error

func (f loaderFunc) RegisterAddons(r *addon.Registry) error { return f(r) }
