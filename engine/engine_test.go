package engine

import (
	"encoding/json"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/extension"
	"github.com/c360/agentgraph/graph"
	"github.com/c360/agentgraph/message"
)

const pingGraphJSON = `{
	"name": "ping",
	"nodes": [
		{"type": "extension", "name": "a", "addon": "pinger", "extension_group": "g1"},
		{"type": "extension", "name": "b", "addon": "echo", "extension_group": "g2"}
	],
	"connections": [
		{"extension": "a", "cmd": [{"name": "ping", "dest": [{"extension": "b"}]}]}
	]
}`

func newTestRegistry(t *testing.T) *addon.Registry {
	t.Helper()
	reg := addon.NewRegistry()
	require.NoError(t, extension.RegisterBuiltins(reg))
	return reg
}

func registerExtAddon(t *testing.T, reg *addon.Registry, name string, build func() extension.Extension) {
	t.Helper()
	require.NoError(t, reg.Register(&addon.Registration{
		Kind: addon.KindExtension,
		Name: name,
		Factory: func(_ json.RawMessage, _ addon.Dependencies) (any, addon.DestroyFunc, error) {
			return build(), nil, nil
		},
	}))
}

func parseGraph(t *testing.T, src string) *graph.Definition {
	t.Helper()
	def, err := graph.Parse([]byte(src))
	require.NoError(t, err)
	return def
}

// echoExt answers every command with an Ok result.
type echoExt struct {
	extension.DefaultExtension
}

func (echoExt) OnCmd(env *extension.Env, cmd *message.Command) {
	_ = env.ReturnResult(message.ResultFor(message.StatusOk, cmd))
}

// pingerExt sends one command named "ping" from OnStart and forwards every
// result it observes to its channel.
type pingerExt struct {
	extension.DefaultExtension
	results chan *message.CmdResult
	sent    chan *message.Command
}

func (p *pingerExt) OnStart(env *extension.Env) error {
	cmd := message.NewCommand("ping")
	select {
	case p.sent <- cmd:
	default:
	}
	return env.SendCmd(cmd, func(res *message.CmdResult) { p.results <- res })
}

func waitResult(t *testing.T, ch <-chan *message.CmdResult) *message.CmdResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command result")
		return nil
	}
}

func TestPingRoundTripAcrossGroups(t *testing.T) {
	reg := newTestRegistry(t)

	pinger := &pingerExt{
		results: make(chan *message.CmdResult, 2),
		sent:    make(chan *message.Command, 1),
	}
	registerExtAddon(t, reg, "pinger", func() extension.Extension { return pinger })
	registerExtAddon(t, reg, "echo", func() extension.Extension { return echoExt{} })

	e, err := Start(parseGraph(t, pingGraphJSON), Options{Registry: reg})
	require.NoError(t, err)
	require.Equal(t, StateRunning, e.State())
	assert.Equal(t, []string{"g1", "g2"}, e.Groups())

	res := waitResult(t, pinger.results)
	cmd := <-pinger.sent
	assert.True(t, res.OK())
	assert.True(t, res.IsFinal())
	assert.Equal(t, cmd.OriginID(), res.InResponseTo())

	require.NoError(t, e.Stop())
	assert.Equal(t, StateStopped, e.State())

	select {
	case extra := <-pinger.results:
		t.Fatalf("more than one result delivered: %v", extra.Status())
	default:
	}
}

func TestInvalidGraphSpawnsNothing(t *testing.T) {
	reg := newTestRegistry(t)
	registerExtAddon(t, reg, "echo", func() extension.Extension { return echoExt{} })

	def := &graph.Definition{
		Name: "broken",
		Nodes: []graph.Node{
			{Type: graph.NodeTypeExtension, Name: "a", Addon: "echo", ExtensionGroup: "g1"},
		},
		Connections: []graph.Connection{
			{Extension: "a", Cmd: []graph.Rule{
				{Name: "ping", Dest: []graph.Destination{{Extension: "ghost"}}},
			}},
		},
	}

	before := runtime.NumGoroutine()
	e, err := Start(def, Options{Registry: reg})
	assert.Nil(t, e)
	assert.ErrorIs(t, err, errors.ErrGraphInvalid)
	assert.Contains(t, err.Error(), "ghost")
	assert.LessOrEqual(t, runtime.NumGoroutine(), before, "failed validation must not spawn goroutines")
}

func TestUnknownAddonRejectedBeforeSpawn(t *testing.T) {
	reg := newTestRegistry(t)

	def := &graph.Definition{
		Name: "unknown",
		Nodes: []graph.Node{
			{Type: graph.NodeTypeExtension, Name: "a", Addon: "unregistered", ExtensionGroup: "g1"},
		},
	}

	before := runtime.NumGoroutine()
	e, err := Start(def, Options{Registry: reg})
	assert.Nil(t, e)
	assert.ErrorIs(t, err, errors.ErrUnknownAddon)
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

// failingExt fails the configured lifecycle hook.
type failingExt struct {
	extension.DefaultExtension
	failInit  bool
	failStart bool
	torndown  chan string
}

func (f *failingExt) OnInit(*extension.Env) error {
	if f.failInit {
		return fmt.Errorf("init refused")
	}
	return nil
}

func (f *failingExt) OnStart(*extension.Env) error {
	if f.failStart {
		return fmt.Errorf("start refused")
	}
	return nil
}

func (f *failingExt) OnStop(*extension.Env) {
	if f.torndown != nil {
		f.torndown <- "stop"
	}
}

func (f *failingExt) OnDeinit(*extension.Env) {
	if f.torndown != nil {
		f.torndown <- "deinit"
	}
}

const failGraphJSON = `{
	"name": "failing",
	"nodes": [
		{"type": "extension", "name": "good", "addon": "good", "extension_group": "g1"},
		{"type": "extension", "name": "bad", "addon": "bad", "extension_group": "g2"}
	]
}`

func TestStartHookFailureAbortsWholeEngine(t *testing.T) {
	reg := newTestRegistry(t)

	torndown := make(chan string, 4)
	registerExtAddon(t, reg, "good", func() extension.Extension {
		return &failingExt{torndown: torndown}
	})
	registerExtAddon(t, reg, "bad", func() extension.Extension {
		return &failingExt{failStart: true, torndown: torndown}
	})

	e, err := Start(parseGraph(t, failGraphJSON), Options{Registry: reg})
	assert.Nil(t, e)
	require.ErrorIs(t, err, errors.ErrStartupFailed)
	assert.Contains(t, err.Error(), "bad")

	// Both extensions completed OnInit, so both get full teardown.
	assert.Len(t, drain(torndown), 4)
}

func TestInitHookFailureSkipsTeardownOfUninitialized(t *testing.T) {
	reg := newTestRegistry(t)

	torndown := make(chan string, 4)
	registerExtAddon(t, reg, "good", func() extension.Extension {
		return &failingExt{torndown: torndown}
	})
	registerExtAddon(t, reg, "bad", func() extension.Extension {
		return &failingExt{failInit: true, torndown: torndown}
	})

	// "good" is declared first, so its OnInit completes before "bad" fails.
	e, err := Start(parseGraph(t, failGraphJSON), Options{Registry: reg})
	assert.Nil(t, e)
	require.ErrorIs(t, err, errors.ErrStartupFailed)

	assert.Equal(t, []string{"stop", "deinit"}, drain(torndown),
		"only the initialized extension gets stop hooks")
}

func drain(ch chan string) []string {
	var out []string
	for {
		select {
		case s := <-ch:
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestStopIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	registerExtAddon(t, reg, "echo", func() extension.Extension { return echoExt{} })

	def := parseGraph(t, `{
		"name": "solo",
		"nodes": [{"type": "extension", "name": "a", "addon": "echo", "extension_group": "g1"}]
	}`)

	e, err := Start(def, Options{Registry: reg})
	require.NoError(t, err)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop(), "stop on a stopped engine is a no-op")
	assert.Equal(t, StateStopped, e.State())
}

// blackholeExt accepts commands and never responds.
type blackholeExt struct {
	extension.DefaultExtension
}

func (blackholeExt) OnCmd(*extension.Env, *message.Command) {}

func TestStopAbortsAbandonedCommand(t *testing.T) {
	reg := newTestRegistry(t)

	pinger := &pingerExt{
		results: make(chan *message.CmdResult, 2),
		sent:    make(chan *message.Command, 1),
	}
	registerExtAddon(t, reg, "pinger", func() extension.Extension { return pinger })
	registerExtAddon(t, reg, "echo", func() extension.Extension { return blackholeExt{} })

	e, err := Start(parseGraph(t, pingGraphJSON), Options{Registry: reg})
	require.NoError(t, err)

	require.NoError(t, e.Stop())

	res := waitResult(t, pinger.results)
	assert.Equal(t, message.StatusAborted, res.Status())
	assert.True(t, res.IsFinal())

	select {
	case extra := <-pinger.results:
		t.Fatalf("abandoned command answered more than once: %v", extra.Status())
	default:
	}
}

// configuredExt records the property values its Env exposes.
type configuredExt struct {
	extension.DefaultExtension
	model chan string
}

func (c *configuredExt) OnInit(env *extension.Env) error {
	model, _ := env.PropertyString("model")
	c.model <- model
	return nil
}

func TestNodePropertiesReachExtension(t *testing.T) {
	reg := newTestRegistry(t)

	ext := &configuredExt{model: make(chan string, 1)}
	registerExtAddon(t, reg, "configured", func() extension.Extension { return ext })

	def := parseGraph(t, `{
		"name": "configured",
		"nodes": [{
			"type": "extension", "name": "llm", "addon": "configured",
			"extension_group": "compute",
			"property": {"model": "llama-3-70b", "max_tokens": 1024}
		}]
	}`)

	e, err := Start(def, Options{Registry: reg})
	require.NoError(t, err)
	defer func() { require.NoError(t, e.Stop()) }()

	assert.Equal(t, "llama-3-70b", <-ext.model)
}
