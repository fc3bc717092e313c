package extension

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/message"
)

// recorderExt appends one event string per hook invocation. Hooks all run on
// the group loop; reads happen after Stop returns, which synchronizes through
// the loop's done channel.
type recorderExt struct {
	DefaultExtension
	label  string
	events *[]string
}

func (r *recorderExt) record(event string) {
	*r.events = append(*r.events, fmt.Sprintf("%s:%s", event, r.label))
}

func (r *recorderExt) OnData(_ *Env, data *message.Data) {
	*r.events = append(*r.events, fmt.Sprintf("data:%s:%s", r.label, data.Name()))
}

func (r *recorderExt) OnStop(*Env)   { r.record("stop") }
func (r *recorderExt) OnDeinit(*Env) { r.record("deinit") }

// fakeSender records everything routed through it.
type fakeSender struct {
	mu      sync.Mutex
	cmds    []*message.Command
	msgs    []message.Message
	results []*message.CmdResult
}

func (f *fakeSender) SendCommand(_ message.Location, cmd *message.Command, _ ResultHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeSender) SendMessage(_ message.Location, msg message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSender) ReturnResult(_ message.Location, result *message.CmdResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

func bindRecorder(t *testing.T, g *Group, name string, events *[]string) {
	t.Helper()
	env := NewEnv(message.Location{Group: g.Name(), Extension: name}, g, &fakeSender{}, nil, slog.Default())
	require.NoError(t, g.Call(func() error {
		return g.Bind(name, &recorderExt{label: name, events: events}, env, nil)
	}))
}

func TestGroupDeliversInMailboxOrder(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))

	var events []string
	bindRecorder(t, g, "sink", &events)

	const n = 20
	for i := 0; i < n; i++ {
		require.True(t, g.Deliver("sink", message.NewData(fmt.Sprintf("d%02d", i))))
	}
	g.Stop()

	require.Len(t, events, n+2)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("data:sink:d%02d", i), events[i])
	}
	assert.Equal(t, "stop:sink", events[n])
	assert.Equal(t, "deinit:sink", events[n+1])
}

func TestGroupTeardownReverseBindOrder(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))

	var events []string
	bindRecorder(t, g, "first", &events)
	bindRecorder(t, g, "second", &events)

	g.Stop()

	assert.Equal(t, []string{"stop:second", "stop:first", "deinit:second", "deinit:first"}, events)
}

func TestGroupStopIdempotent(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))

	g.Stop()
	g.Stop()

	assert.False(t, g.Post(func() {}), "post after stop must be rejected")
	assert.False(t, g.Deliver("x", message.NewData("late")))
	assert.Error(t, g.Call(func() error { return nil }))
}

func TestGroupStartTwiceRejected(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))
	defer g.Stop()

	assert.Error(t, g.Start(nil))
}

func TestGroupCallPropagatesError(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))
	defer g.Stop()

	wantErr := fmt.Errorf("boom")
	assert.ErrorIs(t, g.Call(func() error { return wantErr }), wantErr)
}

func TestTimerFiresOnLoop(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))

	fired := make(chan struct{})
	g.After(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	g.Stop()
}

func TestTimerCancelPreventsFire(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))

	fired := make(chan struct{}, 1)
	timer := g.After(50*time.Millisecond, func() { fired <- struct{}{} })
	timer.Cancel()

	time.Sleep(100 * time.Millisecond)
	g.Stop()

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	default:
	}
}

func TestTimersCancelledOnStop(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))

	fired := make(chan struct{}, 1)
	g.After(50*time.Millisecond, func() { fired <- struct{}{} })
	g.Stop()

	time.Sleep(100 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("timer outlived its group")
	default:
	}
}

func TestDefaultExtensionFailsUnhandledCommand(t *testing.T) {
	g := NewGroup("workers", slog.Default(), nil)
	require.NoError(t, g.Start(nil))
	defer g.Stop()

	sender := &fakeSender{}
	env := NewEnv(message.Location{Group: "workers", Extension: "noop"}, g, sender, nil, slog.Default())

	cmd := message.NewCommand("ping")
	DefaultExtension{}.OnCmd(env, cmd)

	require.Len(t, sender.results, 1)
	res := sender.results[0]
	assert.Equal(t, message.StatusError, res.Status())
	assert.Equal(t, cmd.OriginID(), res.InResponseTo())
	assert.Contains(t, res.Detail(), "workers/noop")
}

func TestEnvSendStampsSource(t *testing.T) {
	g := NewGroup("io", slog.Default(), nil)
	require.NoError(t, g.Start(nil))
	defer g.Stop()

	sender := &fakeSender{}
	loc := message.Location{Group: "io", Extension: "stt"}
	env := NewEnv(loc, g, sender, nil, slog.Default())

	data := message.NewData("transcript")
	require.NoError(t, env.SendData(data))
	assert.Equal(t, loc, data.Source())

	cmd := message.NewCommand("flush")
	require.NoError(t, env.SendCmd(cmd, nil))
	assert.Equal(t, loc, cmd.Source())
}

func TestEnvPropertyGetters(t *testing.T) {
	props := message.NewProperties()
	props.Set("model", "whisper-large")
	props.Set("sample_rate", 16000)
	props.Set("threshold", 0.35)
	props.Set("enabled", true)

	env := NewEnv(message.Location{Group: "io", Extension: "stt"}, nil, &fakeSender{}, props, nil)

	s, ok := env.PropertyString("model")
	require.True(t, ok)
	assert.Equal(t, "whisper-large", s)

	i, ok := env.PropertyInt("sample_rate")
	require.True(t, ok)
	assert.Equal(t, int64(16000), i)

	f, ok := env.PropertyFloat("threshold")
	require.True(t, ok)
	assert.InDelta(t, 0.35, f, 1e-9)

	b, ok := env.PropertyBool("enabled")
	require.True(t, ok)
	assert.True(t, b)

	_, ok = env.PropertyString("missing")
	assert.False(t, ok)
}

func TestRegisterBuiltinsProvidesDefaultGroupDriver(t *testing.T) {
	reg := addon.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	handle, err := reg.Instantiate(addon.KindExtensionGroup, "default_extension_group", nil, addon.Dependencies{})
	require.NoError(t, err)
	defer handle.Destroy()

	_, ok := handle.Instance().(Driver)
	assert.True(t, ok, "default group addon must yield a Driver")
}
