package extension

import (
	"github.com/c360/agentgraph/message"
)

// Extension is one behavioral unit hosted in a graph. All hooks run on the
// owning group's goroutine, one at a time.
//
// OnInit and OnStart may fail; a failure during engine start aborts the whole
// engine rather than running a partially initialized graph. Message handlers
// respond through the Env (ReturnResult for commands, Send* for onward
// messages) and must not block the loop; long-running work is delegated and
// resumed via a later message or timer.
type Extension interface {
	// OnInit prepares the instance: read properties, allocate state.
	OnInit(env *Env) error
	// OnStart begins active work. Runs after every extension in the graph
	// has completed OnInit.
	OnStart(env *Env) error
	// OnCmd handles a command routed to this extension. The handler owns
	// the command and is expected to eventually ReturnResult a final
	// result for it.
	OnCmd(env *Env, cmd *message.Command)
	// OnData handles a data message.
	OnData(env *Env, data *message.Data)
	// OnAudioFrame handles an audio frame.
	OnAudioFrame(env *Env, frame *message.AudioFrame)
	// OnVideoFrame handles a video frame.
	OnVideoFrame(env *Env, frame *message.VideoFrame)
	// OnStop ends active work. Runs during engine teardown, in reverse
	// creation order, after the group's mailbox has drained.
	OnStop(env *Env)
	// OnDeinit releases instance state. The extension is never invoked
	// after OnDeinit returns.
	OnDeinit(env *Env)
}

// DefaultExtension is a no-op implementation of Extension, meant for
// embedding so concrete extensions only override the hooks they care about.
type DefaultExtension struct{}

// OnInit implements Extension.
func (DefaultExtension) OnInit(*Env) error { return nil }

// OnStart implements Extension.
func (DefaultExtension) OnStart(*Env) error { return nil }

// OnCmd implements Extension. Unhandled commands fail loudly: a default
// extension returns an error result rather than leaving the command pending
// forever.
func (DefaultExtension) OnCmd(env *Env, cmd *message.Command) {
	res := message.ErrorResultFor(cmd, "command not handled by "+env.Location().String())
	_ = env.ReturnResult(res)
}

// OnData implements Extension.
func (DefaultExtension) OnData(*Env, *message.Data) {}

// OnAudioFrame implements Extension.
func (DefaultExtension) OnAudioFrame(*Env, *message.AudioFrame) {}

// OnVideoFrame implements Extension.
func (DefaultExtension) OnVideoFrame(*Env, *message.VideoFrame) {}

// OnStop implements Extension.
func (DefaultExtension) OnStop(*Env) {}

// OnDeinit implements Extension.
func (DefaultExtension) OnDeinit(*Env) {}
