package extension

import (
	"log/slog"
	"time"

	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/message"
)

// ResultHandler receives command results correlated to a command the owning
// extension sent. It is always invoked on the sending extension's group
// goroutine.
type ResultHandler func(result *message.CmdResult)

// Sender is the routing surface an Env needs. The engine's router implements
// it; tests substitute lightweight fakes.
type Sender interface {
	// SendCommand routes a command from the given source. If handler is
	// non-nil it is invoked, on the source's group goroutine, once per result
	// correlated to the command.
	SendCommand(from message.Location, cmd *message.Command, handler ResultHandler) error
	// SendMessage routes a one-way message (data, audio frame, video frame)
	// from the given source.
	SendMessage(from message.Location, msg message.Message) error
	// ReturnResult delivers a result back toward the command's origin.
	ReturnResult(from message.Location, result *message.CmdResult) error
}

// Env is an extension's capability handle: its identity, its configured
// properties, and its only way to emit messages, schedule work, and log. Each
// Env is bound to exactly one extension instance for that instance's entire
// lifetime.
//
// Env methods are not safe for concurrent use. Handlers run one at a time on
// the owning group's goroutine, so an extension that only touches its Env from
// its hooks needs no synchronization. Work running elsewhere re-enters the
// loop through PostTask.
type Env struct {
	loc    message.Location
	group  *Group
	sender Sender
	props  *message.Properties
	logger *slog.Logger
}

// NewEnv binds a capability handle for the extension at loc. The property bag
// holds the node's configured properties; nil means no properties.
func NewEnv(
	loc message.Location, group *Group, sender Sender,
	props *message.Properties, logger *slog.Logger,
) *Env {
	if props == nil {
		props = message.NewProperties()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{
		loc:    loc,
		group:  group,
		sender: sender,
		props:  props,
		logger: logger.With("group", loc.Group, "extension", loc.Extension),
	}
}

// Location returns the extension's location within the engine.
func (e *Env) Location() message.Location { return e.loc }

// Log returns the extension's logger, pre-annotated with its location.
func (e *Env) Log() *slog.Logger { return e.logger }

// SendCmd routes a command to the destinations its connection rules name.
// handler, if non-nil, is invoked on this extension's group goroutine once
// per correlated result. A nil handler discards results.
func (e *Env) SendCmd(cmd *message.Command, handler ResultHandler) error {
	if cmd == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Env", "SendCmd", "nil command")
	}
	cmd.SetSource(e.loc)
	return e.sender.SendCommand(e.loc, cmd, handler)
}

// SendData routes a data message.
func (e *Env) SendData(data *message.Data) error {
	if data == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Env", "SendData", "nil data")
	}
	data.SetSource(e.loc)
	return e.sender.SendMessage(e.loc, data)
}

// SendAudioFrame routes an audio frame.
func (e *Env) SendAudioFrame(frame *message.AudioFrame) error {
	if frame == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Env", "SendAudioFrame", "nil frame")
	}
	frame.SetSource(e.loc)
	return e.sender.SendMessage(e.loc, frame)
}

// SendVideoFrame routes a video frame.
func (e *Env) SendVideoFrame(frame *message.VideoFrame) error {
	if frame == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Env", "SendVideoFrame", "nil frame")
	}
	frame.SetSource(e.loc)
	return e.sender.SendMessage(e.loc, frame)
}

// ReturnResult delivers a result for a command this extension received. The
// result must carry the correlation id of the command it answers, which
// ResultFor and ErrorResultFor arrange.
func (e *Env) ReturnResult(result *message.CmdResult) error {
	if result == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Env", "ReturnResult", "nil result")
	}
	result.SetSource(e.loc)
	return e.sender.ReturnResult(e.loc, result)
}

// PostTask enqueues fn on the owning group's mailbox, to run on the group
// goroutine after everything already queued. This is how work done on foreign
// goroutines re-enters the extension's single-threaded world. Returns false if
// the group is shutting down and the task was discarded.
func (e *Env) PostTask(fn func()) bool {
	return e.group.Post(fn)
}

// ScheduleTimer arranges for fn to run on the group goroutine after d. The
// returned timer can be cancelled; a timer that fires after the group stopped
// is discarded. Periodic work reschedules itself from within fn.
func (e *Env) ScheduleTimer(d time.Duration, fn func()) *Timer {
	return e.group.After(d, fn)
}

// Properties returns the extension's configured property bag.
func (e *Env) Properties() *message.Properties { return e.props }

// PropertyString reads a string property from the node's configuration.
func (e *Env) PropertyString(key string) (string, bool) {
	if v, ok := e.props.Get(key); ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// PropertyInt reads an integer property from the node's configuration.
// Whole-valued floats convert cleanly.
func (e *Env) PropertyInt(key string) (int64, bool) {
	if v, ok := e.props.Get(key); ok {
		switch n := v.(type) {
		case int64:
			return n, true
		case float64:
			if n == float64(int64(n)) {
				return int64(n), true
			}
		}
	}
	return 0, false
}

// PropertyFloat reads a float property from the node's configuration.
func (e *Env) PropertyFloat(key string) (float64, bool) {
	if v, ok := e.props.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n, true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}

// PropertyBool reads a boolean property from the node's configuration.
func (e *Env) PropertyBool(key string) (bool, bool) {
	if v, ok := e.props.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return false, false
}
