package message

import (
	"github.com/google/uuid"
)

// Kind discriminates the message variants routed through an engine.
type Kind int

const (
	// KindCommand is a message expecting a correlated result.
	KindCommand Kind = iota
	// KindCmdResult is the correlated reply to a command.
	KindCmdResult
	// KindData is a generic one-way payload message.
	KindData
	// KindAudioFrame is a one-way audio frame message.
	KindAudioFrame
	// KindVideoFrame is a one-way video frame message.
	KindVideoFrame
)

// String returns the wire name of the kind, matching the connection rule
// section names in graph definitions.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "cmd"
	case KindCmdResult:
		return "cmd_result"
	case KindData:
		return "data"
	case KindAudioFrame:
		return "audio_frame"
	case KindVideoFrame:
		return "video_frame"
	default:
		return "unknown"
	}
}

// Location identifies an extension instance within one engine: the extension
// group that owns it and its instance name. The zero Location means "unset".
type Location struct {
	Group     string
	Extension string
}

// String returns "group/extension" for logging.
func (l Location) String() string {
	return l.Group + "/" + l.Extension
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Group == "" && l.Extension == ""
}

// Message is the interface satisfied by every routable message variant.
type Message interface {
	// ID returns the process-unique message identifier.
	ID() string
	// Kind returns the message variant.
	Kind() Kind
	// Name returns the routing name. Empty for command results, which route
	// by correlation rather than by connection rule.
	Name() string
	// Source returns the sending extension's location. Zero until the
	// message enters the router.
	Source() Location
	// SetSource records the sending extension. The first call wins; the
	// source is immutable once the message has entered the router.
	SetSource(loc Location)
	// Properties returns the message's mutable property bag.
	Properties() *Properties
	// Clone returns a deep copy with a fresh id, used for fan-out so no two
	// destinations share mutable state.
	Clone() Message
}

// envelope carries the fields common to all message variants.
type envelope struct {
	id        string
	name      string
	source    Location
	sourceSet bool
	props     *Properties
}

func newEnvelope(name string) envelope {
	return envelope{
		id:    uuid.New().String(),
		name:  name,
		props: NewProperties(),
	}
}

func (e *envelope) ID() string   { return e.id }
func (e *envelope) Name() string { return e.name }

func (e *envelope) Source() Location { return e.source }

func (e *envelope) SetSource(loc Location) {
	if e.sourceSet {
		return
	}
	e.source = loc
	e.sourceSet = true
}

func (e *envelope) Properties() *Properties { return e.props }

// cloneEnvelope duplicates the envelope with a fresh id. The source carries
// over: a fan-out copy still originates from the same extension.
func (e *envelope) cloneEnvelope() envelope {
	return envelope{
		id:        uuid.New().String(),
		name:      e.name,
		source:    e.source,
		sourceSet: e.sourceSet,
		props:     e.props.Clone(),
	}
}

// Data is a one-way payload message routed by name.
type Data struct {
	envelope
	payload []byte
}

// NewData creates a data message with the given routing name.
func NewData(name string) *Data {
	return &Data{envelope: newEnvelope(name)}
}

// Kind returns KindData.
func (d *Data) Kind() Kind { return KindData }

// Payload returns the raw payload bytes.
func (d *Data) Payload() []byte { return d.payload }

// SetPayload stores the raw payload bytes.
func (d *Data) SetPayload(b []byte) { d.payload = b }

// Clone returns a deep copy with a fresh id.
func (d *Data) Clone() Message {
	dup := &Data{envelope: d.cloneEnvelope()}
	if d.payload != nil {
		dup.payload = make([]byte, len(d.payload))
		copy(dup.payload, d.payload)
	}
	return dup
}
