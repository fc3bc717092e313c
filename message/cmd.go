package message

import (
	"encoding/json"
)

// ResultPolicy controls how many results a multi-destination command waits
// for before the router considers it resolved.
type ResultPolicy int

const (
	// FirstResultWins resolves the command on the first terminal result;
	// later results for the same command are stale. This is the default.
	FirstResultWins ResultPolicy = iota
	// WaitForAll resolves the command only after a terminal result has
	// arrived from every destination the command fanned out to.
	WaitForAll
)

// String returns a human-readable policy name.
func (p ResultPolicy) String() string {
	switch p {
	case FirstResultWins:
		return "first_result_wins"
	case WaitForAll:
		return "wait_for_all"
	default:
		return "unknown"
	}
}

// Command is a message that expects a correlated CmdResult. A command sent to
// multiple destinations is cloned per destination; every clone keeps the
// originating command's id as its OriginID so results correlate back to the
// sender's single in-flight entry.
type Command struct {
	envelope
	originID string
	policy   ResultPolicy
}

// NewCommand creates a command with the given routing name and the default
// FirstResultWins policy.
func NewCommand(name string) *Command {
	env := newEnvelope(name)
	return &Command{
		envelope: env,
		originID: env.id,
	}
}

// Kind returns KindCommand.
func (c *Command) Kind() Kind { return KindCommand }

// OriginID returns the id of the originating command. Equal to ID for a
// command the sender created; differs on fan-out clones.
func (c *Command) OriginID() string { return c.originID }

// ResultPolicy returns the command's result policy.
func (c *Command) ResultPolicy() ResultPolicy { return c.policy }

// SetResultPolicy sets the result policy. Must be called before the command
// is sent; the router snapshots the policy when it registers the command.
func (c *Command) SetResultPolicy(p ResultPolicy) { c.policy = p }

// Clone returns a deep copy with a fresh id that still references the
// originating command.
func (c *Command) Clone() Message {
	return &Command{
		envelope: c.cloneEnvelope(),
		originID: c.originID,
		policy:   c.policy,
	}
}

// commandWire is the logical wire shape of a command.
type commandWire struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Properties *Properties `json:"properties"`
}

// MarshalJSON encodes the command's logical wire shape.
func (c *Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(commandWire{
		ID:         c.id,
		Name:       c.name,
		Properties: c.props,
	})
}

// UnmarshalJSON decodes the command's logical wire shape. The decoded id
// becomes both the command id and its origin id.
func (c *Command) UnmarshalJSON(data []byte) error {
	var wire commandWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.id = wire.ID
	c.originID = wire.ID
	c.name = wire.Name
	c.props = wire.Properties
	if c.props == nil {
		c.props = NewProperties()
	}
	return nil
}
