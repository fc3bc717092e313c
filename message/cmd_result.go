package message

import (
	"encoding/json"
	"fmt"
)

// StatusCode is the terminal disposition of a command.
type StatusCode int

const (
	// StatusOk indicates the command was handled successfully.
	StatusOk StatusCode = iota
	// StatusNoRoute indicates the command had no resolvable destination.
	StatusNoRoute
	// StatusAborted indicates the command was in flight when its engine
	// tore down.
	StatusAborted
	// StatusError indicates the handler failed; detail is in Detail.
	StatusError
)

// String returns the wire name of the status code.
func (s StatusCode) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusNoRoute:
		return "no_route"
	case StatusAborted:
		return "aborted"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// CmdResult is the correlated reply to a command. Results may be streamed:
// any number of non-final results can precede the terminal one. Only a final
// result resolves the command at the router.
type CmdResult struct {
	envelope
	inResponseTo string
	status       StatusCode
	detail       string
	isFinal      bool
}

// NewCmdResult creates a final result for the command identified by
// inResponseTo. Handlers normally build results with ResultFor, which
// extracts the correlation id from the command itself.
func NewCmdResult(status StatusCode, inResponseTo string) *CmdResult {
	return &CmdResult{
		envelope:     newEnvelope(""),
		inResponseTo: inResponseTo,
		status:       status,
		isFinal:      true,
	}
}

// ResultFor creates a final result correlated to cmd's originating command.
func ResultFor(status StatusCode, cmd *Command) *CmdResult {
	return NewCmdResult(status, cmd.OriginID())
}

// ErrorResultFor creates a final error result for cmd carrying detail.
func ErrorResultFor(cmd *Command, detail string) *CmdResult {
	res := ResultFor(StatusError, cmd)
	res.detail = detail
	return res
}

// Kind returns KindCmdResult.
func (r *CmdResult) Kind() Kind { return KindCmdResult }

// InResponseTo returns the originating command's id.
func (r *CmdResult) InResponseTo() string { return r.inResponseTo }

// Status returns the result's status code.
func (r *CmdResult) Status() StatusCode { return r.status }

// Detail returns the human-readable detail attached to the result, normally
// empty for StatusOk.
func (r *CmdResult) Detail() string { return r.detail }

// SetDetail attaches a human-readable detail string.
func (r *CmdResult) SetDetail(detail string) { r.detail = detail }

// IsFinal reports whether this is the terminal result for its command.
func (r *CmdResult) IsFinal() bool { return r.isFinal }

// SetFinal marks the result as terminal or streaming-partial.
func (r *CmdResult) SetFinal(final bool) { r.isFinal = final }

// OK reports whether the result is terminal and successful.
func (r *CmdResult) OK() bool { return r.status == StatusOk }

// Err converts an unsuccessful result into an error, nil for StatusOk.
func (r *CmdResult) Err() error {
	switch r.status {
	case StatusOk:
		return nil
	case StatusError:
		if r.detail != "" {
			return fmt.Errorf("command failed: %s", r.detail)
		}
		return fmt.Errorf("command failed")
	default:
		return fmt.Errorf("command %s", r.status)
	}
}

// Clone returns a deep copy with a fresh id, preserving correlation.
func (r *CmdResult) Clone() Message {
	return &CmdResult{
		envelope:     r.cloneEnvelope(),
		inResponseTo: r.inResponseTo,
		status:       r.status,
		detail:       r.detail,
		isFinal:      r.isFinal,
	}
}

// cmdResultWire is the logical wire shape of a command result.
type cmdResultWire struct {
	ID           string      `json:"id"`
	InResponseTo string      `json:"in_response_to"`
	StatusCode   string      `json:"status_code"`
	Detail       string      `json:"detail,omitempty"`
	IsFinal      bool        `json:"is_final"`
	Properties   *Properties `json:"properties"`
}

// MarshalJSON encodes the result's logical wire shape.
func (r *CmdResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(cmdResultWire{
		ID:           r.id,
		InResponseTo: r.inResponseTo,
		StatusCode:   r.status.String(),
		Detail:       r.detail,
		IsFinal:      r.isFinal,
		Properties:   r.props,
	})
}

// UnmarshalJSON decodes the result's logical wire shape.
func (r *CmdResult) UnmarshalJSON(data []byte) error {
	var wire cmdResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	status, err := parseStatusCode(wire.StatusCode)
	if err != nil {
		return err
	}

	r.id = wire.ID
	r.inResponseTo = wire.InResponseTo
	r.status = status
	r.detail = wire.Detail
	r.isFinal = wire.IsFinal
	r.props = wire.Properties
	if r.props == nil {
		r.props = NewProperties()
	}
	return nil
}

func parseStatusCode(s string) (StatusCode, error) {
	switch s {
	case "ok":
		return StatusOk, nil
	case "no_route":
		return StatusNoRoute, nil
	case "aborted":
		return StatusAborted, nil
	case "error":
		return StatusError, nil
	default:
		return 0, fmt.Errorf("unknown status code %q", s)
	}
}
