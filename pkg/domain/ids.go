// Package domain holds the opaque identifier types shared across the
// session runtime: SessionID, OpID, MessageID, ToolCallID, RequestID, and
// NonEmptyString. They carry no ordering semantics beyond identity.
package domain

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ErrEmptyString is returned by NewNonEmptyString for whitespace-only input.
var ErrEmptyString = errors.New("domain: string must not be empty or whitespace-only")

// rawID is the shared 26-char ULID string representation backing every
// opaque identifier in this package.
type rawID string

func newRawID() rawID {
	return rawID(ulid.Make().String())
}

// SessionID identifies a conversation session.
type SessionID rawID

// NewSessionID generates a new random session id.
func NewSessionID() SessionID { return SessionID(newRawID()) }

func (id SessionID) String() string { return string(id) }

// IsZero reports whether id is the zero value.
func (id SessionID) IsZero() bool { return id == "" }

func (id SessionID) MarshalJSON() ([]byte, error) { return json.Marshal(string(id)) }

func (id *SessionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = SessionID(s)
	return nil
}

// OpID identifies a single operation (turn, direct command, or compaction).
type OpID rawID

func NewOpID() OpID { return OpID(newRawID()) }

func (id OpID) String() string { return string(id) }
func (id OpID) IsZero() bool   { return id == "" }

func (id OpID) MarshalJSON() ([]byte, error) { return json.Marshal(string(id)) }

func (id *OpID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = OpID(s)
	return nil
}

// MessageID identifies a message in the conversation graph.
type MessageID rawID

func NewMessageID() MessageID { return MessageID(newRawID()) }

func (id MessageID) String() string { return string(id) }
func (id MessageID) IsZero() bool   { return id == "" }

func (id MessageID) MarshalJSON() ([]byte, error) { return json.Marshal(string(id)) }

func (id *MessageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = MessageID(s)
	return nil
}

// ToolCallID identifies a single tool invocation, matching the assistant's
// tool-call block to the eventual Tool message carrying its result.
type ToolCallID rawID

func NewToolCallID() ToolCallID { return ToolCallID(newRawID()) }

func (id ToolCallID) String() string { return string(id) }
func (id ToolCallID) IsZero() bool   { return id == "" }

func (id ToolCallID) MarshalJSON() ([]byte, error) { return json.Marshal(string(id)) }

func (id *ToolCallID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ToolCallID(s)
	return nil
}

// RequestID identifies a single approval request round-trip.
type RequestID rawID

func NewRequestID() RequestID { return RequestID(newRawID()) }

func (id RequestID) String() string { return string(id) }
func (id RequestID) IsZero() bool   { return id == "" }

func (id RequestID) MarshalJSON() ([]byte, error) { return json.Marshal(string(id)) }

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = RequestID(s)
	return nil
}

// NonEmptyString wraps a string guaranteed not to be empty or
// whitespace-only at construction time.
type NonEmptyString struct {
	value string
}

// NewNonEmptyString validates s and wraps it. The original (untrimmed)
// value is preserved; only the emptiness check trims.
func NewNonEmptyString(s string) (NonEmptyString, error) {
	if strings.TrimSpace(s) == "" {
		return NonEmptyString{}, ErrEmptyString
	}
	return NonEmptyString{value: s}, nil
}

// MustNonEmptyString panics if s is empty; for use with known-good literals.
func MustNonEmptyString(s string) NonEmptyString {
	v, err := NewNonEmptyString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (n NonEmptyString) String() string { return n.value }

func (n NonEmptyString) MarshalJSON() ([]byte, error) { return json.Marshal(n.value) }

func (n *NonEmptyString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := NewNonEmptyString(s)
	if err != nil {
		return err
	}
	*n = v
	return nil
}
