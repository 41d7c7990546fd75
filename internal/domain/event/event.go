// Package event defines SessionEvent: the durable, user-visible record
// produced by the reducer and appended to the EventStore. Unlike Action,
// every variant here must serialize — it is the unit of replay.
//
// Grounded on original_source/crates/steer-core/src/app/domain/event.rs.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// OperationKind mirrors the in-flight operation kind recorded alongside
// OperationStarted.
type OperationKind string

const (
	OperationAgentLoop  OperationKind = "agent_loop"
	OperationCompact    OperationKind = "compact"
	OperationDirectBash OperationKind = "direct_bash"
)

// SessionEvent is the closed set of durable events.
type SessionEvent interface {
	isSessionEvent()
	// Kind returns the tagged discriminator used for JSON persistence.
	Kind() string
}

type SessionCreated struct {
	Metadata map[string]string
}

func (SessionCreated) isSessionEvent() {}
func (SessionCreated) Kind() string    { return "session_created" }

type MessageAdded struct {
	Message conversation.Message
}

func (MessageAdded) isSessionEvent() {}
func (MessageAdded) Kind() string    { return "message_added" }

type MessageUpdated struct {
	ID      domain.MessageID
	Content string
}

func (MessageUpdated) isSessionEvent() {}
func (MessageUpdated) Kind() string    { return "message_updated" }

type ToolCallStarted struct {
	ID         domain.ToolCallID
	Name       string
	Parameters map[string]any
}

func (ToolCallStarted) isSessionEvent() {}
func (ToolCallStarted) Kind() string    { return "tool_call_started" }

type ToolCallCompleted struct {
	ID     domain.ToolCallID
	Name   string
	Result conversation.ToolOutcome
}

func (ToolCallCompleted) isSessionEvent() {}
func (ToolCallCompleted) Kind() string    { return "tool_call_completed" }

type ToolCallFailed struct {
	ID    domain.ToolCallID
	Name  string
	Error string
}

func (ToolCallFailed) isSessionEvent() {}
func (ToolCallFailed) Kind() string    { return "tool_call_failed" }

type ApprovalRequested struct {
	RequestID domain.RequestID
	ToolCall  domain.ToolCall
}

func (ApprovalRequested) isSessionEvent() {}
func (ApprovalRequested) Kind() string    { return "approval_requested" }

// ApprovalDecision/ApprovalMemory are re-declared here (rather than
// imported from the action package) to keep the durable event vocabulary
// free of a dependency on the in-memory action vocabulary.
type ApprovalDecision string

const (
	Approved ApprovalDecision = "approved"
	Denied   ApprovalDecision = "denied"
)

type ApprovalMemoryKind string

const (
	RememberNone        ApprovalMemoryKind = "none"
	RememberTool        ApprovalMemoryKind = "tool"
	RememberBashPattern ApprovalMemoryKind = "bash_pattern"
)

type ApprovalMemory struct {
	Kind  ApprovalMemoryKind
	Value string
}

type ApprovalDecided struct {
	RequestID domain.RequestID
	Decision  ApprovalDecision
	Remember  ApprovalMemory
}

func (ApprovalDecided) isSessionEvent() {}
func (ApprovalDecided) Kind() string    { return "approval_decided" }

type OperationStarted struct {
	OpID domain.OpID
	Kind_ OperationKind
}

func (OperationStarted) isSessionEvent() {}
func (OperationStarted) Kind() string    { return "operation_started" }

type OperationCompleted struct {
	OpID domain.OpID
}

func (OperationCompleted) isSessionEvent() {}
func (OperationCompleted) Kind() string    { return "operation_completed" }

type CancellationInfo struct {
	PendingToolCalls int
}

type OperationCancelled struct {
	OpID domain.OpID
	Info CancellationInfo
}

func (OperationCancelled) isSessionEvent() {}
func (OperationCancelled) Kind() string    { return "operation_cancelled" }

type ModelChanged struct {
	Model string
}

func (ModelChanged) isSessionEvent() {}
func (ModelChanged) Kind() string    { return "model_changed" }

// WorkspaceChanged reports a detected VCS branch change in the
// workspace, e.g. from internal/vcs.Watcher observing .git/HEAD.
type WorkspaceChanged struct {
	Branch string
}

func (WorkspaceChanged) isSessionEvent() {}
func (WorkspaceChanged) Kind() string    { return "workspace_changed" }

type Error struct {
	Message string
}

func (Error) isSessionEvent() {}
func (Error) Kind() string    { return "error" }

// IsError reports whether evt represents a failure worth preserving under
// dispatcher backpressure (ToolCallFailed and Error both qualify).
func IsError(evt SessionEvent) bool {
	switch evt.(type) {
	case Error, ToolCallFailed:
		return true
	default:
		return false
	}
}

// envelope is the wire format used for persistence: a type tag plus the
// variant's fields as a nested JSON object under "data".
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Marshal serializes a SessionEvent for the EventStore.
func Marshal(evt SessionEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: evt.Kind(), Data: data})
}

// Unmarshal deserializes a SessionEvent from its persisted form.
func Unmarshal(raw []byte) (SessionEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("event: unmarshal envelope: %w", err)
	}

	var evt SessionEvent
	switch env.Type {
	case "session_created":
		evt = &SessionCreated{}
	case "message_added":
		evt = &MessageAdded{}
	case "message_updated":
		evt = &MessageUpdated{}
	case "tool_call_started":
		evt = &ToolCallStarted{}
	case "tool_call_completed":
		evt = &ToolCallCompleted{}
	case "tool_call_failed":
		evt = &ToolCallFailed{}
	case "approval_requested":
		evt = &ApprovalRequested{}
	case "approval_decided":
		evt = &ApprovalDecided{}
	case "operation_started":
		evt = &OperationStarted{}
	case "operation_completed":
		evt = &OperationCompleted{}
	case "operation_cancelled":
		evt = &OperationCancelled{}
	case "model_changed":
		evt = &ModelChanged{}
	case "workspace_changed":
		evt = &WorkspaceChanged{}
	case "error":
		evt = &Error{}
	default:
		return nil, fmt.Errorf("event: unknown type %q", env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, evt); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s payload: %w", env.Type, err)
		}
	}

	// Dereference back to value types to match what reduce.go produces.
	switch v := evt.(type) {
	case *SessionCreated:
		return *v, nil
	case *MessageAdded:
		return *v, nil
	case *MessageUpdated:
		return *v, nil
	case *ToolCallStarted:
		return *v, nil
	case *ToolCallCompleted:
		return *v, nil
	case *ToolCallFailed:
		return *v, nil
	case *ApprovalRequested:
		return *v, nil
	case *ApprovalDecided:
		return *v, nil
	case *OperationStarted:
		return *v, nil
	case *OperationCompleted:
		return *v, nil
	case *OperationCancelled:
		return *v, nil
	case *ModelChanged:
		return *v, nil
	case *WorkspaceChanged:
		return *v, nil
	case *Error:
		return *v, nil
	}
	return evt, nil
}
