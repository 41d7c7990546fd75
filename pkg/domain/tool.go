package domain

import "encoding/json"

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID         ToolCallID
	Name       string
	Parameters map[string]any
}

// ToolSchema describes one tool available for the model to call.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// ToolErrorKind classifies why a tool call failed.
type ToolErrorKind string

const (
	ToolErrorExecution  ToolErrorKind = "execution"
	ToolErrorCancelled  ToolErrorKind = "cancelled"
	ToolErrorPermission ToolErrorKind = "permission_denied"
	ToolErrorInvalid    ToolErrorKind = "invalid_input"
)

// ToolError is returned by a ToolExecutor when a call fails.
type ToolError struct {
	Kind    ToolErrorKind
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// NewCancelledToolError builds the synthetic error used when an operation
// is cancelled while a tool call is pending or awaiting approval.
func NewCancelledToolError(toolName string) *ToolError {
	return &ToolError{Kind: ToolErrorCancelled, Message: "tool call cancelled: " + toolName}
}
