// Package effect defines Effect: the closed set of side effects the
// reducer can request. The reducer never performs these itself — it only
// describes them; internal/runtime/interpreter carries them out and feeds
// any resulting Action back into the actor's mailbox.
//
// Grounded on original_source/crates/steer-core/src/app/domain/effect.rs.
package effect

import (
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// Effect is the closed set of side effects.
type Effect interface {
	isEffect()
}

// EmitEvent appends evt to the session's event log and publishes it on the
// lossless event channel.
type EmitEvent struct {
	Session domain.SessionID
	Event   event.SessionEvent
}

func (EmitEvent) isEffect() {}

// CallModel invokes the provider with the given thread and tool catalog.
// The interpreter streams deltas to the broadcast channel as they arrive
// and eventually feeds back ModelResponseComplete or ModelResponseError.
type CallModel struct {
	Session  domain.SessionID
	OpID     domain.OpID
	Model    string
	Thread   []conversation.Message
	Tools    []domain.ToolSchema
	SystemPrompt string
}

func (CallModel) isEffect() {}

// ExecuteTool runs a single tool call, feeding back action.ToolResult.
type ExecuteTool struct {
	Session domain.SessionID
	OpID    domain.OpID
	Call    domain.ToolCall
}

func (ExecuteTool) isEffect() {}

// RequestUserApproval surfaces a pending approval to whatever UI is
// subscribed; the decision arrives later as ToolApprovalDecided.
type RequestUserApproval struct {
	Session   domain.SessionID
	RequestID domain.RequestID
	ToolCall  domain.ToolCall
}

func (RequestUserApproval) isEffect() {}

// CancelOperation asks the interpreter to invoke the CancelFunc registered
// for opID, tearing down any goroutine it owns.
type CancelOperation struct {
	Session domain.SessionID
	OpID    domain.OpID
}

func (CancelOperation) isEffect() {}

// ListWorkspaceFiles refreshes the workspace file listing used for @-file
// completion and context assembly.
type ListWorkspaceFiles struct {
	Session domain.SessionID
}

func (ListWorkspaceFiles) isEffect() {}

// ConnectMcpServer starts (or restarts) an MCP server connection.
type ConnectMcpServer struct {
	Session    domain.SessionID
	ServerName string
}

func (ConnectMcpServer) isEffect() {}

// DisconnectMcpServer tears down a running MCP server connection.
type DisconnectMcpServer struct {
	Session    domain.SessionID
	ServerName string
}

func (DisconnectMcpServer) isEffect() {}

// RequestCompaction asks the interpreter to run the summarization +
// context-overflow retry loop, feeding back CompactionComplete or
// CompactionFailed.
type RequestCompaction struct {
	Session domain.SessionID
	OpID    domain.OpID
	Model   string
	Thread  []conversation.Message
}

func (RequestCompaction) isEffect() {}
