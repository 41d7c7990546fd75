// Package state defines AppState: the reducer's in-memory session state.
// AppState is produced solely by folding actions through reduce.Reduce (or
// events through reduce.ApplyEventToState during hydration) — nothing else
// is permitted to construct or mutate it in place.
//
// Grounded on original_source/crates/steer-core/src/app/domain/state.rs.
package state

import (
	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/bashmatch"
	"github.com/opencode-ai/opencode/internal/domain/doomloop"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// OperationKind mirrors event.OperationKind without importing the event
// package, keeping state dependency-light; reduce.go translates between
// the two at the boundary.
type OperationKind string

const (
	OperationAgentLoop  OperationKind = "agent_loop"
	OperationCompact    OperationKind = "compact"
	OperationDirectBash OperationKind = "direct_bash"
)

// ActiveOperation tracks one in-flight operation and the tool calls it is
// currently waiting on.
type ActiveOperation struct {
	OpID             domain.OpID
	Kind             OperationKind
	PendingToolCalls map[domain.ToolCallID]bool
}

// PendingApproval is the single approval currently surfaced to the user.
type PendingApproval struct {
	RequestID domain.RequestID
	ToolCall  domain.ToolCall
	OpID      domain.OpID
}

// cancelledOpsCap bounds the cancelled-ops set; once full the oldest
// entry is evicted FIFO. Keeping this bounded is what lets the reducer
// silently drop late results for an op whose cancellation happened long
// ago, without the set growing without limit over a session's lifetime.
const cancelledOpsCap = 100

// AppState is the complete state of a single session.
type AppState struct {
	Session domain.SessionID

	Graph *conversation.Graph

	Sequence uint64

	ActiveOperation *ActiveOperation

	PendingApproval *PendingApproval
	ApprovalQueue   []PendingApproval

	ApprovedTools        map[string]bool
	ApprovedBashPatterns []string

	// DoomLoop flags when a pre-approved tool is being called with
	// identical input in a row, so the reducer can force a fresh approval
	// prompt instead of letting the agent loop run unattended.
	DoomLoop *doomloop.Detector

	// cancelledOps is a bounded FIFO set of operation ids cancelled while
	// still in flight. Results from the interpreter for an op in this set
	// are dropped by the reducer instead of applied.
	cancelledOps     map[domain.OpID]bool
	cancelledOpOrder []domain.OpID

	ToolSchemas []domain.ToolSchema

	McpServers map[string]McpServerState

	Model              string
	CachedSystemPrompt string
	WorkspaceFiles     []string
	Branch             string
}

// McpServerState mirrors the last known connection state of one MCP
// server, so newly-subscribed clients can be caught up without replaying
// the full event log.
type McpServerState struct {
	Name  string
	State action.McpServerStateKind
	Tools []domain.ToolSchema
	Error string
}

// New returns an empty AppState for a freshly created session.
func New(session domain.SessionID) *AppState {
	return &AppState{
		Session:       session,
		Graph:         conversation.NewGraph(),
		ApprovedTools: make(map[string]bool),
		cancelledOps:  make(map[domain.OpID]bool),
		McpServers:    make(map[string]McpServerState),
		DoomLoop:      doomloop.NewDetector(),
	}
}

// IsToolPreApproved reports whether toolName was previously remembered as
// always-approved.
func (s *AppState) IsToolPreApproved(toolName string) bool {
	return s.ApprovedTools[toolName]
}

// IsBashPatternApproved reports whether command matches any remembered
// bash glob pattern.
func (s *AppState) IsBashPatternApproved(command string) bool {
	return bashmatch.AnyMatches(command, s.ApprovedBashPatterns)
}

// ApproveTool remembers toolName as always-approved going forward.
func (s *AppState) ApproveTool(toolName string) {
	s.ApprovedTools[toolName] = true
}

// ApproveBashPattern remembers pattern as an always-approved bash glob.
func (s *AppState) ApproveBashPattern(pattern string) {
	for _, existing := range s.ApprovedBashPatterns {
		if existing == pattern {
			return
		}
	}
	s.ApprovedBashPatterns = append(s.ApprovedBashPatterns, pattern)
}

// IsCancelled reports whether opID was cancelled while in flight.
func (s *AppState) IsCancelled(opID domain.OpID) bool {
	return s.cancelledOps[opID]
}

// RecordCancelledOp adds opID to the bounded cancelled-ops set, evicting
// the oldest entry first if the set is already full.
func (s *AppState) RecordCancelledOp(opID domain.OpID) {
	if s.cancelledOps[opID] {
		return
	}
	if len(s.cancelledOpOrder) >= cancelledOpsCap {
		oldest := s.cancelledOpOrder[0]
		s.cancelledOpOrder = s.cancelledOpOrder[1:]
		delete(s.cancelledOps, oldest)
	}
	s.cancelledOps[opID] = true
	s.cancelledOpOrder = append(s.cancelledOpOrder, opID)
}

// StartOperation installs a new active operation. Only one operation may
// be active per session at a time; callers must check ActiveOperation is
// nil first.
func (s *AppState) StartOperation(opID domain.OpID, kind OperationKind) {
	s.ActiveOperation = &ActiveOperation{
		OpID:             opID,
		Kind:             kind,
		PendingToolCalls: make(map[domain.ToolCallID]bool),
	}
}

// CompleteOperation clears the active operation if it matches opID.
func (s *AppState) CompleteOperation(opID domain.OpID) {
	if s.ActiveOperation != nil && s.ActiveOperation.OpID == opID {
		s.ActiveOperation = nil
	}
}

// AddPendingToolCall marks a tool call as in flight under the active
// operation.
func (s *AppState) AddPendingToolCall(id domain.ToolCallID) {
	if s.ActiveOperation != nil {
		s.ActiveOperation.PendingToolCalls[id] = true
	}
}

// RemovePendingToolCall clears a tool call from the active operation's
// pending set, reporting how many remain.
func (s *AppState) RemovePendingToolCall(id domain.ToolCallID) int {
	if s.ActiveOperation == nil {
		return 0
	}
	delete(s.ActiveOperation.PendingToolCalls, id)
	return len(s.ActiveOperation.PendingToolCalls)
}

// IncrementSequence advances and returns the next event sequence number.
func (s *AppState) IncrementSequence() uint64 {
	s.Sequence++
	return s.Sequence
}

// EnqueueApproval appends a new approval request, or promotes it directly
// to PendingApproval if none is currently outstanding.
func (s *AppState) EnqueueApproval(p PendingApproval) {
	if s.PendingApproval == nil {
		s.PendingApproval = &p
		return
	}
	s.ApprovalQueue = append(s.ApprovalQueue, p)
}

// ResolvePendingApproval clears the current pending approval. Promoting the
// next queued entry is reduce.processQueuedApprovals's job alone: it must be
// the one to emit ApprovalRequested and the matching RequestUserApproval
// effect for whatever it promotes, so this never does that promotion itself.
func (s *AppState) ResolvePendingApproval() {
	s.PendingApproval = nil
}
