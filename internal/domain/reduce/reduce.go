// Package reduce implements the pure state transition at the heart of the
// runtime: Reduce folds one action.Action into an *state.AppState and
// returns the effect.Effect values the interpreter must carry out.
// ApplyEventToState folds a durable event.SessionEvent into state, used by
// hydration when rebuilding state from the event log; the live reducer
// mutates state directly in each handler instead.
//
// Grounded on
// original_source/crates/steer-core/src/app/domain/reduce.rs.
package reduce

import (
	"fmt"

	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/effect"
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/internal/domain/state"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

const bashToolName = "bash"

// Reduce applies act to st in place and returns the effects the caller
// requested. It never blocks and never performs I/O.
func Reduce(st *state.AppState, act action.Action) []effect.Effect {
	switch a := act.(type) {
	case action.UserInput:
		return handleUserInput(st, a)
	case action.UserEditedMessage:
		return handleUserEditedMessage(st, a)
	case action.ToolApprovalRequested:
		return handleToolApprovalRequested(st, a)
	case action.ToolApprovalDecided:
		return handleToolApprovalDecided(st, a)
	case action.ToolExecutionStarted:
		return handleToolExecutionStarted(st, a)
	case action.ToolResult:
		return handleToolResult(st, a)
	case action.ModelResponseComplete:
		return handleModelResponseComplete(st, a)
	case action.ModelResponseError:
		return handleModelResponseError(st, a)
	case action.Cancel:
		return handleCancel(st, a)
	case action.RequestCompaction:
		return handleRequestCompaction(st, a)
	case action.CompactionComplete:
		return handleCompactionComplete(st, a)
	case action.CompactionFailed:
		return handleCompactionFailed(st, a)
	case action.DirectBashCommand:
		return handleDirectBashCommand(st, a)
	case action.Hydrate:
		return handleHydrate(st, a)
	case action.ToolSchemasUpdated:
		st.ToolSchemas = a.Schemas
		return nil
	case action.McpServerStateChanged:
		st.McpServers[a.ServerName] = state.McpServerState{
			Name:  a.ServerName,
			State: a.State,
			Tools: a.Tools,
			Error: a.Error,
		}
		return nil
	case action.WorkspaceFilesListed:
		st.WorkspaceFiles = a.Files
		return nil
	case action.WorkspaceChanged:
		st.Branch = a.Branch
		return []effect.Effect{
			effect.EmitEvent{Session: a.SessionID(), Event: event.WorkspaceChanged{Branch: a.Branch}},
			effect.ListWorkspaceFiles{Session: a.SessionID()},
		}
	case action.Shutdown:
		return nil
	default:
		panic(fmt.Sprintf("reduce: unhandled action type %T", act))
	}
}

func threadForModel(st *state.AppState) []conversation.Message {
	return st.Graph.ThreadMessages()
}

func startAgentTurn(st *state.AppState, session domain.SessionID, opID domain.OpID, msg conversation.Message) []effect.Effect {
	st.Graph.AddMessage(msg)
	st.Graph.SetActiveMessageID(msg.ID)
	st.StartOperation(opID, state.OperationAgentLoop)

	return []effect.Effect{
		effect.EmitEvent{Session: session, Event: event.MessageAdded{Message: msg}},
		effect.EmitEvent{Session: session, Event: event.OperationStarted{OpID: opID, Kind_: event.OperationAgentLoop}},
		effect.CallModel{
			Session:      session,
			OpID:         opID,
			Model:        st.Model,
			Thread:       threadForModel(st),
			Tools:        st.ToolSchemas,
			SystemPrompt: st.CachedSystemPrompt,
		},
	}
}

func handleUserInput(st *state.AppState, a action.UserInput) []effect.Effect {
	parent := st.Graph.ActiveMessageID()
	msg := conversation.Message{
		ID:        a.MessageID,
		ParentID:  parent,
		Timestamp: a.Timestamp,
		Data:      conversation.UserData{Content: []conversation.UserContent{conversation.TextContent{Text: a.Text.String()}}},
	}
	return startAgentTurn(st, a.SessionID(), a.OpID, msg)
}

func handleUserEditedMessage(st *state.AppState, a action.UserEditedMessage) []effect.Effect {
	var parent *domain.MessageID
	if original, ok := st.Graph.Get(a.MessageID); ok {
		parent = original.ParentID
	}
	msg := conversation.Message{
		ID:        a.NewMessageID,
		ParentID:  parent,
		Timestamp: a.Timestamp,
		Data:      conversation.UserData{Content: []conversation.UserContent{conversation.TextContent{Text: a.NewContent}}},
	}
	return startAgentTurn(st, a.SessionID(), a.OpID, msg)
}

func isPreApproved(st *state.AppState, call domain.ToolCall) bool {
	// A detected doom loop overrides pre-approval: the same tool call
	// repeated back to back needs a human to break it, regardless of what
	// was remembered earlier in the session.
	if st.DoomLoop.Check(call.Name, call.Parameters) {
		return false
	}

	if st.IsToolPreApproved(call.Name) {
		return true
	}
	if call.Name == bashToolName {
		if cmd, ok := call.Parameters["command"].(string); ok {
			return st.IsBashPatternApproved(cmd)
		}
	}
	return false
}

func handleToolApprovalRequested(st *state.AppState, a action.ToolApprovalRequested) []effect.Effect {
	session := a.SessionID()

	if isPreApproved(st, a.ToolCall) {
		if st.ActiveOperation == nil {
			return nil
		}
		return []effect.Effect{effect.ExecuteTool{Session: session, OpID: st.ActiveOperation.OpID, Call: a.ToolCall}}
	}

	opID := domain.OpID{}
	if st.ActiveOperation != nil {
		opID = st.ActiveOperation.OpID
	}

	pending := state.PendingApproval{RequestID: a.RequestID, ToolCall: a.ToolCall, OpID: opID}

	if st.PendingApproval != nil {
		st.ApprovalQueue = append(st.ApprovalQueue, pending)
		return nil
	}

	st.PendingApproval = &pending

	return []effect.Effect{
		effect.EmitEvent{Session: session, Event: event.ApprovalRequested{RequestID: a.RequestID, ToolCall: a.ToolCall}},
		effect.RequestUserApproval{Session: session, RequestID: a.RequestID, ToolCall: a.ToolCall},
	}
}

func translateRemember(m action.ApprovalMemory) event.ApprovalMemory {
	switch m.Kind {
	case action.RememberTool:
		return event.ApprovalMemory{Kind: event.RememberTool, Value: m.Value}
	case action.RememberBashPattern:
		return event.ApprovalMemory{Kind: event.RememberBashPattern, Value: m.Value}
	default:
		return event.ApprovalMemory{Kind: event.RememberNone}
	}
}

func applyRemember(st *state.AppState, m action.ApprovalMemory) {
	switch m.Kind {
	case action.RememberTool:
		st.ApproveTool(m.Value)
	case action.RememberBashPattern:
		st.ApproveBashPattern(m.Value)
	}
}

func handleToolApprovalDecided(st *state.AppState, a action.ToolApprovalDecided) []effect.Effect {
	session := a.SessionID()

	if st.PendingApproval == nil || st.PendingApproval.RequestID != a.RequestID {
		return nil
	}
	pending := *st.PendingApproval
	st.ResolvePendingApproval()

	var effects []effect.Effect
	effects = append(effects, effect.EmitEvent{
		Session: session,
		Event: event.ApprovalDecided{
			RequestID: a.RequestID,
			Decision:  translateDecision(a.Decision),
			Remember:  translateRemember(a.Remember),
		},
	})

	var justDispatchedTool bool
	if a.Decision == action.Approved {
		applyRemember(st, a.Remember)
		if st.ActiveOperation != nil {
			effects = append(effects, effect.ExecuteTool{Session: session, OpID: st.ActiveOperation.OpID, Call: pending.ToolCall})
			justDispatchedTool = true
		}
	} else {
		effects = append(effects, denyToolCall(st, session, pending.ToolCall)...)
	}

	queued := processQueuedApprovals(st, session)
	effects = append(effects, queued...)

	if !justDispatchedTool && len(queued) == 0 {
		effects = append(effects, continueAgentLoop(st, session)...)
	}
	return effects
}

// denyToolCall records a denied tool call as a failed tool-result message, the
// same way a cancelled one is recorded in handleCancel, so the model sees why
// its request never ran.
func denyToolCall(st *state.AppState, session domain.SessionID, call domain.ToolCall) []effect.Effect {
	reason := "tool call denied by the user"
	parent := st.Graph.ActiveMessageID()
	msg := conversation.Message{
		ID:       domain.MessageID(fmt.Sprintf("denied_%s", call.ID)),
		ParentID: parent,
		Data: conversation.ToolData{
			ToolUseID: call.ID,
			ToolName:  call.Name,
			Result:    conversation.ToolOutcome{Error: &reason},
		},
	}
	st.Graph.AddMessage(msg)
	st.Graph.SetActiveMessageID(msg.ID)
	return []effect.Effect{effect.EmitEvent{Session: session, Event: event.MessageAdded{Message: msg}}}
}

// continueAgentLoop re-invokes CallModel once a model turn's tool calls have
// all resolved: no execution still in flight and no approval still pending
// or queued. Called after a tool result lands and after a denial, both
// points where a turn might have just become fully resolved.
func continueAgentLoop(st *state.AppState, session domain.SessionID) []effect.Effect {
	if st.ActiveOperation == nil {
		return nil
	}
	if len(st.ActiveOperation.PendingToolCalls) > 0 || st.PendingApproval != nil || len(st.ApprovalQueue) > 0 {
		return nil
	}
	return []effect.Effect{effect.CallModel{
		Session:      session,
		OpID:         st.ActiveOperation.OpID,
		Model:        st.Model,
		Thread:       threadForModel(st),
		Tools:        st.ToolSchemas,
		SystemPrompt: st.CachedSystemPrompt,
	}}
}

// processQueuedApprovals mirrors process_next_queued_approval: it resolves
// pre-approved entries from the front of the queue in a loop, surfacing
// the first one that still needs a human decision.
func processQueuedApprovals(st *state.AppState, session domain.SessionID) []effect.Effect {
	var effects []effect.Effect

	for len(st.ApprovalQueue) > 0 {
		queued := st.ApprovalQueue[0]
		st.ApprovalQueue = st.ApprovalQueue[1:]

		if isPreApproved(st, queued.ToolCall) {
			if st.ActiveOperation != nil {
				effects = append(effects, effect.ExecuteTool{Session: session, OpID: st.ActiveOperation.OpID, Call: queued.ToolCall})
			}
			continue
		}

		requestID := domain.NewRequestID()
		pending := state.PendingApproval{RequestID: requestID, ToolCall: queued.ToolCall}
		st.PendingApproval = &pending

		effects = append(effects,
			effect.EmitEvent{Session: session, Event: event.ApprovalRequested{RequestID: requestID, ToolCall: queued.ToolCall}},
			effect.RequestUserApproval{Session: session, RequestID: requestID, ToolCall: queued.ToolCall},
		)
		break
	}

	return effects
}

func translateDecision(d action.ApprovalDecision) event.ApprovalDecision {
	if d == action.Approved {
		return event.Approved
	}
	return event.Denied
}

func handleToolExecutionStarted(st *state.AppState, a action.ToolExecutionStarted) []effect.Effect {
	st.AddPendingToolCall(a.ToolCallID)
	return []effect.Effect{
		effect.EmitEvent{
			Session: a.SessionID(),
			Event:   event.ToolCallStarted{ID: a.ToolCallID, Name: a.Name, Parameters: a.Params},
		},
	}
}

func handleToolResult(st *state.AppState, a action.ToolResult) []effect.Effect {
	if st.ActiveOperation != nil && st.IsCancelled(st.ActiveOperation.OpID) {
		return nil
	}

	remaining := st.RemovePendingToolCall(a.ToolCallID)

	var evt event.SessionEvent
	if a.Err != nil {
		evt = event.ToolCallFailed{ID: a.ToolCallID, Name: a.Name, Error: a.Err.Error()}
	} else {
		evt = event.ToolCallCompleted{ID: a.ToolCallID, Name: a.Name, Result: a.Outcome}
	}

	session := a.SessionID()
	parent := st.Graph.ActiveMessageID()
	resultMsg := conversation.Message{
		ID:       domain.MessageID(fmt.Sprintf("toolresult_%s", a.ToolCallID)),
		ParentID: parent,
		Data:     conversation.ToolData{ToolUseID: a.ToolCallID, ToolName: a.Name, Result: a.Outcome},
	}
	st.Graph.AddMessage(resultMsg)
	st.Graph.SetActiveMessageID(resultMsg.ID)

	effects := []effect.Effect{
		effect.EmitEvent{Session: session, Event: evt},
		effect.EmitEvent{Session: session, Event: event.MessageAdded{Message: resultMsg}},
	}

	if remaining == 0 {
		effects = append(effects, continueAgentLoop(st, session)...)
	}
	return effects
}

// handleModelResponseComplete folds a finished assistant turn into the
// graph. A turn that asked for tool calls routes each one through the same
// approval pipeline handleDirectBashCommand uses; a turn with none ends the
// operation, mirroring handleModelResponseError's completion on failure.
func handleModelResponseComplete(st *state.AppState, a action.ModelResponseComplete) []effect.Effect {
	if st.IsCancelled(a.OpID) {
		return nil
	}

	session := a.SessionID()
	parent := st.Graph.ActiveMessageID()
	msg := conversation.Message{
		ID:        a.MessageID,
		ParentID:  parent,
		Timestamp: a.Timestamp,
		Data:      conversation.AssistantData{Content: a.Content},
	}
	st.Graph.AddMessage(msg)
	st.Graph.SetActiveMessageID(msg.ID)

	effects := []effect.Effect{effect.EmitEvent{Session: session, Event: event.MessageAdded{Message: msg}}}

	calls := conversation.ToolCallsIn(msg)
	if len(calls) == 0 {
		st.CompleteOperation(a.OpID)
		effects = append(effects, effect.EmitEvent{Session: session, Event: event.OperationCompleted{OpID: a.OpID}})
		return effects
	}

	for _, call := range calls {
		toolCall := domain.ToolCall{ID: call.ID, Name: call.Name, Parameters: call.Input}
		effects = append(effects, handleToolApprovalRequested(st, action.NewToolApprovalRequested(session, domain.NewRequestID(), toolCall))...)
	}
	return effects
}

func handleModelResponseError(st *state.AppState, a action.ModelResponseError) []effect.Effect {
	if st.IsCancelled(a.OpID) {
		return nil
	}
	st.CompleteOperation(a.OpID)

	return []effect.Effect{
		effect.EmitEvent{Session: a.SessionID(), Event: event.Error{Message: a.Error}},
		effect.EmitEvent{Session: a.SessionID(), Event: event.OperationCompleted{OpID: a.OpID}},
	}
}

func handleCancel(st *state.AppState, a action.Cancel) []effect.Effect {
	op := st.ActiveOperation
	if op == nil {
		return nil
	}
	if a.OpID != nil && *a.OpID != op.OpID {
		return nil
	}

	st.RecordCancelledOp(op.OpID)

	if st.PendingApproval != nil {
		pending := *st.PendingApproval
		st.PendingApproval = nil

		toolErr := domain.NewCancelledToolError(pending.ToolCall.Name)
		parent := st.Graph.ActiveMessageID()
		msg := conversation.Message{
			ID:       domain.MessageID(fmt.Sprintf("cancelled_%s", pending.ToolCall.ID)),
			ParentID: parent,
			Data: conversation.ToolData{
				ToolUseID: pending.ToolCall.ID,
				ToolName:  pending.ToolCall.Name,
				Result:    conversation.ToolOutcome{Error: &toolErr.Message},
			},
		}
		st.Graph.AddMessage(msg)
	}

	pendingCount := len(op.PendingToolCalls)
	st.ApprovalQueue = nil

	effects := []effect.Effect{
		effect.EmitEvent{
			Session: a.SessionID(),
			Event:   event.OperationCancelled{OpID: op.OpID, Info: event.CancellationInfo{PendingToolCalls: pendingCount}},
		},
		effect.CancelOperation{Session: a.SessionID(), OpID: op.OpID},
	}

	st.ActiveOperation = nil
	return effects
}

func handleRequestCompaction(st *state.AppState, a action.RequestCompaction) []effect.Effect {
	st.StartOperation(a.OpID, state.OperationCompact)
	return []effect.Effect{
		effect.EmitEvent{Session: a.SessionID(), Event: event.OperationStarted{OpID: a.OpID, Kind_: event.OperationCompact}},
		effect.RequestCompaction{Session: a.SessionID(), OpID: a.OpID, Model: a.Model, Thread: threadForModel(st)},
	}
}

func handleCompactionComplete(st *state.AppState, a action.CompactionComplete) []effect.Effect {
	if st.IsCancelled(a.OpID) {
		return nil
	}
	st.CompleteOperation(a.OpID)

	summaryMsg := conversation.Message{
		ID:        a.SummaryMessageID,
		ParentID:  &a.CompactedHeadMessageID,
		Timestamp: a.Timestamp,
		Data:      conversation.AssistantData{Content: []conversation.AssistantContent{conversation.TextContent{Text: a.Summary}}},
	}
	st.Graph.AddMessage(summaryMsg)
	st.Graph.SetActiveMessageID(summaryMsg.ID)

	return []effect.Effect{
		effect.EmitEvent{Session: a.SessionID(), Event: event.MessageAdded{Message: summaryMsg}},
		effect.EmitEvent{Session: a.SessionID(), Event: event.OperationCompleted{OpID: a.OpID}},
	}
}

func handleCompactionFailed(st *state.AppState, a action.CompactionFailed) []effect.Effect {
	if st.IsCancelled(a.OpID) {
		return nil
	}
	st.CompleteOperation(a.OpID)

	return []effect.Effect{
		effect.EmitEvent{Session: a.SessionID(), Event: event.Error{Message: a.Error}},
		effect.EmitEvent{Session: a.SessionID(), Event: event.OperationCompleted{OpID: a.OpID}},
	}
}

// handleDirectBashCommand supplements the reduced action set with a
// dedicated bash-only operation kind, still routed through the normal
// tool-approval pipeline rather than bypassing it.
func handleDirectBashCommand(st *state.AppState, a action.DirectBashCommand) []effect.Effect {
	st.StartOperation(a.OpID, state.OperationDirectBash)
	call := domain.ToolCall{ID: domain.NewToolCallID(), Name: bashToolName, Parameters: map[string]any{"command": a.Command}}

	effects := []effect.Effect{
		effect.EmitEvent{Session: a.SessionID(), Event: event.OperationStarted{OpID: a.OpID, Kind_: event.OperationDirectBash}},
	}
	effects = append(effects, handleToolApprovalRequested(st, action.NewToolApprovalRequested(a.SessionID(), domain.NewRequestID(), call))...)
	return effects
}

func handleHydrate(st *state.AppState, a action.Hydrate) []effect.Effect {
	for _, evt := range a.Events {
		ApplyEventToState(st, evt)
	}
	st.Sequence = a.StartingSequence
	return nil
}

// ApplyEventToState folds a single durable event into state. The Hydrate
// branch calls it for every replayed event; the live handlers above do
// not.
func ApplyEventToState(st *state.AppState, evt event.SessionEvent) {
	switch e := evt.(type) {
	case event.MessageAdded:
		st.Graph.AddMessage(e.Message)
		st.Graph.SetActiveMessageID(e.Message.ID)
	case event.ApprovalDecided:
		if e.Decision == event.Approved {
			switch e.Remember.Kind {
			case event.RememberTool:
				st.ApproveTool(e.Remember.Value)
			case event.RememberBashPattern:
				st.ApproveBashPattern(e.Remember.Value)
			}
		}
		st.ResolvePendingApproval()
	case event.ModelChanged:
		st.Model = e.Model
	case event.WorkspaceChanged:
		st.Branch = e.Branch
	case event.OperationCompleted:
		st.ActiveOperation = nil
	case event.OperationCancelled:
		st.RecordCancelledOp(e.OpID)
		st.ActiveOperation = nil
	}

	st.IncrementSequence()
}
