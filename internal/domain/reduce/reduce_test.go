package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/effect"
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/internal/domain/state"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

func conversationPlainTextOutcome(text string) conversation.ToolOutcome {
	return conversation.ToolOutcome{Value: conversation.PlainTextResult{Text: text}}
}

func testUserMessage(id domain.MessageID) conversation.Message {
	return conversation.Message{
		ID:   id,
		Data: conversation.UserData{Content: []conversation.UserContent{conversation.TextContent{Text: "hi"}}},
	}
}

func newTestState() *state.AppState {
	st := state.New(domain.NewSessionID())
	st.Model = "claude-sonnet-4-5"
	return st
}

func hasEffect[T effect.Effect](effects []effect.Effect) bool {
	for _, e := range effects {
		if _, ok := e.(T); ok {
			return true
		}
	}
	return false
}

func TestUserInputStartsOperationAndCallsModel(t *testing.T) {
	st := newTestState()
	session := st.Session
	opID := domain.NewOpID()
	msgID := domain.NewMessageID()

	effects := Reduce(st, action.NewUserInput(session, domain.MustNonEmptyString("hello"), opID, msgID, 1))

	require.Equal(t, 1, st.Graph.Len())
	require.NotNil(t, st.ActiveOperation)
	assert.Equal(t, opID, st.ActiveOperation.OpID)
	assert.True(t, hasEffect[effect.CallModel](effects))
	assert.True(t, hasEffect[effect.EmitEvent](effects))
}

func TestLateToolResultIgnoredAfterCancel(t *testing.T) {
	st := newTestState()
	opID := domain.NewOpID()
	toolCallID := domain.NewToolCallID()

	st.StartOperation(opID, state.OperationAgentLoop)
	st.AddPendingToolCall(toolCallID)
	st.RecordCancelledOp(opID)

	effects := Reduce(st, action.ToolResult{
		OpID:       opID,
		ToolCallID: toolCallID,
		Name:       "test",
		Outcome:    conversationPlainTextOutcome("done"),
	})

	assert.Empty(t, effects)
}

func TestPreApprovedToolExecutesImmediately(t *testing.T) {
	st := newTestState()
	opID := domain.NewOpID()
	st.ApproveTool("test_tool")
	st.StartOperation(opID, state.OperationAgentLoop)

	call := domain.ToolCall{ID: domain.NewToolCallID(), Name: "test_tool", Parameters: map[string]any{}}

	effects := Reduce(st, action.NewToolApprovalRequested(st.Session, domain.NewRequestID(), call))

	assert.True(t, hasEffect[effect.ExecuteTool](effects))
	assert.Nil(t, st.PendingApproval)
}

func TestApprovalQueuing(t *testing.T) {
	st := newTestState()
	opID := domain.NewOpID()
	st.StartOperation(opID, state.OperationAgentLoop)

	call1 := domain.ToolCall{ID: domain.NewToolCallID(), Name: "tool_1", Parameters: map[string]any{}}
	call2 := domain.ToolCall{ID: domain.NewToolCallID(), Name: "tool_2", Parameters: map[string]any{}}

	Reduce(st, action.NewToolApprovalRequested(st.Session, domain.NewRequestID(), call1))
	require.NotNil(t, st.PendingApproval)

	Reduce(st, action.NewToolApprovalRequested(st.Session, domain.NewRequestID(), call2))
	assert.Len(t, st.ApprovalQueue, 1)
}

func TestApprovalDecidedPromotesQueuedEntry(t *testing.T) {
	st := newTestState()
	opID := domain.NewOpID()
	st.StartOperation(opID, state.OperationAgentLoop)

	call1 := domain.ToolCall{ID: domain.NewToolCallID(), Name: "tool_1", Parameters: map[string]any{}}
	call2 := domain.ToolCall{ID: domain.NewToolCallID(), Name: "tool_2", Parameters: map[string]any{}}

	Reduce(st, action.NewToolApprovalRequested(st.Session, domain.NewRequestID(), call1))
	req1 := st.PendingApproval.RequestID
	Reduce(st, action.NewToolApprovalRequested(st.Session, domain.NewRequestID(), call2))

	effects := Reduce(st, action.ToolApprovalDecided{RequestID: req1, Decision: action.Approved})

	require.NotNil(t, st.PendingApproval)
	assert.Equal(t, call2.ID, st.PendingApproval.ToolCall.ID)
	assert.True(t, hasEffect[effect.ExecuteTool](effects))
	assert.True(t, hasEffect[effect.RequestUserApproval](effects))
}

func TestCancelBoundedSetEvictsOldest(t *testing.T) {
	st := newTestState()
	var first domain.OpID
	for i := 0; i < 150; i++ {
		op := domain.NewOpID()
		if i == 0 {
			first = op
		}
		st.RecordCancelledOp(op)
	}
	assert.False(t, st.IsCancelled(first))
}

func TestHydrateRestoresSequenceAndMessages(t *testing.T) {
	st := newTestState()
	msgID := domain.NewMessageID()
	events := []event.SessionEvent{
		event.MessageAdded{Message: testUserMessage(msgID)},
	}

	effects := Reduce(st, action.Hydrate{Events: events, StartingSequence: 42})

	assert.Empty(t, effects)
	assert.Equal(t, uint64(42), st.Sequence)
	assert.Equal(t, 1, st.Graph.Len())
}
