package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/opencode/pkg/domain"
)

func TestThreadMessagesWalksToRoot(t *testing.T) {
	g := NewGraph()

	root := Message{ID: domain.NewMessageID(), Data: UserData{Content: []UserContent{TextContent{Text: "hi"}}}}
	g.AddMessage(root)

	child := Message{ID: domain.NewMessageID(), ParentID: &root.ID, Data: AssistantData{Content: []AssistantContent{TextContent{Text: "hello"}}}}
	g.AddMessage(child)
	g.SetActiveMessageID(child.ID)

	thread := g.ThreadMessages()
	require.Len(t, thread, 2)
	assert.Equal(t, root.ID, thread[0].ID)
	assert.Equal(t, child.ID, thread[1].ID)
}

func TestBranchesOutsideActiveThreadAreNotWalked(t *testing.T) {
	g := NewGraph()
	root := Message{ID: domain.NewMessageID(), Data: UserData{}}
	g.AddMessage(root)

	branchA := Message{ID: domain.NewMessageID(), ParentID: &root.ID, Data: UserData{}}
	branchB := Message{ID: domain.NewMessageID(), ParentID: &root.ID, Data: UserData{}}
	g.AddMessage(branchA)
	g.AddMessage(branchB)
	g.SetActiveMessageID(branchA.ID)

	thread := g.ThreadMessages()
	ids := make(map[domain.MessageID]bool)
	for _, m := range thread {
		ids[m.ID] = true
	}
	assert.True(t, ids[branchA.ID])
	assert.False(t, ids[branchB.ID])
	assert.Equal(t, 3, g.Len())
}

func TestFindToolCallAncestor(t *testing.T) {
	g := NewGraph()
	callID := domain.NewToolCallID()

	assistant := Message{
		ID: domain.NewMessageID(),
		Data: AssistantData{Content: []AssistantContent{
			ToolCallContent{ID: callID, Name: "bash"},
		}},
	}
	g.AddMessage(assistant)

	toolMsg := Message{ID: domain.NewMessageID(), ParentID: &assistant.ID, Data: ToolData{ToolUseID: callID}}
	g.AddMessage(toolMsg)

	assert.True(t, g.FindToolCallAncestor(toolMsg.ID, callID))
	assert.False(t, g.FindToolCallAncestor(toolMsg.ID, domain.NewToolCallID()))
}
