package conversation

import "github.com/opencode-ai/opencode/pkg/domain"

// Graph is a directed forest of messages. Branches created by editing an
// older message remain reachable but fall outside the active thread.
//
// Grounded on the teacher's MessageGraph usage in internal/session/loop.go
// (thread assembly for prompt building) and the original Rust
// app::conversation::MessageGraph it replaces.
type Graph struct {
	messages        map[domain.MessageID]Message
	order           []domain.MessageID
	activeMessageID *domain.MessageID
}

// NewGraph returns an empty message graph.
func NewGraph() *Graph {
	return &Graph{messages: make(map[domain.MessageID]Message)}
}

// AddMessage inserts msg into the graph. Messages are never mutated after
// insertion; updates are modeled as new messages.
func (g *Graph) AddMessage(msg Message) {
	if _, exists := g.messages[msg.ID]; !exists {
		g.order = append(g.order, msg.ID)
	}
	g.messages[msg.ID] = msg
}

// Get returns the message with the given id.
func (g *Graph) Get(id domain.MessageID) (Message, bool) {
	m, ok := g.messages[id]
	return m, ok
}

// ActiveMessageID returns the tip of the currently visible thread.
func (g *Graph) ActiveMessageID() *domain.MessageID { return g.activeMessageID }

// SetActiveMessageID moves the active tip. The referenced message must
// already exist in the graph.
func (g *Graph) SetActiveMessageID(id domain.MessageID) {
	copied := id
	g.activeMessageID = &copied
}

// Len returns the number of messages in the graph.
func (g *Graph) Len() int { return len(g.messages) }

// ThreadMessages walks parent links from the active tip back to a root and
// returns them oldest-first: the prompt assembled for the model.
func (g *Graph) ThreadMessages() []Message {
	if g.activeMessageID == nil {
		return nil
	}

	var reversed []Message
	cur := *g.activeMessageID
	seen := make(map[domain.MessageID]bool)
	for {
		msg, ok := g.messages[cur]
		if !ok || seen[cur] {
			break
		}
		seen[cur] = true
		reversed = append(reversed, msg)
		if msg.ParentID == nil {
			break
		}
		cur = *msg.ParentID
	}

	out := make([]Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out
}

// FindToolCallAncestor reports whether toolUseID matches a ToolCallContent
// block in some ancestor Assistant message of id (walking parent links),
// the invariant that keeps every Tool message balanced against a real
// tool-call block.
func (g *Graph) FindToolCallAncestor(id domain.MessageID, toolUseID domain.ToolCallID) bool {
	cur := id
	seen := make(map[domain.MessageID]bool)
	for {
		msg, ok := g.messages[cur]
		if !ok || seen[cur] {
			return false
		}
		seen[cur] = true
		for _, call := range ToolCallsIn(msg) {
			if call.ID == toolUseID {
				return true
			}
		}
		if msg.ParentID == nil {
			return false
		}
		cur = *msg.ParentID
	}
}

// All returns every message in insertion order (for hydration/debugging;
// not the active thread).
func (g *Graph) All() []Message {
	out := make([]Message, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.messages[id])
	}
	return out
}
