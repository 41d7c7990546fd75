package subagent

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opencode-ai/opencode/internal/agent"
	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/effect"
	"github.com/opencode-ai/opencode/internal/eventstore"
	"github.com/opencode-ai/opencode/internal/runtime/dispatcher"
	"github.com/opencode-ai/opencode/internal/runtime/interpreter"
	"github.com/opencode-ai/opencode/internal/runtime/supervisor"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// textInterpreter mirrors internal/runtime/supervisor's recordingInterpreter
// fake, except its CallModel feedback carries a fixed reply so
// finalAssistantText has something to extract.
type textInterpreter struct {
	store eventstore.Store
	disp  *dispatcher.DualChannelDispatcher
	reply string
}

func (ti *textInterpreter) Run(ctx context.Context, eff effect.Effect, fb interpreter.Feedback) {
	switch e := eff.(type) {
	case effect.EmitEvent:
		_, _ = ti.store.Append(ctx, e.Session, e.Event)
		ti.disp.DispatchEvent(e.Session, e.Event)
	case effect.CallModel:
		content := []conversation.AssistantContent{conversation.TextContent{Text: ti.reply}}
		fb(action.NewModelResponseComplete(e.Session, e.OpID, domain.NewMessageID(), content, 0))
	}
}

func newTestExecutor(t *testing.T, reply string) *Executor {
	t.Helper()
	store := eventstore.NewMemory()
	metrics := dispatcher.NewChannelMetrics(prometheus.NewRegistry())
	disp, eventCh := dispatcher.New(metrics)
	interp := &textInterpreter{store: store, disp: disp, reply: reply}

	sup, err := supervisor.New(store, disp, eventCh, interp, 10)
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	t.Cleanup(sup.Shutdown)

	registry := agent.NewRegistry()
	registry.Register(&agent.Agent{Name: "explore", Mode: agent.ModeSubagent, BuiltIn: true})

	return New(sup, registry)
}

func TestExecuteSubtaskReturnsAssistantText(t *testing.T) {
	exec := newTestExecutor(t, "done: found 3 matches")
	ctx := context.Background()

	result, err := exec.ExecuteSubtask(ctx, "parent-session", "explore", "find all TODOs", tool.TaskOptions{Description: "scan"})
	if err != nil {
		t.Fatalf("ExecuteSubtask: %v", err)
	}
	if result.Output != "done: found 3 matches" {
		t.Errorf("Output mismatch: got %q", result.Output)
	}
	if result.SessionID == "" {
		t.Error("expected a non-empty child SessionID")
	}
	if result.AgentID != "explore" {
		t.Errorf("AgentID mismatch: got %q, want explore", result.AgentID)
	}
}

func TestExecuteSubtaskRejectsNonSubagent(t *testing.T) {
	exec := newTestExecutor(t, "")
	registry := agent.NewRegistry()
	registry.Register(&agent.Agent{Name: "main", Mode: agent.ModePrimary})
	exec.registry = registry

	_, err := exec.ExecuteSubtask(context.Background(), "parent-session", "main", "do something", tool.TaskOptions{})
	if err == nil {
		t.Fatal("expected an error for a non-subagent agent profile")
	}
}

func TestExecuteSubtaskUnknownAgent(t *testing.T) {
	exec := newTestExecutor(t, "")

	_, err := exec.ExecuteSubtask(context.Background(), "parent-session", "does-not-exist", "do something", tool.TaskOptions{})
	if err == nil {
		t.Fatal("expected an error for an unknown agent name")
	}
}

func TestExecuteSubtaskTimesOut(t *testing.T) {
	store := eventstore.NewMemory()
	metrics := dispatcher.NewChannelMetrics(prometheus.NewRegistry())
	disp, eventCh := dispatcher.New(metrics)
	// silentInterpreter never feeds back a ModelResponseComplete, so the
	// operation never completes and ExecuteSubtask must time out rather
	// than block forever.
	interp := &silentInterpreter{store: store, disp: disp}

	sup, err := supervisor.New(store, disp, eventCh, interp, 10)
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	t.Cleanup(sup.Shutdown)

	registry := agent.NewRegistry()
	registry.Register(&agent.Agent{Name: "explore", Mode: agent.ModeSubagent, BuiltIn: true})

	exec := New(sup, registry)
	exec.timeout = 50 * time.Millisecond

	_, err = exec.ExecuteSubtask(context.Background(), "parent-session", "explore", "hang forever", tool.TaskOptions{})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

type silentInterpreter struct {
	store eventstore.Store
	disp  *dispatcher.DualChannelDispatcher
}

func (si *silentInterpreter) Run(ctx context.Context, eff effect.Effect, fb interpreter.Feedback) {
	if e, ok := eff.(effect.EmitEvent); ok {
		_, _ = si.store.Append(ctx, e.Session, e.Event)
		si.disp.DispatchEvent(e.Session, e.Event)
	}
}
