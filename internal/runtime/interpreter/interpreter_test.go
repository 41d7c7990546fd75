package interpreter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/domain/delta"
	"github.com/opencode-ai/opencode/internal/domain/effect"
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/internal/eventstore"
	"github.com/opencode-ai/opencode/internal/mcp"
	runtimeprovider "github.com/opencode-ai/opencode/internal/runtime/provider"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// fakeDispatcher records every event/delta it receives.
type fakeDispatcher struct {
	mu     sync.Mutex
	events []event.SessionEvent
	deltas []delta.StreamDelta
}

func (f *fakeDispatcher) DispatchEvent(_ domain.SessionID, evt event.SessionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeDispatcher) DispatchDelta(d delta.StreamDelta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, d)
}

// fakeModelCaller returns a canned result or error, recording whether it
// was invoked and with what thread.
type fakeModelCaller struct {
	result  runtimeprovider.CallResult
	err     error
	threads [][]conversation.Message
}

func (f *fakeModelCaller) Call(_ context.Context, req runtimeprovider.CallRequest, onDelta func(delta.StreamDelta)) (runtimeprovider.CallResult, error) {
	f.threads = append(f.threads, req.Thread)
	if f.err != nil {
		return runtimeprovider.CallResult{}, f.err
	}
	onDelta(delta.TextChunk{Op: req.Op, Msg: req.Msg, Delta: "hi"})
	return f.result, nil
}

// fakeExecutor returns a canned outcome for any tool call.
type fakeExecutor struct {
	outcome conversation.ToolOutcome
	err     *domain.ToolError
}

func (f *fakeExecutor) Execute(_ context.Context, _ domain.SessionID, _ domain.ToolCall) (conversation.ToolOutcome, *domain.ToolError) {
	return f.outcome, f.err
}

func collect(n int) (Feedback, func() []action.Action) {
	var mu sync.Mutex
	var got []action.Action
	done := make(chan struct{}, n)
	fb := func(a action.Action) {
		mu.Lock()
		got = append(got, a)
		mu.Unlock()
		done <- struct{}{}
	}
	wait := func() []action.Action {
		for i := 0; i < n; i++ {
			<-done
		}
		mu.Lock()
		defer mu.Unlock()
		return append([]action.Action{}, got...)
	}
	return fb, wait
}

func TestEmitEventPersistsAndDispatches(t *testing.T) {
	store := eventstore.NewMemory()
	ctx := context.Background()
	session := domain.NewSessionID()
	store.CreateSession(ctx, session)

	disp := &fakeDispatcher{}
	ip := New(store, disp, &fakeModelCaller{}, &fakeExecutor{}, mcp.NewClient(), nil, "")

	ip.Run(ctx, effect.EmitEvent{Session: session, Event: event.SessionCreated{}}, func(action.Action) {
		t.Fatal("EmitEvent should not produce a feedback action")
	})

	envs, err := store.LoadEvents(ctx, session)
	if err != nil || len(envs) != 1 {
		t.Fatalf("LoadEvents = (%v, %v), want 1 event", envs, err)
	}
	if len(disp.events) != 1 {
		t.Fatalf("dispatcher.events = %d, want 1", len(disp.events))
	}
}

func TestCallModelSuccessStreamsAndCompletes(t *testing.T) {
	session := domain.NewSessionID()
	opID := domain.NewOpID()
	caller := &fakeModelCaller{result: runtimeprovider.CallResult{
		Content: []conversation.AssistantContent{conversation.TextContent{Text: "hi"}},
	}}
	disp := &fakeDispatcher{}
	ip := New(eventstore.NewMemory(), disp, caller, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(1)
	ip.Run(context.Background(), effect.CallModel{Session: session, OpID: opID, Model: "anthropic/claude"}, fb)
	got := wait()

	complete, ok := got[0].(action.ModelResponseComplete)
	if !ok {
		t.Fatalf("action type = %T, want ModelResponseComplete", got[0])
	}
	if complete.OpID != opID || complete.SessionID() != session {
		t.Fatalf("complete = %+v, want op %v session %v", complete, opID, session)
	}
	if len(disp.deltas) != 1 {
		t.Fatalf("dispatcher.deltas = %d, want 1", len(disp.deltas))
	}
}

func TestCallModelErrorFeedsBackModelResponseError(t *testing.T) {
	session := domain.NewSessionID()
	opID := domain.NewOpID()
	caller := &fakeModelCaller{err: errors.New("provider exploded")}
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, caller, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(1)
	ip.Run(context.Background(), effect.CallModel{Session: session, OpID: opID}, fb)
	got := wait()

	errAction, ok := got[0].(action.ModelResponseError)
	if !ok || errAction.Error != "provider exploded" {
		t.Fatalf("action = %+v, want ModelResponseError{provider exploded}", got[0])
	}
}

func TestExecuteToolFeedsBackStartedThenResult(t *testing.T) {
	session := domain.NewSessionID()
	opID := domain.NewOpID()
	call := domain.ToolCall{ID: domain.NewToolCallID(), Name: "bash", Parameters: map[string]any{"command": "ls"}}
	exec := &fakeExecutor{outcome: conversation.ToolOutcome{Value: conversation.PlainTextResult{Text: "ok"}}}
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, &fakeModelCaller{}, exec, mcp.NewClient(), nil, "")

	fb, wait := collect(2)
	ip.Run(context.Background(), effect.ExecuteTool{Session: session, OpID: opID, Call: call}, fb)
	got := wait()

	started, ok := got[0].(action.ToolExecutionStarted)
	if !ok || started.ToolCallID != call.ID {
		t.Fatalf("got[0] = %+v, want ToolExecutionStarted for %v", got[0], call.ID)
	}
	result, ok := got[1].(action.ToolResult)
	if !ok || result.ToolCallID != call.ID {
		t.Fatalf("got[1] = %+v, want ToolResult for %v", got[1], call.ID)
	}
	plain, ok := result.Outcome.Value.(conversation.PlainTextResult)
	if !ok || plain.Text != "ok" {
		t.Fatalf("result.Outcome.Value = %+v, want PlainTextResult{ok}", result.Outcome.Value)
	}
}

func TestCancelOperationStopsInFlightCallModel(t *testing.T) {
	session := domain.NewSessionID()
	opID := domain.NewOpID()
	blockUntilCancelled := &blockingCaller{done: make(chan struct{})}
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, blockUntilCancelled, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(1)
	ip.Run(context.Background(), effect.CallModel{Session: session, OpID: opID}, fb)

	<-blockUntilCancelled.started
	ip.Run(context.Background(), effect.CancelOperation{Session: session, OpID: opID}, func(action.Action) {})

	got := wait()
	errAction, ok := got[0].(action.ModelResponseError)
	if !ok || !errors.Is(blockUntilCancelled.ctxErr, context.Canceled) {
		t.Fatalf("got[0] = %+v, ctxErr = %v, want ModelResponseError after cancellation", got[0], errAction)
	}
}

// blockingCaller blocks until its context is cancelled, recording the
// resulting error so the test can assert cancellation actually propagated.
type blockingCaller struct {
	started chan struct{}
	once    sync.Once
	done    chan struct{}
	ctxErr  error
}

func (b *blockingCaller) Call(ctx context.Context, _ runtimeprovider.CallRequest, _ func(delta.StreamDelta)) (runtimeprovider.CallResult, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	b.ctxErr = ctx.Err()
	return runtimeprovider.CallResult{}, ctx.Err()
}

func TestMcpConnectUnknownServerFails(t *testing.T) {
	session := domain.NewSessionID()
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, &fakeModelCaller{}, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(2)
	ip.Run(context.Background(), effect.ConnectMcpServer{Session: session, ServerName: "calculator"}, fb)
	got := wait()

	connecting, ok := got[0].(action.McpServerStateChanged)
	if !ok || connecting.State != action.McpConnecting {
		t.Fatalf("got[0] = %+v, want McpConnecting", got[0])
	}
	failed, ok := got[1].(action.McpServerStateChanged)
	if !ok || failed.State != action.McpFailed {
		t.Fatalf("got[1] = %+v, want McpFailed for an unconfigured server", got[1])
	}
}

func TestMcpDisconnectUnknownServerFails(t *testing.T) {
	session := domain.NewSessionID()
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, &fakeModelCaller{}, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(1)
	ip.Run(context.Background(), effect.DisconnectMcpServer{Session: session, ServerName: "missing"}, fb)
	got := wait()

	failed, ok := got[0].(action.McpServerStateChanged)
	if !ok || failed.State != action.McpFailed {
		t.Fatalf("got[0] = %+v, want McpFailed for an unknown server", got[0])
	}
}

func TestCompactionSuccessUsesLastThreadMessageAsHead(t *testing.T) {
	session := domain.NewSessionID()
	opID := domain.NewOpID()
	head := conversation.Message{ID: domain.NewMessageID(), Data: conversation.UserData{Content: []conversation.UserContent{conversation.TextContent{Text: "go"}}}}
	caller := &fakeModelCaller{result: runtimeprovider.CallResult{Content: []conversation.AssistantContent{conversation.TextContent{Text: "summary text"}}}}
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, caller, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(1)
	ip.Run(context.Background(), effect.RequestCompaction{Session: session, OpID: opID, Model: "anthropic/claude", Thread: []conversation.Message{head}}, fb)
	got := wait()

	complete, ok := got[0].(action.CompactionComplete)
	if !ok {
		t.Fatalf("got[0] = %+v, want CompactionComplete", got[0])
	}
	if complete.CompactedHeadMessageID != head.ID {
		t.Fatalf("CompactedHeadMessageID = %v, want %v", complete.CompactedHeadMessageID, head.ID)
	}
	if complete.Summary != "summary text" {
		t.Fatalf("Summary = %q, want %q", complete.Summary, "summary text")
	}
}

func TestCompactionEmptyThreadFailsImmediately(t *testing.T) {
	session := domain.NewSessionID()
	opID := domain.NewOpID()
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, &fakeModelCaller{}, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(1)
	ip.Run(context.Background(), effect.RequestCompaction{Session: session, OpID: opID, Thread: nil}, fb)
	got := wait()

	if _, ok := got[0].(action.CompactionFailed); !ok {
		t.Fatalf("got[0] = %+v, want CompactionFailed", got[0])
	}
}

func TestCompactionRetriesOnContextOverflowThenGivesUp(t *testing.T) {
	session := domain.NewSessionID()
	opID := domain.NewOpID()
	head := conversation.Message{ID: domain.NewMessageID(), Data: conversation.UserData{Content: []conversation.UserContent{conversation.TextContent{Text: "go"}}}}
	caller := &fakeModelCaller{err: errors.New("context_length_exceeded: too many tokens")}
	ip := New(eventstore.NewMemory(), &fakeDispatcher{}, caller, &fakeExecutor{}, mcp.NewClient(), nil, "")

	fb, wait := collect(1)
	ip.Run(context.Background(), effect.RequestCompaction{Session: session, OpID: opID, Thread: []conversation.Message{head}}, fb)
	got := wait()

	failed, ok := got[0].(action.CompactionFailed)
	if !ok {
		t.Fatalf("got[0] = %+v, want CompactionFailed", got[0])
	}
	// A single-message thread has no tool results to drop, so the retry
	// loop should give up after the very first attempt.
	if len(caller.threads) != 1 {
		t.Fatalf("caller invoked %d times, want 1 (no tool results to drop)", len(caller.threads))
	}
	if failed.Error == "" {
		t.Fatalf("failed.Error is empty")
	}
}
