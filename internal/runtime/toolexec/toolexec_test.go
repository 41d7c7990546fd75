package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// fakeTool is a minimal tool.Tool whose Execute is supplied by the test.
type fakeTool struct {
	id      string
	execute func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error)
}

func (f *fakeTool) ID() string                  { return f.id }
func (f *fakeTool) Description() string         { return "fake tool for tests" }
func (f *fakeTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (f *fakeTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
	return f.execute(ctx, input, toolCtx)
}
func (f *fakeTool) EinoTool() einotool.InvokableTool { return nil }

func newAdapter(t *testing.T, tl tool.Tool) *Adapter {
	t.Helper()
	reg := tool.NewRegistry(t.TempDir(), nil)
	reg.Register(tl)
	return New(reg, t.TempDir())
}

func TestExecuteUnknownToolReturnsInvalidInput(t *testing.T) {
	reg := tool.NewRegistry(t.TempDir(), nil)
	adapter := New(reg, t.TempDir())

	_, toolErr := adapter.Execute(context.Background(), domain.NewSessionID(), domain.ToolCall{Name: "does_not_exist"})
	if toolErr == nil || toolErr.Kind != domain.ToolErrorInvalid {
		t.Fatalf("Execute(unknown) = %+v, want ToolErrorInvalid", toolErr)
	}
}

func TestExecuteSuccessMapsPlainTextResult(t *testing.T) {
	ft := &fakeTool{id: "echo", execute: func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
		var params map[string]any
		json.Unmarshal(input, &params)
		return &tool.Result{Output: "echoed"}, nil
	}}
	adapter := newAdapter(t, ft)

	outcome, toolErr := adapter.Execute(context.Background(), domain.NewSessionID(), domain.ToolCall{
		ID: domain.NewToolCallID(), Name: "echo", Parameters: map[string]any{"x": 1},
	})
	if toolErr != nil {
		t.Fatalf("Execute: unexpected error %+v", toolErr)
	}
	plain, ok := outcome.Value.(conversation.PlainTextResult)
	if !ok || plain.Text != "echoed" {
		t.Fatalf("outcome.Value = %+v, want PlainTextResult{echoed}", outcome.Value)
	}
}

func TestExecuteToolErrorMapsToExecutionKind(t *testing.T) {
	ft := &fakeTool{id: "fails", execute: func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
		return nil, errors.New("boom")
	}}
	adapter := newAdapter(t, ft)

	_, toolErr := adapter.Execute(context.Background(), domain.NewSessionID(), domain.ToolCall{Name: "fails"})
	if toolErr == nil || toolErr.Kind != domain.ToolErrorExecution {
		t.Fatalf("Execute(failing tool) = %+v, want ToolErrorExecution", toolErr)
	}
}

func TestExecuteContextCancelledMapsToCancelledKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ft := &fakeTool{id: "slow", execute: func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
		return nil, context.Canceled
	}}
	adapter := newAdapter(t, ft)

	_, toolErr := adapter.Execute(ctx, domain.NewSessionID(), domain.ToolCall{Name: "slow"})
	if toolErr == nil || toolErr.Kind != domain.ToolErrorCancelled {
		t.Fatalf("Execute(cancelled ctx) = %+v, want ToolErrorCancelled", toolErr)
	}
}

func TestExecuteEditResultFromMetadata(t *testing.T) {
	ft := &fakeTool{id: "edit", execute: func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
		return &tool.Result{
			Output: "--- a\n+++ b\n",
			Metadata: map[string]any{
				"path":   "main.go",
				"before": "old",
				"after":  "new",
			},
		}, nil
	}}
	adapter := newAdapter(t, ft)

	outcome, toolErr := adapter.Execute(context.Background(), domain.NewSessionID(), domain.ToolCall{Name: "edit"})
	if toolErr != nil {
		t.Fatalf("Execute: unexpected error %+v", toolErr)
	}
	edit, ok := outcome.Value.(conversation.EditResult)
	if !ok {
		t.Fatalf("outcome.Value type = %T, want EditResult", outcome.Value)
	}
	if edit.Path != "main.go" || edit.Before != "old" || edit.After != "new" {
		t.Fatalf("edit = %+v, unexpected fields", edit)
	}
}
