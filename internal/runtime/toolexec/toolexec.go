// Package toolexec adapts the teacher's internal/tool.Registry to the
// domain's ExecuteTool effect: it looks up a tool.Tool by name, runs it
// with the call's parameters, and maps its *tool.Result back into a
// conversation.ToolOutcome the reducer can fold into the message graph.
//
// Approval is no longer this package's concern: the reducer's approval
// pipeline (internal/domain/reduce) gates which calls reach ExecuteTool at
// all, and the tools in internal/tool (bash.go included) carry no
// permission checker of their own, so the adapter runs every call it
// receives.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// Executor is the seam internal/runtime/interpreter depends on to carry
// out ExecuteTool effects, satisfied in production by *Adapter.
type Executor interface {
	Execute(ctx context.Context, session domain.SessionID, call domain.ToolCall) (conversation.ToolOutcome, *domain.ToolError)
}

// Adapter is the production Executor, backed by a tool.Registry.
type Adapter struct {
	registry *tool.Registry
	workDir  string
}

// New returns an Adapter that resolves calls against registry.
func New(registry *tool.Registry, workDir string) *Adapter {
	return &Adapter{registry: registry, workDir: workDir}
}

// Execute runs call.Name with call.Parameters and translates the result.
// A missing tool or a parameter marshal failure surfaces as a
// domain.ToolError with kind invalid; an error returned by the tool or a
// non-nil tool.Result.Error surfaces as kind execution; a context
// cancellation surfaces as kind cancelled.
func (a *Adapter) Execute(ctx context.Context, session domain.SessionID, call domain.ToolCall) (conversation.ToolOutcome, *domain.ToolError) {
	t, ok := a.registry.Get(call.Name)
	if !ok {
		return conversation.ToolOutcome{}, &domain.ToolError{
			Kind:    domain.ToolErrorInvalid,
			Message: fmt.Sprintf("unknown tool: %s", call.Name),
		}
	}

	input, err := json.Marshal(call.Parameters)
	if err != nil {
		return conversation.ToolOutcome{}, &domain.ToolError{
			Kind:    domain.ToolErrorInvalid,
			Message: fmt.Sprintf("encode tool parameters: %v", err),
		}
	}

	abortCh := ctx.Done()
	toolCtx := &tool.Context{
		SessionID: session.String(),
		CallID:    call.ID.String(),
		WorkDir:   a.workDir,
		AbortCh:   abortCh,
	}

	result, err := t.Execute(ctx, input, toolCtx)
	if ctx.Err() != nil {
		return conversation.ToolOutcome{}, domain.NewCancelledToolError(call.Name)
	}
	if err != nil {
		return conversation.ToolOutcome{}, &domain.ToolError{Kind: domain.ToolErrorExecution, Message: err.Error()}
	}
	if result.Error != nil {
		return conversation.ToolOutcome{}, &domain.ToolError{Kind: domain.ToolErrorExecution, Message: result.Error.Error()}
	}

	outcome := conversation.ToolOutcome{Value: toResultValue(result)}
	return outcome, nil
}

// toResultValue maps a tool.Result onto the closed conversation
// ToolResultValue set. Every built-in tool in the teacher's registry
// returns plain text output (read, edit, grep, bash, webfetch, ...);
// richer variants (file content, edit diff, blob) are available for
// tools that choose to populate Result.Metadata with a recognized shape,
// falling back to PlainTextResult otherwise.
func toResultValue(result *tool.Result) conversation.ToolResultValue {
	if result.Metadata != nil {
		if path, ok := result.Metadata["path"].(string); ok {
			if before, ok := result.Metadata["before"].(string); ok {
				return conversation.EditResult{
					Path:   path,
					Before: before,
					After:  stringMeta(result.Metadata, "after"),
					Diff:   result.Output,
				}
			}
			return conversation.FileContentResult{Path: path, Content: result.Output}
		}
	}
	return conversation.PlainTextResult{Text: result.Output}
}

func stringMeta(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

var _ Executor = (*Adapter)(nil)
