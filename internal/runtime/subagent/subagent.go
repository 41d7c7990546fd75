// Package subagent implements tool.TaskExecutor on top of a
// supervisor.Supervisor: running a subtask means spawning a genuine
// child session, submitting the prompt as that session's first user
// message, and waiting for the actor to report the operation complete.
//
// Grounded on
// _examples/telnet2-opencode/go-opencode/internal/executor/subagent.go,
// whose SubagentExecutor did the equivalent job against the teacher's
// session.Service/storage.Storage/event bus. That machinery (types.Session,
// event.SessionCreatedData, session.NewProcessor) no longer exists in this
// tree; everything it did — create a child session scoped to the same
// workspace, resolve the requested agent profile's model, run the turn,
// collect the final assistant text — is now expressed through
// supervisor.Supervisor and the actor/dispatcher runtime instead.
package subagent

import (
	"context"
	"fmt"
	"time"

	"github.com/opencode-ai/opencode/internal/agent"
	"github.com/opencode-ai/opencode/internal/domain/event"
	"github.com/opencode-ai/opencode/internal/runtime/supervisor"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// defaultSubtaskTimeout bounds how long ExecuteSubtask waits for the
// child session's operation to complete before giving up. A subagent
// that never converges (model wedged, tool loop) would otherwise leak
// the caller's goroutine forever.
const defaultSubtaskTimeout = 10 * time.Minute

// Executor implements tool.TaskExecutor by driving a supervisor.Supervisor.
type Executor struct {
	sup      *supervisor.Supervisor
	registry *agent.Registry
	timeout  time.Duration
}

// New builds a subtask Executor. registry resolves the named agent
// profile (its Mode must be subagent or all) to a default model and
// permission posture; sup owns the child sessions it spawns.
func New(sup *supervisor.Supervisor, registry *agent.Registry) *Executor {
	if registry == nil {
		registry = agent.NewRegistry()
	}
	return &Executor{sup: sup, registry: registry, timeout: defaultSubtaskTimeout}
}

// ExecuteSubtask satisfies tool.TaskExecutor. sessionID is the parent
// session the Task tool call originated from; it is currently only
// used to label the child session's metadata, since child sessions are
// independent actors rather than nested within the parent's state.
func (e *Executor) ExecuteSubtask(ctx context.Context, sessionID string, agentName string, prompt string, opts tool.TaskOptions) (*tool.TaskResult, error) {
	profile, err := e.registry.Get(agentName)
	if err != nil {
		return nil, fmt.Errorf("subagent: unknown agent %q: %w", agentName, err)
	}
	if !profile.IsSubagent() {
		return nil, fmt.Errorf("subagent: agent %q is not usable as a subagent", agentName)
	}

	model := opts.Model
	if model == "" && profile.Model != nil {
		model = fmt.Sprintf("%s/%s", profile.Model.ProviderID, profile.Model.ModelID)
	}

	preApprovedTools, preApprovedBash := profile.PreApprovalSeed()

	childSession, err := e.sup.CreateSession(ctx, supervisor.SessionConfig{
		Model: model,
		Metadata: map[string]string{
			"parentSessionID": sessionID,
			"agent":           agentName,
			"description":     opts.Description,
		},
		PreApprovedTools:        preApprovedTools,
		PreApprovedBashPatterns: preApprovedBash,
	})
	if err != nil {
		return nil, fmt.Errorf("subagent: create child session: %w", err)
	}

	sub, err := e.sup.SubscribeEvents(ctx, childSession)
	if err != nil {
		return nil, fmt.Errorf("subagent: subscribe to child session: %w", err)
	}
	defer sub.Close()

	opID, err := e.sup.SubmitUserInput(ctx, childSession, prompt, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("subagent: submit prompt: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := waitForCompletion(runCtx, sub, opID); err != nil {
		return nil, err
	}

	thread, err := e.sup.ActiveThread(ctx, childSession)
	if err != nil {
		return nil, fmt.Errorf("subagent: read child session thread: %w", err)
	}

	return &tool.TaskResult{
		Output:    finalAssistantText(thread),
		SessionID: string(childSession),
		AgentID:   agentName,
	}, nil
}

// waitForCompletion blocks until sub reports an OperationCompleted or
// OperationCancelled event for opID, any Error event, or ctx expires.
// Completion and cancellation events for other operations are skipped;
// Error events are not matched against opID, since a freshly created
// child session runs only this one operation.
func waitForCompletion(ctx context.Context, sub *supervisor.Subscription, opID domain.OpID) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("subagent: operation %s: %w", opID, ctx.Err())
		case env, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("subagent: operation %s: event stream closed before completion", opID)
			}
			switch e := env.Event.(type) {
			case event.OperationCompleted:
				if e.OpID == opID {
					return nil
				}
			case event.OperationCancelled:
				if e.OpID == opID {
					return fmt.Errorf("subagent: operation %s was cancelled", e.OpID)
				}
			case event.Error:
				return fmt.Errorf("subagent: operation %s failed: %s", opID, e.Message)
			}
		}
	}
}

// finalAssistantText returns the text of the last assistant message in
// thread, joining multiple TextContent blocks with blank lines
// (ThoughtContent is skipped). Returns "" if the thread carries no assistant output,
// which the caller surfaces as an empty TaskResult rather than an
// error — an agent that only called tools and never wrote a summary is
// unusual but not itself a failure.
func finalAssistantText(thread []conversation.Message) string {
	for i := len(thread) - 1; i >= 0; i-- {
		ad, ok := thread[i].Data.(conversation.AssistantData)
		if !ok {
			continue
		}
		var text string
		for _, c := range ad.Content {
			if tc, ok := c.(conversation.TextContent); ok {
				if text != "" {
					text += "\n\n"
				}
				text += tc.Text
			}
		}
		return text
	}
	return ""
}
