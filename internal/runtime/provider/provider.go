// Package provider adapts the teacher's Eino-based internal/provider
// registry to the domain's CallModel effect: it turns a
// conversation.Message thread and a domain.ToolSchema catalog into an
// Eino request, streams the response as delta.StreamDelta values, and
// returns the final assistant content as
// []conversation.AssistantContent for ModelResponseComplete.
//
// Grounded on internal/session/stream.go's processStream /
// processMessageChunk, generalized from mutating *types.Part state in
// place to producing immutable delta.StreamDelta values and a final
// content slice.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	einoschema "github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/opencode/internal/domain/delta"
	"github.com/opencode-ai/opencode/internal/provider"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// ModelCaller invokes a configured provider/model pair and streams the
// response. It is the seam internal/runtime/interpreter depends on,
// satisfied in production by *Adapter.
type ModelCaller interface {
	Call(ctx context.Context, req CallRequest, onDelta func(delta.StreamDelta)) (CallResult, error)
}

// CallRequest carries everything needed to invoke a model, translated
// from an effect.CallModel.
type CallRequest struct {
	Op      domain.OpID
	Msg     domain.MessageID
	Model   string // "provider/model", parsed by provider.ParseModelString
	Thread  []conversation.Message
	Tools   []domain.ToolSchema
	System  string
}

// CallResult is the accumulated outcome of a full, completed stream.
type CallResult struct {
	Content []conversation.AssistantContent
}

// Adapter is the production ModelCaller, backed by a provider.Registry.
type Adapter struct {
	registry *provider.Registry
}

// New returns an Adapter backed by registry.
func New(registry *provider.Registry) *Adapter {
	return &Adapter{registry: registry}
}

// Call resolves req.Model against the registry, issues a streaming
// completion, and feeds delta.StreamDelta values to onDelta as chunks
// arrive, returning the fully assembled content once the stream ends.
func (a *Adapter) Call(ctx context.Context, req CallRequest, onDelta func(delta.StreamDelta)) (CallResult, error) {
	providerID, modelID := provider.ParseModelString(req.Model)
	prov, err := a.registry.Get(providerID)
	if err != nil {
		return CallResult{}, fmt.Errorf("resolve provider %q: %w", providerID, err)
	}

	messages := toEinoMessages(req.System, req.Thread)
	tools := toEinoTools(req.Tools)

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model:    modelID,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return CallResult{}, fmt.Errorf("create completion: %w", err)
	}
	defer stream.Close()

	return consumeStream(ctx, req.Op, req.Msg, stream, onDelta)
}

func toEinoMessages(system string, thread []conversation.Message) []*einoschema.Message {
	var out []*einoschema.Message
	if system != "" {
		out = append(out, &einoschema.Message{Role: einoschema.System, Content: system})
	}
	for _, msg := range thread {
		switch data := msg.Data.(type) {
		case conversation.UserData:
			var text strings.Builder
			for _, c := range data.Content {
				if tc, ok := c.(conversation.TextContent); ok {
					text.WriteString(tc.Text)
				}
			}
			out = append(out, &einoschema.Message{Role: einoschema.User, Content: text.String()})
		case conversation.AssistantData:
			out = append(out, assistantToEino(data))
		case conversation.ToolData:
			out = append(out, toolResultToEino(data))
		}
	}
	return out
}

func assistantToEino(data conversation.AssistantData) *einoschema.Message {
	m := &einoschema.Message{Role: einoschema.Assistant}
	var text strings.Builder
	for _, c := range data.Content {
		switch v := c.(type) {
		case conversation.TextContent:
			text.WriteString(v.Text)
		case conversation.ThoughtContent:
			m.ReasoningContent = v.Text
		case conversation.ToolCallContent:
			args, _ := json.Marshal(v.Input)
			m.ToolCalls = append(m.ToolCalls, einoschema.ToolCall{
				ID: v.ID.String(),
				Function: einoschema.FunctionCall{
					Name:      v.Name,
					Arguments: string(args),
				},
			})
		}
	}
	m.Content = text.String()
	return m
}

func toolResultToEino(data conversation.ToolData) *einoschema.Message {
	content := ""
	if data.Result.IsError() {
		content = *data.Result.Error
	} else if pt, ok := data.Result.Value.(conversation.PlainTextResult); ok {
		content = pt.Text
	}
	return &einoschema.Message{
		Role:       einoschema.Tool,
		Content:    content,
		ToolCallID: data.ToolUseID.String(),
	}
}

func toEinoTools(schemas []domain.ToolSchema) []*einoschema.ToolInfo {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]provider.ToolInfo, len(schemas))
	for i, s := range schemas {
		out[i] = provider.ToolInfo{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return provider.ConvertToEinoTools(out)
}

// toolCallState tracks one in-flight tool call across streamed chunks,
// keyed the same way stream.go does: by Index when the provider supplies
// one, falling back to the call's own ID.
type toolCallState struct {
	id        domain.ToolCallID
	name      string
	arguments strings.Builder
	started   bool
}

// streamReceiver is the subset of *provider.CompletionStream consumeStream
// needs, narrowed to an interface so tests can feed it a canned sequence
// of chunks without constructing a real Eino stream.
type streamReceiver interface {
	Recv() (*einoschema.Message, error)
}

func consumeStream(
	ctx context.Context,
	op domain.OpID,
	msg domain.MessageID,
	stream streamReceiver,
	onDelta func(delta.StreamDelta),
) (CallResult, error) {
	var textBuilder strings.Builder
	var accumulatedContent string
	var thought strings.Builder
	toolStates := make(map[string]*toolCallState)
	var toolOrder []string

	for {
		select {
		case <-ctx.Done():
			return CallResult{}, ctx.Err()
		default:
		}

		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return CallResult{}, fmt.Errorf("receive stream chunk: %w", err)
		}

		if chunk.Content != "" {
			var d string
			if strings.HasPrefix(chunk.Content, accumulatedContent) {
				d = chunk.Content[len(accumulatedContent):]
				accumulatedContent = chunk.Content
			} else {
				d = chunk.Content
				accumulatedContent += chunk.Content
			}
			if d != "" {
				textBuilder.WriteString(d)
				onDelta(delta.TextChunk{Op: op, Msg: msg, Delta: d})
			}
		}

		if chunk.ReasoningContent != "" {
			thought.WriteString(chunk.ReasoningContent)
			onDelta(delta.ThinkingChunk{Op: op, Msg: msg, Delta: chunk.ReasoningContent})
		}

		for _, tc := range chunk.ToolCalls {
			key := tc.ID
			if tc.Index != nil {
				key = fmt.Sprintf("idx:%d", *tc.Index)
			}
			if key == "" {
				continue
			}

			state, exists := toolStates[key]
			if !exists {
				state = &toolCallState{id: domain.ToolCallID(tc.ID), name: tc.Function.Name}
				toolStates[key] = state
				toolOrder = append(toolOrder, key)
			}
			if tc.ID != "" {
				state.id = domain.ToolCallID(tc.ID)
			}
			if tc.Function.Name != "" {
				state.name = tc.Function.Name
			}
			if !state.started && state.id != "" && state.name != "" {
				state.started = true
				onDelta(delta.ToolCallChunk{Op: op, Msg: msg, ToolCallID: state.id, Kind: delta.ToolCallName, Delta: state.name})
			}
			if tc.Function.Arguments != "" {
				state.arguments.WriteString(tc.Function.Arguments)
				onDelta(delta.ToolCallChunk{Op: op, Msg: msg, ToolCallID: state.id, Kind: delta.ToolCallArgumentChunk, Delta: tc.Function.Arguments})
			}
		}
	}

	var content []conversation.AssistantContent
	if textBuilder.Len() > 0 {
		content = append(content, conversation.TextContent{Text: textBuilder.String()})
	}
	if thought.Len() > 0 {
		content = append(content, conversation.ThoughtContent{Text: thought.String()})
	}
	for _, key := range toolOrder {
		state := toolStates[key]
		var input map[string]any
		if raw := state.arguments.String(); raw != "" {
			_ = json.Unmarshal([]byte(raw), &input)
		}
		content = append(content, conversation.ToolCallContent{ID: state.id, Name: state.name, Input: input})
	}

	return CallResult{Content: content}, nil
}
