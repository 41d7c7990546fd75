package provider

import (
	"context"
	"io"
	"testing"

	einoschema "github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/opencode/internal/domain/delta"
	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// fakeStream replays a canned sequence of chunks, mirroring the shape a
// real Eino stream delivers: either full-accumulated text (each chunk
// starts with the previous) or pure deltas, plus tool-call chunks keyed
// by Index.
type fakeStream struct {
	chunks []*einoschema.Message
	pos    int
}

func (f *fakeStream) Recv() (*einoschema.Message, error) {
	if f.pos >= len(f.chunks) {
		return nil, io.EOF
	}
	m := f.chunks[f.pos]
	f.pos++
	return m, nil
}

func idx(i int) *int { return &i }

func TestConsumeStreamAccumulatedText(t *testing.T) {
	stream := &fakeStream{chunks: []*einoschema.Message{
		{Content: "Hello"},
		{Content: "Hello, world"},
		{Content: "Hello, world!"},
	}}

	var deltas []delta.StreamDelta
	result, err := consumeStream(context.Background(), domain.NewOpID(), domain.NewMessageID(), stream, func(d delta.StreamDelta) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}

	if len(deltas) != 3 {
		t.Fatalf("len(deltas) = %d, want 3", len(deltas))
	}
	wantDeltas := []string{"Hello", ", world", "!"}
	for i, want := range wantDeltas {
		tc, ok := deltas[i].(delta.TextChunk)
		if !ok {
			t.Fatalf("deltas[%d] type = %T, want TextChunk", i, deltas[i])
		}
		if tc.Delta != want {
			t.Fatalf("deltas[%d].Delta = %q, want %q", i, tc.Delta, want)
		}
	}

	if len(result.Content) != 1 {
		t.Fatalf("len(result.Content) = %d, want 1", len(result.Content))
	}
	text, ok := result.Content[0].(conversation.TextContent)
	if !ok || text.Text != "Hello, world!" {
		t.Fatalf("result.Content[0] = %+v, want TextContent{Hello, world!}", result.Content[0])
	}
}

func TestConsumeStreamPureDeltaText(t *testing.T) {
	stream := &fakeStream{chunks: []*einoschema.Message{
		{Content: "foo"},
		{Content: "bar"},
	}}

	result, err := consumeStream(context.Background(), domain.NewOpID(), domain.NewMessageID(), stream, func(delta.StreamDelta) {})
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}
	text, ok := result.Content[0].(conversation.TextContent)
	if !ok || text.Text != "foobar" {
		t.Fatalf("result.Content[0] = %+v, want TextContent{foobar}", result.Content[0])
	}
}

func TestConsumeStreamToolCallByIndex(t *testing.T) {
	stream := &fakeStream{chunks: []*einoschema.Message{
		{ToolCalls: []einoschema.ToolCall{{Index: idx(0), ID: "call_1", Function: einoschema.FunctionCall{Name: "bash"}}}},
		{ToolCalls: []einoschema.ToolCall{{Index: idx(0), Function: einoschema.FunctionCall{Arguments: `{"cmd":`}}}},
		{ToolCalls: []einoschema.ToolCall{{Index: idx(0), Function: einoschema.FunctionCall{Arguments: `"ls"}`}}}},
	}}

	var toolDeltas []delta.ToolCallChunk
	_, err := consumeStream(context.Background(), domain.NewOpID(), domain.NewMessageID(), stream, func(d delta.StreamDelta) {
		if tc, ok := d.(delta.ToolCallChunk); ok {
			toolDeltas = append(toolDeltas, tc)
		}
	})
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}

	if len(toolDeltas) != 3 {
		t.Fatalf("len(toolDeltas) = %d, want 3 (1 name + 2 argument chunks)", len(toolDeltas))
	}
	if toolDeltas[0].Kind != delta.ToolCallName || toolDeltas[0].Delta != "bash" {
		t.Fatalf("toolDeltas[0] = %+v, want name chunk 'bash'", toolDeltas[0])
	}
	if toolDeltas[1].Kind != delta.ToolCallArgumentChunk || toolDeltas[2].Kind != delta.ToolCallArgumentChunk {
		t.Fatalf("toolDeltas[1:] kinds = %v, want ToolCallArgumentChunk", []delta.ToolCallDeltaKind{toolDeltas[1].Kind, toolDeltas[2].Kind})
	}
}

func TestToEinoMessagesIncludesSystemPrompt(t *testing.T) {
	thread := []conversation.Message{
		{ID: domain.NewMessageID(), Data: conversation.UserData{Content: []conversation.UserContent{conversation.TextContent{Text: "hi"}}}},
	}
	msgs := toEinoMessages("be concise", thread)
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != einoschema.System || msgs[0].Content != "be concise" {
		t.Fatalf("msgs[0] = %+v, want system prompt", msgs[0])
	}
	if msgs[1].Role != einoschema.User || msgs[1].Content != "hi" {
		t.Fatalf("msgs[1] = %+v, want user 'hi'", msgs[1])
	}
}
