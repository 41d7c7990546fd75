// Package delta defines StreamDelta: the lossy, coalescible unit of
// streamed model output broadcast to subscribers while an operation is in
// flight. Unlike event.SessionEvent, deltas are never persisted — losing
// one just means a client redraws from the next delta or the eventual
// MessageAdded event.
//
// Grounded on original_source/crates/steer-core/src/app/domain/delta.rs.
package delta

import "github.com/opencode-ai/opencode/pkg/domain"

// StreamDelta is the closed set of streamed output chunks.
type StreamDelta interface {
	isStreamDelta()
	OpID() domain.OpID
	MessageID() domain.MessageID
}

// TextChunk is a chunk of assistant response text.
type TextChunk struct {
	Op    domain.OpID
	Msg   domain.MessageID
	Delta string
}

func (TextChunk) isStreamDelta()             {}
func (c TextChunk) OpID() domain.OpID        { return c.Op }
func (c TextChunk) MessageID() domain.MessageID { return c.Msg }

// ThinkingChunk is a chunk of assistant reasoning/thought text.
type ThinkingChunk struct {
	Op    domain.OpID
	Msg   domain.MessageID
	Delta string
}

func (ThinkingChunk) isStreamDelta()             {}
func (c ThinkingChunk) OpID() domain.OpID        { return c.Op }
func (c ThinkingChunk) MessageID() domain.MessageID { return c.Msg }

// ToolCallDeltaKind distinguishes what a ToolCallChunk carries.
type ToolCallDeltaKind int

const (
	ToolCallName ToolCallDeltaKind = iota
	ToolCallArgumentChunk
)

// ToolCallChunk is a chunk of an in-progress tool call's name or
// arguments, streamed as the model emits them.
type ToolCallChunk struct {
	Op         domain.OpID
	Msg        domain.MessageID
	ToolCallID domain.ToolCallID
	Kind       ToolCallDeltaKind
	Delta      string
}

func (ToolCallChunk) isStreamDelta()             {}
func (c ToolCallChunk) OpID() domain.OpID        { return c.Op }
func (c ToolCallChunk) MessageID() domain.MessageID { return c.Msg }
