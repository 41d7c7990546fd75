// Package conversation models the session message graph: a directed forest
// of User, Assistant, and Tool messages, and the walk that produces the
// active thread used to build model prompts.
package conversation

import "github.com/opencode-ai/opencode/pkg/domain"

// MessageData is the closed set of message payload kinds. Implemented by
// UserData, AssistantData, and ToolData.
type MessageData interface {
	isMessageData()
}

// Message is a single node in the conversation graph.
type Message struct {
	ID       domain.MessageID
	ParentID *domain.MessageID
	Timestamp int64
	Data     MessageData
}

// UserContent is the closed set of content items a user message may carry.
type UserContent interface{ isUserContent() }

type TextContent struct{ Text string }

func (TextContent) isUserContent()      {}
func (TextContent) isAssistantContent() {}

type ImageContent struct {
	URL       string
	MediaType string
}

func (ImageContent) isUserContent()      {}
func (ImageContent) isAssistantContent() {}

// CommandContent records a command the user executed inline (e.g. a shell
// snippet run from the chat composer), with its captured output.
type CommandContent struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

func (CommandContent) isUserContent() {}

// UserData is the payload of a user-authored message.
type UserData struct {
	Content []UserContent
}

func (UserData) isMessageData() {}

// AssistantContent is the closed set of content blocks an assistant message
// may carry.
type AssistantContent interface{ isAssistantContent() }

type ThoughtContent struct{ Text string }

func (ThoughtContent) isAssistantContent() {}

// ToolCallContent represents one tool invocation requested by the model.
type ToolCallContent struct {
	ID    domain.ToolCallID
	Name  string
	Input map[string]any
}

func (ToolCallContent) isAssistantContent() {}

// AssistantData is the payload of a model-authored message.
type AssistantData struct {
	Content []AssistantContent
}

func (AssistantData) isMessageData() {}

// ToolResultValue is the closed set of successful tool-result payloads.
type ToolResultValue interface{ isToolResultValue() }

type FileContentResult struct {
	Path    string
	Content string
}

func (FileContentResult) isToolResultValue() {}

type EditResult struct {
	Path   string
	Before string
	After  string
	Diff   string
}

func (EditResult) isToolResultValue() {}

type BlobResult struct {
	MediaType string
	Data      []byte
}

func (BlobResult) isToolResultValue() {}

// PlainTextResult is a catch-all successful result for tools that don't
// produce a more specific value (grep, glob, bash, webfetch, ...).
type PlainTextResult struct{ Text string }

func (PlainTextResult) isToolResultValue() {}

// ToolOutcome is either a successful ToolResultValue or an error message;
// exactly one of Value/Error is set.
type ToolOutcome struct {
	Value ToolResultValue
	Error *string
}

// IsError reports whether this outcome represents a tool failure.
func (o ToolOutcome) IsError() bool { return o.Error != nil }

// ToolData is the payload of a tool-result message, keyed by the
// originating tool-call id.
type ToolData struct {
	ToolUseID domain.ToolCallID
	ToolName  string
	Result    ToolOutcome
}

func (ToolData) isMessageData() {}

// ToolCallsIn returns every ToolCallContent block in an assistant message,
// or nil if msg is not an assistant message.
func ToolCallsIn(msg Message) []ToolCallContent {
	ad, ok := msg.Data.(AssistantData)
	if !ok {
		return nil
	}
	var calls []ToolCallContent
	for _, c := range ad.Content {
		if tc, ok := c.(ToolCallContent); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}
