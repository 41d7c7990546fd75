// Package compact implements the compaction prompt and the
// context-overflow retry loop: when a provider rejects a compaction
// request because the thread is too large for its own context window, the
// interpreter calls DropEarlierToolResults and retries before giving up.
//
// Grounded on
// original_source/crates/steer-core/src/app/domain/runtime/session_actor.rs
// (is_context_window_exceeded_error, drop_earlier_tool_results,
// drop_stale_read_file_results, drop_oldest_tool_results,
// build_compaction_message).
package compact

import (
	"strings"

	"github.com/opencode-ai/opencode/pkg/domain"
	"github.com/opencode-ai/opencode/pkg/domain/conversation"
)

// Prompt is appended as a final user turn when requesting a compaction
// summary from the model.
const Prompt = `You are performing a CONTEXT CHECKPOINT COMPACTION. Create a handoff summary for another LLM that will resume the task.

Include:
    - Current progress and key decisions made
    - Important context, constraints, or user preferences discovered during this session
    - What remains to be done (clear next steps)
    - Any critical data, examples, or references needed to continue

DO NOT include:
    - System context information (repo structure, VCS state, environment details) - the next LLM will have its own system context
    - Tool schemas or capabilities - these are provided separately
    - General project information already in the system prompt

Be concise, structured, and focused on session-specific progress and learnings.`

// BuildPromptMessage returns the synthetic user turn appended to a
// compaction request.
func BuildPromptMessage(timestamp int64) conversation.Message {
	return conversation.Message{
		ID:        domain.NewMessageID(),
		Timestamp: timestamp,
		Data:      conversation.UserData{Content: []conversation.UserContent{conversation.TextContent{Text: Prompt}}},
	}
}

var contextOverflowPhrases = []string{
	"context length",
	"context window",
	"maximum context",
	"max context",
	"context_length_exceeded",
	"too many tokens",
	"token limit",
	"prompt is too long",
	"input is too long",
}

// IsContextWindowExceededError reports whether a provider error string
// describes a context-overflow rejection. Matching is deliberately loose:
// providers word this differently, so an explicit phrase list is combined
// with a pair of co-occurring-keyword fallbacks.
func IsContextWindowExceededError(errMsg string) bool {
	normalized := strings.ToLower(errMsg)

	for _, phrase := range contextOverflowPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}

	if strings.Contains(normalized, "context") && strings.Contains(normalized, "exceed") {
		return true
	}

	if strings.Contains(normalized, "token") &&
		(strings.Contains(normalized, "exceed") || strings.Contains(normalized, "too many") || strings.Contains(normalized, "limit")) {
		return true
	}

	return false
}

// toolCallMeta records enough about an assistant tool-call block to decide
// whether a later Tool message holding its result is now stale.
type toolCallMeta struct {
	name     string
	filePath string
}

const (
	readToolName  = "read"
	editToolName  = "edit"
	writeToolName = "write"
)

func collectToolCallMetadata(messages []conversation.Message) map[domain.ToolCallID]toolCallMeta {
	meta := make(map[domain.ToolCallID]toolCallMeta)
	for _, msg := range messages {
		assistant, ok := msg.Data.(conversation.AssistantData)
		if !ok {
			continue
		}
		for _, block := range assistant.Content {
			call, ok := block.(conversation.ToolCallContent)
			if !ok {
				continue
			}
			var filePath string
			switch call.Name {
			case readToolName, editToolName, writeToolName:
				if p, ok := call.Input["file_path"].(string); ok {
					filePath = p
				} else if p, ok := call.Input["path"].(string); ok {
					filePath = p
				}
			}
			meta[call.ID] = toolCallMeta{name: call.Name, filePath: filePath}
		}
	}
	return meta
}

// DropStaleReadFileResults drops Tool messages holding a read-file result
// that has either been superseded by a later read of the same path, or
// precedes a later edit/write of that path. Returns the number of tool
// results removed.
func DropStaleReadFileResults(messages []conversation.Message) ([]conversation.Message, int) {
	meta := collectToolCallMetadata(messages)

	type readEntry struct {
		index int
		id    domain.ToolCallID
	}
	readsByPath := make(map[string][]readEntry)
	latestEditIndexByPath := make(map[string]int)

	for index, msg := range messages {
		tool, ok := msg.Data.(conversation.ToolData)
		if !ok {
			continue
		}
		info, ok := meta[tool.ToolUseID]
		if !ok || info.filePath == "" {
			continue
		}

		switch info.name {
		case readToolName:
			if _, ok := tool.Result.Value.(conversation.FileContentResult); ok {
				readsByPath[info.filePath] = append(readsByPath[info.filePath], readEntry{index, tool.ToolUseID})
			}
		case editToolName, writeToolName:
			if _, ok := tool.Result.Value.(conversation.EditResult); ok {
				latestEditIndexByPath[info.filePath] = index
			}
		}
	}

	toDrop := make(map[domain.ToolCallID]bool)
	for path, reads := range readsByPath {
		newestIndex, newestID := -1, domain.ToolCallID("")
		for _, r := range reads {
			if r.index > newestIndex {
				newestIndex, newestID = r.index, r.id
			}
		}
		for _, r := range reads {
			if r.id != newestID {
				toDrop[r.id] = true
			}
		}
		if editIndex, ok := latestEditIndexByPath[path]; ok {
			for _, r := range reads {
				if r.index < editIndex {
					toDrop[r.id] = true
				}
			}
		}
	}

	if len(toDrop) == 0 {
		return messages, 0
	}
	return dropToolResultsMatching(messages, toDrop)
}

// DropOldestToolResults drops the oldest half (rounded down, at least one)
// of the thread's tool results. This is the fallback used once stale-read
// pruning has nothing left to offer.
func DropOldestToolResults(messages []conversation.Message) ([]conversation.Message, int) {
	var ids []domain.ToolCallID
	for _, msg := range messages {
		if tool, ok := msg.Data.(conversation.ToolData); ok {
			ids = append(ids, tool.ToolUseID)
		}
	}
	if len(ids) == 0 {
		return messages, 0
	}

	targetDropCount := len(ids) / 2
	if targetDropCount < 1 {
		targetDropCount = 1
	}

	toDrop := make(map[domain.ToolCallID]bool, targetDropCount)
	for i := 0; i < targetDropCount && i < len(ids); i++ {
		toDrop[ids[i]] = true
	}

	return dropToolResultsMatching(messages, toDrop)
}

// DropEarlierToolResults is the combined strategy the retry loop uses on
// each context-overflow iteration: prefer dropping provably-stale reads,
// and only fall back to dropping the oldest half once there are none.
func DropEarlierToolResults(messages []conversation.Message) ([]conversation.Message, int) {
	if pruned, dropped := DropStaleReadFileResults(messages); dropped > 0 {
		return pruned, dropped
	}
	return DropOldestToolResults(messages)
}

func dropToolResultsMatching(messages []conversation.Message, toDrop map[domain.ToolCallID]bool) ([]conversation.Message, int) {
	if len(toDrop) == 0 {
		return messages, 0
	}

	dropped := 0
	pruned := make([]conversation.Message, 0, len(messages))

	for _, msg := range messages {
		switch data := msg.Data.(type) {
		case conversation.ToolData:
			if toDrop[data.ToolUseID] {
				dropped++
				continue
			}
			pruned = append(pruned, msg)

		case conversation.AssistantData:
			originalLen := len(data.Content)
			filtered := make([]conversation.AssistantContent, 0, originalLen)
			for _, block := range data.Content {
				if call, ok := block.(conversation.ToolCallContent); ok && toDrop[call.ID] {
					continue
				}
				filtered = append(filtered, block)
			}

			removedToolCall := len(filtered) != originalLen
			if removedToolCall && !hasRequestRelevantContent(filtered) {
				continue
			}

			msg.Data = conversation.AssistantData{Content: filtered}
			pruned = append(pruned, msg)

		default:
			pruned = append(pruned, msg)
		}
	}

	return pruned, dropped
}

// hasRequestRelevantContent reports whether an assistant message still has
// something worth sending once its dropped tool calls are stripped — a
// message left with only thoughts has nothing left to ask about.
func hasRequestRelevantContent(content []conversation.AssistantContent) bool {
	for _, block := range content {
		if _, isThought := block.(conversation.ThoughtContent); !isThought {
			return true
		}
	}
	return false
}
