package types

import (
	"encoding/json"
	"testing"
)

func TestMessage_JSON(t *testing.T) {
	msg := Message{
		ID:         "msg-123",
		SessionID:  "session-456",
		Role:       "assistant",
		ModelID:    "claude-3-opus",
		ProviderID: "anthropic",
		Cost:       0.05,
		Tokens: &TokenUsage{
			Input:  1000,
			Output: 500,
			Cache: CacheUsage{
				Read:  100,
				Write: 50,
			},
		},
		Time: MessageTime{
			Created: 1700000000000,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Role != "assistant" {
		t.Errorf("Role mismatch: got %s, want assistant", decoded.Role)
	}
	if decoded.Tokens.Input != 1000 {
		t.Errorf("Tokens.Input mismatch: got %d, want 1000", decoded.Tokens.Input)
	}
}

func TestMessage_UserFields(t *testing.T) {
	system := "You are a helpful assistant"
	msg := Message{
		ID:        "msg-user-1",
		SessionID: "session-1",
		Role:      "user",
		Agent:     "main",
		Model: &ModelRef{
			ProviderID: "anthropic",
			ModelID:    "claude-3-opus",
		},
		System: &system,
		Tools: map[string]bool{
			"Read":  true,
			"Write": true,
			"Bash":  false,
		},
		Time: MessageTime{Created: 1700000000000},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Agent != "main" {
		t.Errorf("Agent mismatch: got %s, want main", decoded.Agent)
	}
	if decoded.Model.ProviderID != "anthropic" {
		t.Errorf("Model.ProviderID mismatch")
	}
	if !decoded.Tools["Read"] {
		t.Error("Tools[Read] should be true")
	}
	if decoded.Tools["Bash"] {
		t.Error("Tools[Bash] should be false")
	}
}

func TestMessageError_JSON(t *testing.T) {
	msgErr := MessageError{
		Type:    "api",
		Message: "Rate limit exceeded",
	}

	data, err := json.Marshal(msgErr)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded MessageError
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Type != "api" {
		t.Errorf("Type mismatch: got %s, want api", decoded.Type)
	}
}

func TestUnmarshalPart_Text(t *testing.T) {
	raw := []byte(`{"id":"part-1","sessionID":"s1","messageID":"m1","type":"text","text":"hello"}`)

	part, err := UnmarshalPart(raw)
	if err != nil {
		t.Fatalf("UnmarshalPart failed: %v", err)
	}

	text, ok := part.(*TextPart)
	if !ok {
		t.Fatalf("expected *TextPart, got %T", part)
	}
	if text.Text != "hello" {
		t.Errorf("Text mismatch: got %s, want hello", text.Text)
	}
	if part.PartType() != "text" {
		t.Errorf("PartType mismatch: got %s, want text", part.PartType())
	}
}

func TestUnmarshalPart_Tool(t *testing.T) {
	raw := []byte(`{"id":"part-2","sessionID":"s1","messageID":"m1","type":"tool","toolCallID":"c1","toolName":"bash","state":"completed"}`)

	part, err := UnmarshalPart(raw)
	if err != nil {
		t.Fatalf("UnmarshalPart failed: %v", err)
	}

	tool, ok := part.(*ToolPart)
	if !ok {
		t.Fatalf("expected *ToolPart, got %T", part)
	}
	if tool.ToolName != "bash" {
		t.Errorf("ToolName mismatch: got %s, want bash", tool.ToolName)
	}
}

func TestConfig_ProviderRoundTrip(t *testing.T) {
	cfg := Config{
		Model: "anthropic/claude-sonnet-4",
		Provider: map[string]ProviderConfig{
			"anthropic": {},
		},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Model != cfg.Model {
		t.Errorf("Model mismatch: got %s, want %s", decoded.Model, cfg.Model)
	}
	if _, ok := decoded.Provider["anthropic"]; !ok {
		t.Error("expected anthropic provider config to round-trip")
	}
}
