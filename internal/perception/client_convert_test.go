package perception

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

func TestToAnthropicMessagesRoles(t *testing.T) {
	msgs := toAnthropicMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "narrator", Content: "unknown roles become user"},
	})
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != anthropic.MessageParamRole("user") {
		t.Errorf("expected user role, got %v", msgs[0].Role)
	}
	if msgs[1].Role != anthropic.MessageParamRole("assistant") {
		t.Errorf("expected assistant role, got %v", msgs[1].Role)
	}
	if msgs[2].Role != anthropic.MessageParamRole("user") {
		t.Errorf("unknown role should map to user, got %v", msgs[2].Role)
	}
}

func TestToAnthropicTools(t *testing.T) {
	unions := toAnthropicTools([]ToolSpec{{
		Name:        "write_file",
		Description: "Write a file in the sandbox",
		Properties: map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		Required: []string{"path", "content"},
	}})
	if len(unions) != 1 {
		t.Fatalf("expected 1 union, got %d", len(unions))
	}
	tool := unions[0].OfTool
	if tool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if tool.Name != "write_file" {
		t.Errorf("unexpected name %q", tool.Name)
	}
	if len(tool.InputSchema.Required) != 2 {
		t.Errorf("expected 2 required fields, got %v", tool.InputSchema.Required)
	}
}

func TestNormalizeAnthropicStop(t *testing.T) {
	cases := []struct {
		reason    anthropic.StopReason
		toolCalls int
		want      string
	}{
		{anthropic.StopReasonEndTurn, 0, FinishStop},
		{anthropic.StopReasonToolUse, 1, FinishToolUse},
		{anthropic.StopReasonMaxTokens, 0, FinishLength},
		{anthropic.StopReasonStopSequence, 0, FinishStop},
		{anthropic.StopReason(""), 1, FinishToolUse},
		{anthropic.StopReason(""), 0, FinishStop},
	}
	for _, tc := range cases {
		if got := normalizeAnthropicStop(tc.reason, tc.toolCalls); got != tc.want {
			t.Errorf("normalizeAnthropicStop(%q, %d) = %q, want %q", tc.reason, tc.toolCalls, got, tc.want)
		}
	}
}

func TestToGeminiSchemaTypes(t *testing.T) {
	s := toGeminiSchema(map[string]any{
		"type":        "object",
		"description": "outer",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string", "description": "who"},
			"count": map[string]any{"type": "integer"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"fast", "slow"},
			},
		},
		"required": []any{"name"},
	})

	if s.Type != genai.TypeObject {
		t.Fatalf("expected object type, got %v", s.Type)
	}
	if s.Description != "outer" {
		t.Errorf("expected description, got %q", s.Description)
	}
	if len(s.Required) != 1 || s.Required[0] != "name" {
		t.Errorf("unexpected required: %v", s.Required)
	}
	if s.Properties["name"].Type != genai.TypeString {
		t.Errorf("expected string property")
	}
	if s.Properties["count"].Type != genai.TypeInteger {
		t.Errorf("expected integer property")
	}
	if s.Properties["tags"].Type != genai.TypeArray || s.Properties["tags"].Items.Type != genai.TypeString {
		t.Errorf("expected array of strings")
	}
	if got := s.Properties["mode"].Enum; len(got) != 2 || got[0] != "fast" {
		t.Errorf("unexpected enum: %v", got)
	}
}

func TestToGeminiSchemaDegradesGracefully(t *testing.T) {
	if s := toGeminiSchema(nil); s.Type != genai.TypeString {
		t.Errorf("nil fragment should degrade to string, got %v", s.Type)
	}
	if s := toGeminiSchema(map[string]any{"type": "quantum"}); s.Type != genai.TypeString {
		t.Errorf("unknown type should degrade to string, got %v", s.Type)
	}
}

func TestToGeminiDeclarations(t *testing.T) {
	decls := toGeminiDeclarations([]ToolSpec{{
		Name:        "sleep",
		Description: "Sleep for a duration",
		Properties:  map[string]any{"seconds": map[string]any{"type": "integer"}},
		Required:    []string{"seconds"},
	}})
	if len(decls) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(decls))
	}
	d := decls[0]
	if d.Name != "sleep" || d.Parameters.Type != genai.TypeObject {
		t.Errorf("unexpected declaration: %+v", d)
	}
	if d.Parameters.Properties["seconds"].Type != genai.TypeInteger {
		t.Errorf("expected integer seconds")
	}
}
