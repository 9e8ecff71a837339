package perception

import (
	"context"
	"errors"
	"testing"
	"time"

	"automa/internal/config"
	"automa/internal/survival"
)

// The loop hands the inference client to the tier monitor as its compute
// governor, so every client must satisfy that interface.
var (
	_ survival.ComputeGovernor = (*AnthropicClient)(nil)
	_ survival.ComputeGovernor = (*GeminiClient)(nil)
	_ survival.ComputeGovernor = (*OpenRouterClient)(nil)
	_ survival.ComputeGovernor = (*MockClient)(nil)
)

func TestNewClientProviderSwitch(t *testing.T) {
	ctx := context.Background()
	timeout := time.Second

	cases := []struct {
		provider string
		apiKey   string
		wantErr  bool
	}{
		{"anthropic", "sk-test", false},
		{"anthropic", "", true},
		{"openrouter", "or-test", false},
		{"openrouter", "", true},
		{"mock", "", false},
		{"carrier-pigeon", "", true},
	}
	for _, tc := range cases {
		cfg := config.InferenceConfig{
			Provider: tc.provider,
			APIKey:   tc.apiKey,
			Model:    "test-model",
		}
		client, err := NewClient(ctx, cfg, timeout)
		if tc.wantErr {
			if err == nil {
				t.Errorf("provider %q with key %q: expected error", tc.provider, tc.apiKey)
			}
			continue
		}
		if err != nil {
			t.Errorf("provider %q: unexpected error %v", tc.provider, err)
			continue
		}
		if client.Provider() != tc.provider {
			t.Errorf("expected provider %q, got %q", tc.provider, client.Provider())
		}
	}
}

func TestModelSelectorLowCompute(t *testing.T) {
	s := &modelSelector{model: "big", lowModel: "small"}

	if got := s.ActiveModel(); got != "big" {
		t.Errorf("expected big, got %q", got)
	}
	s.SetLowCompute(true)
	if got := s.ActiveModel(); got != "small" {
		t.Errorf("expected small, got %q", got)
	}
	s.SetLowCompute(false)
	if got := s.ActiveModel(); got != "big" {
		t.Errorf("expected big again, got %q", got)
	}

	// No low-compute model configured: flag has no effect on the model.
	s = &modelSelector{model: "only"}
	s.SetLowCompute(true)
	if got := s.ActiveModel(); got != "only" {
		t.Errorf("expected only, got %q", got)
	}
	if !s.LowCompute() {
		t.Error("flag itself must still be reported")
	}
}

func TestMockClientScriptPlayback(t *testing.T) {
	m := NewMockClient("mock-model")
	m.Script(&Response{
		Thinking:  "Let me check something.",
		ToolCalls: []ToolCallRequest{{ID: "c1", Name: "check_credits", Arguments: []byte("{}")}},
	})
	m.Script(&Response{Thinking: "All good."})

	ctx := context.Background()
	req := &Request{Messages: []Message{{Role: "user", Content: "go"}}}

	first, err := m.Complete(ctx, req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if first.FinishReason != FinishToolUse || len(first.ToolCalls) != 1 {
		t.Errorf("expected scripted tool call, got %+v", first)
	}

	second, err := m.Complete(ctx, req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if second.FinishReason != FinishStop || second.Thinking != "All good." {
		t.Errorf("unexpected second response: %+v", second)
	}

	// Script exhausted: quiet stop, never an error.
	third, err := m.Complete(ctx, req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if third.FinishReason != FinishStop || len(third.ToolCalls) != 0 {
		t.Errorf("expected quiet stop, got %+v", third)
	}

	if len(m.Requests()) != 3 {
		t.Errorf("expected 3 recorded requests, got %d", len(m.Requests()))
	}
}

func TestMockClientFailNext(t *testing.T) {
	m := NewMockClient("")
	m.FailNext(errors.New("provider on fire"))

	if _, err := m.Complete(context.Background(), &Request{}); err == nil {
		t.Fatal("expected injected failure")
	}
	if _, err := m.Complete(context.Background(), &Request{}); err != nil {
		t.Fatalf("expected recovery after injected failure: %v", err)
	}
}
