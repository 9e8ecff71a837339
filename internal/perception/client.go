// Package perception is the automaton's connection to inference providers.
// Every provider is wrapped behind the same Client interface: one
// tool-capable completion call plus a low-compute switch that swaps the
// active model for the cheaper one when credits run short.
package perception

import (
	"context"
	"encoding/json"
	"sync"
)

// Normalized finish reasons. Providers report these differently; the loop
// only ever sees the three values below.
const (
	FinishStop    = "stop"
	FinishToolUse = "tool_use"
	FinishLength  = "length"
)

const defaultMaxTokens = 4096

// Message is one prior conversation entry in provider-neutral form. Role
// is "user" or "assistant"; history is always flattened to plain text by
// the context assembler before it reaches a client.
type Message struct {
	Role    string
	Content string
}

// ToolSpec describes one callable tool as a JSON-schema object.
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// ToolCallRequest is one tool invocation the model asked for. Arguments is
// the raw JSON the provider produced; callers parse it defensively.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Request is one completion request.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int64
}

// Response is one normalized completion.
type Response struct {
	Thinking     string
	ToolCalls    []ToolCallRequest
	Usage        Usage
	FinishReason string
	Model        string
}

// Client is one inference provider connection.
type Client interface {
	// Complete runs one tool-capable completion.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// SetLowCompute switches between the configured model and the cheaper
	// low-compute model.
	SetLowCompute(enabled bool)

	// LowCompute reports whether the low-compute model is active.
	LowCompute() bool

	// ActiveModel returns the model the next call will use.
	ActiveModel() string

	// Provider names the backing provider.
	Provider() string
}

// modelSelector holds the model pair and the low-compute flag shared by
// every client implementation.
type modelSelector struct {
	mu         sync.RWMutex
	model      string
	lowModel   string
	lowCompute bool
}

func (s *modelSelector) SetLowCompute(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lowCompute = enabled
}

func (s *modelSelector) LowCompute() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lowCompute
}

// ActiveModel returns the low-compute model when the flag is set and one
// is configured, otherwise the primary model.
func (s *modelSelector) ActiveModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lowCompute && s.lowModel != "" {
		return s.lowModel
	}
	return s.model
}

func (r *Request) maxTokens() int64 {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}
