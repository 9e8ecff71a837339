package perception

import (
	"context"
	"sync"
)

// MockClient is the scripted provider behind `"provider": "mock"`. It lets
// the runtime boot and step with no API key: responses are played back in
// the order they were scripted, and an exhausted script yields quiet stops
// so the loop drifts into auto-sleep instead of erroring.
type MockClient struct {
	modelSelector

	mu        sync.Mutex
	script    []*Response
	played    int
	requests  []*Request
	failures  []error
	nextError int
}

// NewMockClient creates a mock provider for the given model name.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock-model"
	}
	return &MockClient{
		modelSelector: modelSelector{model: model, lowModel: model + "-low"},
	}
}

// Provider names the backing provider.
func (m *MockClient) Provider() string { return "mock" }

// Script appends a canned response to the playback queue.
func (m *MockClient) Script(resp *Response) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resp)
	return m
}

// FailNext makes the next Complete call return err.
func (m *MockClient) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}

// Requests returns every request seen so far.
func (m *MockClient) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.requests...)
}

// Complete plays back the next scripted response.
func (m *MockClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.nextError < len(m.failures) {
		err := m.failures[m.nextError]
		m.nextError++
		return nil, err
	}

	model := m.ActiveModel()
	if m.played < len(m.script) {
		resp := m.script[m.played]
		m.played++
		out := *resp
		if out.Model == "" {
			out.Model = model
		}
		if out.FinishReason == "" {
			if len(out.ToolCalls) > 0 {
				out.FinishReason = FinishToolUse
			} else {
				out.FinishReason = FinishStop
			}
		}
		return &out, nil
	}

	return &Response{
		Thinking:     "Nothing to do.",
		FinishReason: FinishStop,
		Model:        model,
		Usage:        Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}, nil
}
