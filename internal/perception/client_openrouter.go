package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"automa/internal/config"
	"automa/internal/logging"
)

// OpenRouterClient implements Client against the OpenRouter API, which
// fronts many providers behind one OpenAI-compatible endpoint.
type OpenRouterClient struct {
	modelSelector
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	reqMu       sync.Mutex
	lastRequest time.Time
}

// NewOpenRouterClient creates an OpenRouter-backed client.
func NewOpenRouterClient(cfg config.InferenceConfig, timeout time.Duration) *OpenRouterClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterClient{
		modelSelector: modelSelector{model: cfg.Model, lowModel: cfg.LowComputeModel},
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Provider names the backing provider.
func (c *OpenRouterClient) Provider() string { return "openrouter" }

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openRouterTool struct {
	Type     string             `json:"type"`
	Function openRouterFunction `json:"function"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	MaxTokens   int64               `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	Tools       []openRouterTool    `json:"tools,omitempty"`
}

type openRouterResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Complete runs one tool-capable completion.
func (c *OpenRouterClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	// Rate limiting
	c.reqMu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.reqMu.Unlock()

	model := c.ActiveModel()
	start := time.Now()

	messages := make([]openRouterMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openRouterMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openRouterMessage{Role: m.Role, Content: m.Content})
	}

	reqBody := openRouterRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.maxTokens(),
		Temperature: 0.2,
	}
	for _, t := range req.Tools {
		reqBody.Tools = append(reqBody.Tools, openRouterTool{
			Type: "function",
			Function: openRouterFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": t.Properties,
					"required":   t.Required,
				},
			},
		})
	}

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("X-Title", "automa")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var orResp openRouterResponse
		if err := json.Unmarshal(body, &orResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if orResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", orResp.Error.Message)
		}
		if len(orResp.Choices) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		choice := orResp.Choices[0]
		out := &Response{
			Model:    model,
			Thinking: choice.Message.Content,
			Usage: Usage{
				PromptTokens:     orResp.Usage.PromptTokens,
				CompletionTokens: orResp.Usage.CompletionTokens,
				TotalTokens:      orResp.Usage.TotalTokens,
			},
		}
		for _, tc := range choice.Message.ToolCalls {
			args := json.RawMessage(tc.Function.Arguments)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCallRequest{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: args,
			})
		}
		out.FinishReason = normalizeOpenRouterFinish(choice.FinishReason, len(out.ToolCalls))

		logging.ModelDebug("[openrouter] %s finished %s in %v (%d prompt / %d completion tokens)",
			model, out.FinishReason, time.Since(start), out.Usage.PromptTokens, out.Usage.CompletionTokens)
		return out, nil
	}

	logging.ModelError("[openrouter] max retries exceeded after %v: %v", time.Since(start), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func normalizeOpenRouterFinish(reason string, toolCalls int) string {
	switch reason {
	case "tool_calls", "function_call":
		return FinishToolUse
	case "length":
		return FinishLength
	case "stop", "end_turn":
		return FinishStop
	}
	if toolCalls > 0 {
		return FinishToolUse
	}
	return FinishStop
}
