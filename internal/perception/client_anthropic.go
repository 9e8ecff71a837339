package perception

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"automa/internal/config"
	"automa/internal/logging"
)

// AnthropicClient implements Client on the official Anthropic SDK.
type AnthropicClient struct {
	modelSelector
	client  anthropic.Client
	timeout time.Duration
}

// NewAnthropicClient creates an Anthropic-backed client.
func NewAnthropicClient(cfg config.InferenceConfig, timeout time.Duration) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		modelSelector: modelSelector{model: cfg.Model, lowModel: cfg.LowComputeModel},
		client:        anthropic.NewClient(opts...),
		timeout:       timeout,
	}
}

// Provider names the backing provider.
func (c *AnthropicClient) Provider() string { return "anthropic" }

// Complete runs one tool-capable completion.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.ActiveModel()
	start := time.Now()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: req.maxTokens(),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		logging.ModelError("[anthropic] completion failed: %v", err)
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	out := &Response{
		Model: model,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Thinking += b.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCallRequest{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: []byte(b.Input),
			})
		}
	}
	out.FinishReason = normalizeAnthropicStop(resp.StopReason, len(out.ToolCalls))

	logging.ModelDebug("[anthropic] %s finished %s in %v (%d prompt / %d completion tokens)",
		model, out.FinishReason, time.Since(start), out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		role := anthropic.MessageParamRole("user")
		if m.Role == "assistant" {
			role = anthropic.MessageParamRole("assistant")
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}
	return out
}

func toAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	unions := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: t.Properties,
		}
		if len(t.Required) > 0 {
			schema.Required = t.Required
		}
		param := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}
		unions = append(unions, anthropic.ToolUnionParam{OfTool: &param})
	}
	return unions
}

func normalizeAnthropicStop(reason anthropic.StopReason, toolCalls int) string {
	switch reason {
	case anthropic.StopReasonToolUse:
		return FinishToolUse
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishStop
	}
	if toolCalls > 0 {
		return FinishToolUse
	}
	return FinishStop
}
