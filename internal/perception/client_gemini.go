package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"automa/internal/config"
	"automa/internal/logging"
)

// GeminiClient implements Client on the Google GenAI SDK.
type GeminiClient struct {
	modelSelector
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, cfg config.InferenceConfig, timeout time.Duration) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		modelSelector: modelSelector{model: cfg.Model, lowModel: cfg.LowComputeModel},
		client:        client,
		timeout:       timeout,
	}, nil
}

// Provider names the backing provider.
func (c *GeminiClient) Provider() string { return "gemini" }

// Complete runs one tool-capable completion.
func (c *GeminiClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.ActiveModel()
	start := time.Now()

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("(no prior turns)", genai.RoleUser))
	}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.maxTokens()),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(req.Tools)}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		logging.ModelError("[gemini] completion failed: %v", err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	out := &Response{Model: model}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				out.Thinking += part.Text
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", len(out.ToolCalls)+1)
				}
				out.ToolCalls = append(out.ToolCalls, ToolCallRequest{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
	}
	switch {
	case len(out.ToolCalls) > 0:
		out.FinishReason = FinishToolUse
	case cand.FinishReason == genai.FinishReasonMaxTokens:
		out.FinishReason = FinishLength
	default:
		out.FinishReason = FinishStop
	}

	logging.ModelDebug("[gemini] %s finished %s in %v (%d prompt / %d completion tokens)",
		model, out.FinishReason, time.Since(start), out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

func toGeminiDeclarations(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: toGeminiProperties(t.Properties),
				Required:   t.Required,
			},
		})
	}
	return decls
}

func toGeminiProperties(props map[string]any) map[string]*genai.Schema {
	out := make(map[string]*genai.Schema, len(props))
	for name, raw := range props {
		frag, _ := raw.(map[string]any)
		out[name] = toGeminiSchema(frag)
	}
	return out
}

// toGeminiSchema converts one JSON-schema fragment. Unknown or missing
// types degrade to string rather than failing the whole declaration.
func toGeminiSchema(frag map[string]any) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeString}
	if frag == nil {
		return s
	}
	if t, ok := frag["type"].(string); ok {
		switch t {
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		case "array":
			s.Type = genai.TypeArray
		case "object":
			s.Type = genai.TypeObject
		}
	}
	if d, ok := frag["description"].(string); ok {
		s.Description = d
	}
	switch e := frag["enum"].(type) {
	case []string:
		s.Enum = e
	case []any:
		for _, v := range e {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if items, ok := frag["items"].(map[string]any); ok {
		s.Items = toGeminiSchema(items)
	}
	if nested, ok := frag["properties"].(map[string]any); ok {
		s.Properties = toGeminiProperties(nested)
		switch r := frag["required"].(type) {
		case []string:
			s.Required = r
		case []any:
			for _, v := range r {
				if str, ok := v.(string); ok {
					s.Required = append(s.Required, str)
				}
			}
		}
	}
	return s
}
