package perception

import (
	"context"
	"fmt"
	"time"

	"automa/internal/config"
	"automa/internal/logging"
)

// NewClient creates the inference client named by the configuration.
func NewClient(ctx context.Context, cfg config.InferenceConfig, timeout time.Duration) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		logging.Model("Using Anthropic provider (model %s, low-compute %s)", cfg.Model, cfg.LowComputeModel)
		return NewAnthropicClient(cfg, timeout), nil
	case "gemini":
		logging.Model("Using Gemini provider (model %s, low-compute %s)", cfg.Model, cfg.LowComputeModel)
		return NewGeminiClient(ctx, cfg, timeout)
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter API key is required")
		}
		logging.Model("Using OpenRouter provider (model %s, low-compute %s)", cfg.Model, cfg.LowComputeModel)
		return NewOpenRouterClient(cfg, timeout), nil
	case "mock":
		logging.Model("Using mock provider (model %s)", cfg.Model)
		return NewMockClient(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown inference provider: %s", cfg.Provider)
	}
}
