// Package config loads and persists the automaton's configuration.
// Everything the runtime needs lives in <home>/config.json (0600); no
// environment variables are required, though a few overrides are honored.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultPort is the loopback port for the observability API.
const DefaultPort = 3747

// Config holds all automaton configuration.
type Config struct {
	// Identity
	Name           string `json:"name"`
	Address        string `json:"address"`
	CreatorAddress string `json:"creator_address"`
	Role           string `json:"role,omitempty"`

	// Subsystems
	Inference InferenceConfig `json:"inference"`
	Chain     ChainConfig     `json:"chain"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Social    SocialConfig    `json:"social"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Pricing   []ModelPrice    `json:"pricing,omitempty"`
}

// InferenceConfig configures the inference provider.
type InferenceConfig struct {
	Provider        string `json:"provider"` // anthropic, gemini, openrouter
	APIKey          string `json:"api_key"`
	Model           string `json:"model"`
	LowComputeModel string `json:"low_compute_model"`
	BaseURL         string `json:"base_url,omitempty"`
	Timeout         string `json:"timeout"`
}

// ChainConfig configures the credit/payment facilitator.
type ChainConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Timeout string `json:"timeout"`
}

// SandboxConfig configures the remote execution sandbox.
type SandboxConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Timeout string `json:"timeout"`
}

// SocialConfig configures the agent-to-agent message relay.
type SocialConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout"`
}

// RuntimeConfig configures the local runtime.
type RuntimeConfig struct {
	Port              int    `json:"port"`
	Debug             bool   `json:"debug"`
	CreditCheckEvery  string `json:"credit_check_every"`
	HeartbeatEvery    string `json:"heartbeat_every"`
	InboxPollEvery    string `json:"inbox_poll_every"`
	WakeupEvery       string `json:"wakeup_every"`
	ResurrectionEvery string `json:"resurrection_every"`
	JournalEvery      string `json:"journal_every"`
}

// ModelPrice is the per-million-token price for one model, in cents.
type ModelPrice struct {
	Model           string  `json:"model"`
	PromptCents     float64 `json:"prompt_cents"`
	CompletionCents float64 `json:"completion_cents"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "automa",

		Inference: InferenceConfig{
			Provider:        "anthropic",
			Model:           "claude-sonnet-4-5",
			LowComputeModel: "claude-haiku-4-5",
			Timeout:         "60s",
		},

		Chain: ChainConfig{
			BaseURL: "http://localhost:8700",
			Timeout: "15s",
		},

		Sandbox: SandboxConfig{
			BaseURL: "http://localhost:8701",
			Timeout: "30s",
		},

		Social: SocialConfig{
			BaseURL: "http://localhost:8702",
			Timeout: "15s",
		},

		Runtime: RuntimeConfig{
			Port:              DefaultPort,
			CreditCheckEvery:  "5m",
			HeartbeatEvery:    "10m",
			InboxPollEvery:    "2m",
			WakeupEvery:       "30s",
			ResurrectionEvery: "10m",
			JournalEvery:      "24h",
		},

		Pricing: []ModelPrice{
			{Model: "claude-sonnet-4-5", PromptCents: 300, CompletionCents: 1500},
			{Model: "claude-haiku-4-5", PromptCents: 100, CompletionCents: 500},
			{Model: "gemini-2.5-flash", PromptCents: 30, CompletionCents: 250},
		},
	}
}

// Load reads configuration from a JSON file. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as indented JSON, owner-readable only.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies optional environment variable overrides.
// Nothing here is required; the config file is the source of truth.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.Inference.APIKey == "" {
		c.Inference.APIKey = key
		c.Inference.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Inference.APIKey == "" {
		c.Inference.APIKey = key
		c.Inference.Provider = "gemini"
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && c.Inference.APIKey == "" {
		c.Inference.APIKey = key
		c.Inference.Provider = "openrouter"
	}
	if port := os.Getenv("AUTOMA_PORT"); port != "" {
		var n int
		if _, err := fmt.Sscanf(port, "%d", &n); err == nil && n > 0 {
			c.Runtime.Port = n
		}
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Runtime.Port <= 0 || c.Runtime.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Runtime.Port)
	}
	switch c.Inference.Provider {
	case "anthropic", "gemini", "openrouter", "mock":
	default:
		return fmt.Errorf("unknown inference provider: %s", c.Inference.Provider)
	}
	if c.Inference.Model == "" {
		return fmt.Errorf("inference model is required")
	}
	return nil
}

// GetInferenceTimeout returns the inference timeout as a duration.
func (c *Config) GetInferenceTimeout() time.Duration {
	return parseDuration(c.Inference.Timeout, 60*time.Second)
}

// GetChainTimeout returns the chain client timeout as a duration.
func (c *Config) GetChainTimeout() time.Duration {
	return parseDuration(c.Chain.Timeout, 15*time.Second)
}

// GetSandboxTimeout returns the sandbox exec timeout as a duration.
func (c *Config) GetSandboxTimeout() time.Duration {
	return parseDuration(c.Sandbox.Timeout, 30*time.Second)
}

// GetSocialTimeout returns the social relay timeout as a duration.
func (c *Config) GetSocialTimeout() time.Duration {
	return parseDuration(c.Social.Timeout, 15*time.Second)
}

// GetCreditCheckEvery returns the credit check cadence.
func (c *Config) GetCreditCheckEvery() time.Duration {
	return parseDuration(c.Runtime.CreditCheckEvery, 5*time.Minute)
}

// GetHeartbeatEvery returns the telemetry ping cadence.
func (c *Config) GetHeartbeatEvery() time.Duration {
	return parseDuration(c.Runtime.HeartbeatEvery, 10*time.Minute)
}

// GetInboxPollEvery returns the inbox poll cadence.
func (c *Config) GetInboxPollEvery() time.Duration {
	return parseDuration(c.Runtime.InboxPollEvery, 2*time.Minute)
}

// GetWakeupEvery returns the sleep-expiry probe cadence.
func (c *Config) GetWakeupEvery() time.Duration {
	return parseDuration(c.Runtime.WakeupEvery, 30*time.Second)
}

// GetResurrectionEvery returns the resurrection probe cadence.
func (c *Config) GetResurrectionEvery() time.Duration {
	return parseDuration(c.Runtime.ResurrectionEvery, 10*time.Minute)
}

// GetJournalEvery returns the journal reminder cadence.
func (c *Config) GetJournalEvery() time.Duration {
	return parseDuration(c.Runtime.JournalEvery, 24*time.Hour)
}

// PriceFor returns the price entry for a model, or a zero entry when the
// model is not in the table.
func (c *Config) PriceFor(model string) ModelPrice {
	for _, p := range c.Pricing {
		if p.Model == model {
			return p
		}
	}
	return ModelPrice{Model: model}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
