package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"automa/internal/config"
	"automa/internal/logging"
)

const maxResponseBytes = 2 * 1024 * 1024

// HTTPClient implements Client against the facilitator's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	address    string
	httpClient *http.Client
}

// NewHTTPClient creates a facilitator client for the given wallet address.
func NewHTTPClient(cfg config.ChainConfig, address string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		address: address,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetCreditsCents returns the inference credit balance in cents.
func (c *HTTPClient) GetCreditsCents(ctx context.Context) (int64, error) {
	var out struct {
		CreditsCents int64 `json:"credits_cents"`
	}
	q := url.Values{"address": {c.address}}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/credits?"+q.Encode(), nil, &out); err != nil {
		return 0, err
	}
	return out.CreditsCents, nil
}

// GetUSDCBalance returns the wallet's USDC balance.
func (c *HTTPClient) GetUSDCBalance(ctx context.Context) (float64, error) {
	var out struct {
		USDC float64 `json:"usdc"`
	}
	q := url.Values{"address": {c.address}}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/usdc?"+q.Encode(), nil, &out); err != nil {
		return 0, err
	}
	return out.USDC, nil
}

// RegisterERC8004 registers the agent in the on-chain identity registry.
func (c *HTTPClient) RegisterERC8004(ctx context.Context, name, domain string) (*Registration, error) {
	body := map[string]string{
		"name":    name,
		"domain":  domain,
		"address": c.address,
	}
	var out Registration
	if err := c.doJSON(ctx, http.MethodPost, "/v1/agents/register", body, &out); err != nil {
		return nil, err
	}
	logging.Chain("Registered ERC-8004 agent %s (tx %s)", out.AgentID, out.TxHash)
	return &out, nil
}

// GetReputation looks up the aggregate reputation of an agent.
func (c *HTTPClient) GetReputation(ctx context.Context, agentID string) (*Reputation, error) {
	var out Reputation
	path := "/v1/agents/" + url.PathEscape(agentID) + "/reputation"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DiscoverAgents lists registered agents, optionally filtered by capability.
func (c *HTTPClient) DiscoverAgents(ctx context.Context, capability string) ([]AgentCard, error) {
	var out struct {
		Agents []AgentCard `json:"agents"`
	}
	path := "/v1/agents/discover"
	if capability != "" {
		q := url.Values{"capability": {capability}}
		path += "?" + q.Encode()
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// Ping posts a liveness telemetry payload.
func (c *HTTPClient) Ping(ctx context.Context, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["address"] = c.address
	return c.doJSON(ctx, http.MethodPost, "/v1/heartbeat", payload, nil)
}

// doJSON performs one facilitator request with retries on rate limits and
// server errors. The response body, if any, is decoded into out.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("facilitator error %d: %s", resp.StatusCode, truncate(string(data), 200))
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("facilitator rejected request with status %d: %s", resp.StatusCode, truncate(string(data), 200))
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return nil
	}

	logging.ChainError("%s %s failed after retries: %v", method, path, lastErr)
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
