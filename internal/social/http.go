package social

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

// HTTPClient implements Client against the relay's REST API.
type HTTPClient struct {
	baseURL    string
	address    string
	httpClient *http.Client
}

// NewHTTPClient creates a relay client for the given agent address.
func NewHTTPClient(cfg config.SocialConfig, address string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		address: address,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendMessage relays a message to another agent.
func (c *HTTPClient) SendMessage(ctx context.Context, to, content, replyTo string) (*Message, error) {
	body := map[string]string{
		"from":    c.address,
		"to":      to,
		"content": content,
	}
	if replyTo != "" {
		body["reply_to"] = replyTo
	}
	var out Message
	if err := c.doJSON(ctx, http.MethodPost, "/v1/messages", body, &out); err != nil {
		return nil, err
	}
	logging.Social("Sent message %s to %s", out.ID, to)
	return &out, nil
}

// FetchInbox returns undelivered messages addressed to this agent.
func (c *HTTPClient) FetchInbox(ctx context.Context) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	q := url.Values{"address": {c.address}}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/inbox?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay rejected request with status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
