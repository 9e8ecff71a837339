package sandbox

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

const maxResponseBytes = 4 * 1024 * 1024

// HTTPClient implements Client against the sandbox provider's REST API.
// Requests are sent exactly once: command execution is not idempotent, so
// unlike the chain client there is no retry loop here.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a sandbox client.
func NewHTTPClient(cfg config.SandboxConfig, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Exec runs a shell command in the sandbox.
func (c *HTTPClient) Exec(ctx context.Context, command string) (*ExecResult, error) {
	start := time.Now()
	var out ExecResult
	err := c.doJSON(ctx, http.MethodPost, "/v1/exec", map[string]string{"command": command}, &out)
	if err != nil {
		return nil, err
	}
	if out.DurationMs == 0 {
		out.DurationMs = time.Since(start).Milliseconds()
	}
	logging.SandboxDebug("exec %q exit=%d in %dms", firstLine(command), out.ExitCode, out.DurationMs)
	return &out, nil
}

// WriteFile writes content to a path inside the sandbox.
func (c *HTTPClient) WriteFile(ctx context.Context, path, content string) error {
	body := map[string]string{"path": path, "content": content}
	return c.doJSON(ctx, http.MethodPost, "/v1/files", body, nil)
}

// ReadFile reads a file from inside the sandbox.
func (c *HTTPClient) ReadFile(ctx context.Context, path string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	q := url.Values{"path": {path}}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/files?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// ExposePort makes a sandbox port publicly reachable.
func (c *HTTPClient) ExposePort(ctx context.Context, port int) (*PortInfo, error) {
	var out PortInfo
	if err := c.doJSON(ctx, http.MethodPost, "/v1/ports", map[string]int{"port": port}, &out); err != nil {
		return nil, err
	}
	logging.Sandbox("Exposed port %d at %s", out.Port, out.URL)
	return &out, nil
}

// ListSandboxes lists the sandboxes owned by this agent.
func (c *HTTPClient) ListSandboxes(ctx context.Context) ([]Info, error) {
	var out struct {
		Sandboxes []Info `json:"sandboxes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sandboxes", nil, &out); err != nil {
		return nil, err
	}
	return out.Sandboxes, nil
}

// InstallPackage installs a package into the sandbox.
func (c *HTTPClient) InstallPackage(ctx context.Context, spec string) (*ExecResult, error) {
	var out ExecResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/packages", map[string]string{"spec": spec}, &out); err != nil {
		return nil, err
	}
	return &out, nil
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
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sandbox rejected request with status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return truncate(s, 120)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
