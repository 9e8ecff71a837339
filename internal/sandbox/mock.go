package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockSandbox is an in-memory sandbox used by tests and offline runs. Exec
// results are scripted per exact command; unscripted commands get a generic
// success. All methods are goroutine-safe.
type MockSandbox struct {
	mu sync.Mutex

	Files   map[string]string
	Results map[string]*ExecResult

	// Err, when set, is returned by every method.
	Err error

	ExecCalls []string
	Installed []string
	Exposed   []int
}

// NewMockSandbox returns an empty mock sandbox.
func NewMockSandbox() *MockSandbox {
	return &MockSandbox{
		Files:   map[string]string{},
		Results: map[string]*ExecResult{},
	}
}

// Script registers a canned result for an exact command string.
func (m *MockSandbox) Script(command string, result *ExecResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[command] = result
}

// ExecCount reports how many commands have been executed.
func (m *MockSandbox) ExecCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecCalls)
}

func (m *MockSandbox) Exec(ctx context.Context, command string) (*ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.ExecCalls = append(m.ExecCalls, command)
	if r, ok := m.Results[command]; ok {
		out := *r
		return &out, nil
	}
	return &ExecResult{Stdout: "ok\n", DurationMs: 1}, nil
}

func (m *MockSandbox) WriteFile(ctx context.Context, path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Files[path] = content
	return nil
}

func (m *MockSandbox) ReadFile(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	content, ok := m.Files[path]
	if !ok {
		return "", fmt.Errorf("file not found: %s", path)
	}
	return content, nil
}

func (m *MockSandbox) ExposePort(ctx context.Context, port int) (*PortInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Exposed = append(m.Exposed, port)
	return &PortInfo{
		Port: port,
		URL:  fmt.Sprintf("https://mock-sandbox.example:%d", port),
	}, nil
}

func (m *MockSandbox) ListSandboxes(ctx context.Context) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return []Info{{ID: "mock-1", Status: "running", CreatedAt: time.Now().UTC()}}, nil
}

func (m *MockSandbox) InstallPackage(ctx context.Context, spec string) (*ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Installed = append(m.Installed, spec)
	return &ExecResult{Stdout: "installed " + spec + "\n", DurationMs: 1}, nil
}
