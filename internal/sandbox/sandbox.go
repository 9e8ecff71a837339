// Package sandbox is the automaton's hands: a remote execution environment
// reached over HTTP. Commands, file I/O, port exposure, and package installs
// all happen inside the sandbox, never on the host running the runtime.
package sandbox

import (
	"context"
	"time"
)

// ExecResult captures one command execution inside the sandbox.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
}

// Info describes one sandbox known to the provider.
type Info struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PortInfo is the public endpoint for an exposed sandbox port.
type PortInfo struct {
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// Client is the execution surface the tool layer depends on.
type Client interface {
	// Exec runs a shell command in the sandbox.
	Exec(ctx context.Context, command string) (*ExecResult, error)

	// WriteFile writes content to a path inside the sandbox.
	WriteFile(ctx context.Context, path, content string) error

	// ReadFile reads a file from inside the sandbox.
	ReadFile(ctx context.Context, path string) (string, error)

	// ExposePort makes a sandbox port publicly reachable.
	ExposePort(ctx context.Context, port int) (*PortInfo, error)

	// ListSandboxes lists the sandboxes owned by this agent.
	ListSandboxes(ctx context.Context) ([]Info, error)

	// InstallPackage installs an allow-listed package into the sandbox.
	InstallPackage(ctx context.Context, spec string) (*ExecResult, error)
}
