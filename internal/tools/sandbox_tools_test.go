package tools

import (
	"context"
	"strings"
	"testing"

	"automa/internal/sandbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecFormatsOutput(t *testing.T) {
	reg, d := newTestRegistry(t)
	d.mockSandbox.Script("ls /srv", &sandbox.ExecResult{Stdout: "app\nlogs\n", DurationMs: 4})

	res, err := reg.Execute(context.Background(), "exec", map[string]any{"command": "ls /srv"})
	require.NoError(t, err)
	assert.Equal(t, "app\nlogs", strings.TrimSpace(res.Result))
	assert.Equal(t, []string{"ls /srv"}, d.mockSandbox.ExecCalls)
}

func TestExecNonZeroExit(t *testing.T) {
	reg, d := newTestRegistry(t)
	d.mockSandbox.Script("false", &sandbox.ExecResult{Stderr: "boom", ExitCode: 2})

	res, err := reg.Execute(context.Background(), "exec", map[string]any{"command": "false"})
	require.NoError(t, err, "a failing command is a result, not a tool error")
	assert.Contains(t, res.Result, "exit 2")
	assert.Contains(t, res.Result, "boom")
}

func TestExecMissingCommand(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Execute(context.Background(), "exec", map[string]any{})
	assert.ErrorIs(t, err, ErrMissingRequiredArg)
}

func TestWriteThenReadFile(t *testing.T) {
	reg, _ := newTestRegistry(t)

	res, err := reg.Execute(context.Background(), "write_file", map[string]any{
		"path":    "/srv/app/main.py",
		"content": "print('hi')",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "wrote 11 bytes to /srv/app/main.py")

	res, err = reg.Execute(context.Background(), "read_file", map[string]any{"path": "/srv/app/main.py"})
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", res.Result)
}

func TestExposePortValidatesRange(t *testing.T) {
	reg, _ := newTestRegistry(t)

	// JSON numbers arrive as float64.
	res, err := reg.Execute(context.Background(), "expose_port", map[string]any{"port": float64(8080)})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "port 8080 exposed at https://mock-sandbox.example:8080")

	_, err = reg.Execute(context.Background(), "expose_port", map[string]any{"port": float64(70000)})
	assert.ErrorIs(t, err, ErrInvalidArgType)
}

func TestInstallPackage(t *testing.T) {
	reg, d := newTestRegistry(t)

	res, err := reg.Execute(context.Background(), "install_package", map[string]any{"package": "ripgrep@14.1.0"})
	require.NoError(t, err)
	assert.Equal(t, "installed ripgrep@14.1.0", res.Result)
	assert.Equal(t, []string{"ripgrep@14.1.0"}, d.mockSandbox.Installed)
}

func TestListSandboxes(t *testing.T) {
	reg, _ := newTestRegistry(t)

	res, err := reg.Execute(context.Background(), "list_sandboxes", map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "mock-1")
	assert.Contains(t, res.Result, "running")
}

func TestFormatExecResultTruncates(t *testing.T) {
	long := strings.Repeat("x", maxToolOutput+100)
	out := formatExecResult(&sandbox.ExecResult{Stdout: long})
	assert.Len(t, out, maxToolOutput+len("\n...[truncated]"))
	assert.True(t, strings.HasSuffix(out, "...[truncated]"))
}

func TestFormatExecResultEmptyOutput(t *testing.T) {
	out := formatExecResult(&sandbox.ExecResult{ExitCode: 0})
	assert.Equal(t, "(no output, exit 0)", out)
}
