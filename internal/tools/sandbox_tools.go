package tools

import (
	"context"
	"fmt"
	"strings"

	"automa/internal/guard"
	"automa/internal/sandbox"
)

// maxToolOutput caps what a single tool call can put into the transcript.
const maxToolOutput = 50000

func truncateOutput(s string) string {
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + "\n...[truncated]"
	}
	return s
}

func formatExecResult(res *sandbox.ExecResult) string {
	output := res.Stdout
	if res.Stderr != "" {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += res.Stderr
	}
	if res.ExitCode != 0 {
		output = fmt.Sprintf("exit %d\n%s", res.ExitCode, output)
	}
	if strings.TrimSpace(output) == "" {
		output = fmt.Sprintf("(no output, exit %d)", res.ExitCode)
	}
	return truncateOutput(output)
}

// ExecTool returns a tool that runs a shell command in the remote sandbox.
func ExecTool(d *Deps) *Tool {
	return &Tool{
		Name:        "exec",
		Description: "Execute a shell command in your sandbox and return its output.",
		Category:    CategorySandbox,
		Risk:        RiskDangerous,
		Guard:       guard.Policy{Exec: true},
		Priority:    90,
		Execute:     executeExec(d),
		Schema: ToolSchema{
			Required: []string{"command"},
			Properties: map[string]Property{
				"command": {
					Type:        "string",
					Description: "The shell command to execute",
				},
			},
		},
	}
}

func executeExec(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		command, err := requiredString(args, "command")
		if err != nil {
			return "", err
		}
		res, err := d.Sandbox.Exec(ctx, command)
		if err != nil {
			return "", fmt.Errorf("sandbox exec: %w", err)
		}
		return formatExecResult(res), nil
	}
}

// WriteFileTool returns a tool that writes a file inside the sandbox.
func WriteFileTool(d *Deps) *Tool {
	return &Tool{
		Name:        "write_file",
		Description: "Write content to a file inside your sandbox.",
		Category:    CategorySandbox,
		Risk:        RiskCaution,
		Execute:     executeWriteFile(d),
		Schema: ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Destination path inside the sandbox",
				},
				"content": {
					Type:        "string",
					Description: "File content to write",
				},
			},
		},
	}
}

func executeWriteFile(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		path, err := requiredString(args, "path")
		if err != nil {
			return "", err
		}
		content := stringArg(args, "content")
		if err := d.Sandbox.WriteFile(ctx, path, content); err != nil {
			return "", fmt.Errorf("sandbox write: %w", err)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	}
}

// ReadFileTool returns a tool that reads a file from the sandbox.
func ReadFileTool(d *Deps) *Tool {
	return &Tool{
		Name:        "read_file",
		Description: "Read the contents of a file inside your sandbox.",
		Category:    CategorySandbox,
		Risk:        RiskSafe,
		Execute:     executeReadFile(d),
		Schema: ToolSchema{
			Required: []string{"path"},
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Path of the file to read",
				},
			},
		},
	}
}

func executeReadFile(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		path, err := requiredString(args, "path")
		if err != nil {
			return "", err
		}
		content, err := d.Sandbox.ReadFile(ctx, path)
		if err != nil {
			return "", fmt.Errorf("sandbox read: %w", err)
		}
		return truncateOutput(content), nil
	}
}

// ExposePortTool returns a tool that publishes a sandbox port.
func ExposePortTool(d *Deps) *Tool {
	return &Tool{
		Name:        "expose_port",
		Description: "Expose a TCP port from your sandbox to the public internet and return its URL.",
		Category:    CategorySandbox,
		Risk:        RiskCaution,
		Execute:     executeExposePort(d),
		Schema: ToolSchema{
			Required: []string{"port"},
			Properties: map[string]Property{
				"port": {
					Type:        "integer",
					Description: "Port number inside the sandbox (1-65535)",
				},
			},
		},
	}
}

func executeExposePort(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		port := intArg(args, "port", 0)
		if port < 1 || port > 65535 {
			return "", fmt.Errorf("%w: port must be 1-65535", ErrInvalidArgType)
		}
		info, err := d.Sandbox.ExposePort(ctx, port)
		if err != nil {
			return "", fmt.Errorf("sandbox expose: %w", err)
		}
		return fmt.Sprintf("port %d exposed at %s", info.Port, info.URL), nil
	}
}

// InstallPackageTool returns a tool that installs a package in the sandbox.
// The guard's allow-list decides which packages are reachable at all.
func InstallPackageTool(d *Deps) *Tool {
	return &Tool{
		Name:        "install_package",
		Description: "Install a package in your sandbox. Only allow-listed package managers and names pass.",
		Category:    CategorySandbox,
		Risk:        RiskCaution,
		Guard:       guard.Policy{Package: true},
		Execute:     executeInstallPackage(d),
		Schema: ToolSchema{
			Required: []string{"package"},
			Properties: map[string]Property{
				"package": {
					Type:        "string",
					Description: "Package spec, name or name@version",
				},
			},
		},
	}
}

func executeInstallPackage(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		spec, err := requiredString(args, "package")
		if err != nil {
			return "", err
		}
		res, err := d.Sandbox.InstallPackage(ctx, spec)
		if err != nil {
			return "", fmt.Errorf("sandbox install: %w", err)
		}
		if res.ExitCode != 0 {
			return formatExecResult(res), nil
		}
		return fmt.Sprintf("installed %s", spec), nil
	}
}

// ListSandboxesTool returns a tool that lists the automaton's sandboxes.
func ListSandboxesTool(d *Deps) *Tool {
	return &Tool{
		Name:        "list_sandboxes",
		Description: "List your sandboxes and their status.",
		Category:    CategorySandbox,
		Risk:        RiskSafe,
		Execute:     executeListSandboxes(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeListSandboxes(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		infos, err := d.Sandbox.ListSandboxes(ctx)
		if err != nil {
			return "", fmt.Errorf("sandbox list: %w", err)
		}
		if len(infos) == 0 {
			return "no sandboxes", nil
		}
		var b strings.Builder
		for _, info := range infos {
			fmt.Fprintf(&b, "%s  %s  created %s\n", info.ID, info.Status, info.CreatedAt.Format("2006-01-02 15:04"))
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}
