package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"automa/internal/guard"
	"automa/internal/logging"
	"automa/internal/store"
)

// EditOwnFileTool returns a tool that writes a file inside the automaton's
// own home directory. Every write is audited as a self-modification.
func EditOwnFileTool(d *Deps) *Tool {
	return &Tool{
		Name:        "edit_own_file",
		Description: "Write a file inside your own home directory, for journals, notes, and config you maintain about yourself. Audited.",
		Category:    CategoryFilesystem,
		Risk:        RiskDangerous,
		Guard:       guard.Policy{SelfMod: true},
		Execute:     executeEditOwnFile(d),
		Schema: ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Path relative to your home directory",
				},
				"content": {
					Type:        "string",
					Description: "Full file content to write",
				},
			},
		},
	}
}

func executeEditOwnFile(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		path, err := requiredString(args, "path")
		if err != nil {
			return "", err
		}
		content := stringArg(args, "content")

		rel := filepath.Clean(path)
		if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path must stay inside the home directory: %s", path)
		}
		full := filepath.Join(d.Home.Dir, rel)

		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("creating parent directory: %w", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", rel, err)
		}
		if err := d.Store.InsertModification(&store.Modification{
			Path:      full,
			Operation: "write",
			SizeBytes: int64(len(content)),
		}); err != nil {
			return "", fmt.Errorf("auditing write: %w", err)
		}
		logging.Tools("Self-write: %s (%d bytes)", rel, len(content))
		return fmt.Sprintf("wrote %d bytes to %s (audited)", len(content), rel), nil
	}
}

// GitStatusTool returns a tool that reports the sandbox repo status.
func GitStatusTool(d *Deps) *Tool {
	return &Tool{
		Name:        "git_status",
		Description: "Show git working-tree status in your sandbox.",
		Category:    CategoryFilesystem,
		Risk:        RiskSafe,
		Execute:     executeSandboxGit(d, "git status --short --branch"),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

// GitLogTool returns a tool that shows recent sandbox commits.
func GitLogTool(d *Deps) *Tool {
	return &Tool{
		Name:        "git_log",
		Description: "Show recent git commits in your sandbox.",
		Category:    CategoryFilesystem,
		Risk:        RiskSafe,
		Execute:     executeSandboxGit(d, "git log --oneline -20"),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeSandboxGit(d *Deps, command string) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		res, err := d.Sandbox.Exec(ctx, command)
		if err != nil {
			return "", fmt.Errorf("sandbox exec: %w", err)
		}
		return formatExecResult(res), nil
	}
}
