package tools

import (
	"context"
	"fmt"
	"strings"

	"automa/internal/guard"
	"automa/internal/logging"
	"automa/internal/store"
)

// RegisterERC8004Tool returns a tool that registers the automaton in the
// on-chain ERC-8004 identity registry.
func RegisterERC8004Tool(d *Deps) *Tool {
	return &Tool{
		Name:        "register_erc8004",
		Description: "Register yourself in the ERC-8004 on-chain identity registry so other agents can verify and find you.",
		Category:    CategoryIdentity,
		Risk:        RiskCaution,
		Execute:     executeRegisterERC8004(d),
		Schema: ToolSchema{
			Required: []string{"domain"},
			Properties: map[string]Property{
				"domain": {
					Type:        "string",
					Description: "Domain serving your agent card",
				},
				"name": {
					Type:        "string",
					Description: "Registered name (defaults to your configured name)",
				},
			},
		},
	}
}

func executeRegisterERC8004(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		domain, err := requiredString(args, "domain")
		if err != nil {
			return "", err
		}
		name := stringArg(args, "name")
		if name == "" {
			name = d.Config.Name
		}

		reg, err := d.Chain.RegisterERC8004(ctx, name, domain)
		if err != nil {
			return "", fmt.Errorf("erc8004 registration: %w", err)
		}
		if err := d.Store.SetKV(store.KeyAgentCardID, reg.AgentID); err != nil {
			logging.ChainError("Persisting agent card id failed: %v", err)
		}
		return fmt.Sprintf("registered as %s on chain %d (tx %s)", reg.AgentID, reg.ChainID, reg.TxHash), nil
	}
}

// UpdateGenesisPromptTool returns a tool that rewrites the automaton's own
// genesis prompt. The write is audited as a self-modification and counts
// against the hourly rate limit.
func UpdateGenesisPromptTool(d *Deps) *Tool {
	return &Tool{
		Name:        "update_genesis_prompt",
		Description: "Rewrite your genesis prompt, the document that defines who you are. Audited; use deliberately.",
		Category:    CategoryIdentity,
		Risk:        RiskDangerous,
		Guard:       guard.Policy{SelfMod: true},
		Execute:     executeUpdateGenesis(d),
		Schema: ToolSchema{
			Required: []string{"content"},
			Properties: map[string]Property{
				"content": {
					Type:        "string",
					Description: "Full replacement genesis prompt",
				},
			},
		},
	}
}

func executeUpdateGenesis(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		content, err := requiredString(args, "content")
		if err != nil {
			return "", err
		}
		if err := d.Home.WriteGenesisPrompt(content); err != nil {
			return "", fmt.Errorf("writing genesis prompt: %w", err)
		}
		if err := d.Store.InsertModification(&store.Modification{
			Path:      d.Home.GenesisPath(),
			Operation: "genesis_update",
			SizeBytes: int64(len(content)),
		}); err != nil {
			return "", fmt.Errorf("auditing genesis update: %w", err)
		}
		logging.Tools("Genesis prompt rewritten (%d bytes)", len(content))
		return fmt.Sprintf("genesis prompt updated (%d bytes, audited)", len(content)), nil
	}
}

// SpawnChildTool returns a tool that records a child automaton. The
// facilitator provisions the actual runtime; this side only tracks it.
func SpawnChildTool(d *Deps) *Tool {
	return &Tool{
		Name:        "spawn_child",
		Description: "Spawn a child agent with a given name and role. The child starts pending until the facilitator provisions and funds it.",
		Category:    CategoryIdentity,
		Risk:        RiskDangerous,
		Execute:     executeSpawnChild(d),
		Schema: ToolSchema{
			Required: []string{"name"},
			Properties: map[string]Property{
				"name": {
					Type:        "string",
					Description: "Name for the child agent",
				},
				"role": {
					Type:        "string",
					Description: "Role or mission statement for the child",
				},
			},
		},
	}
}

func executeSpawnChild(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		name, err := requiredString(args, "name")
		if err != nil {
			return "", err
		}
		child := &store.Child{
			Address: "pending-" + store.NewID(),
			Name:    name,
			Role:    stringArg(args, "role"),
			Status:  "pending",
		}
		if err := d.Store.InsertChild(child); err != nil {
			return "", fmt.Errorf("recording child: %w", err)
		}
		logging.Tools("Child %s recorded (%s)", name, child.Address)
		return fmt.Sprintf("child %s recorded at %s, status pending; it activates once the facilitator provisions and funds it", name, child.Address), nil
	}
}

// ListChildrenTool returns a tool that lists spawned children.
func ListChildrenTool(d *Deps) *Tool {
	return &Tool{
		Name:        "list_children",
		Description: "List the child agents you have spawned and their status.",
		Category:    CategoryIdentity,
		Risk:        RiskSafe,
		Execute:     executeListChildren(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeListChildren(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		children, err := d.Store.ListChildren()
		if err != nil {
			return "", err
		}
		if len(children) == 0 {
			return "no children", nil
		}
		var b strings.Builder
		for _, c := range children {
			fmt.Fprintf(&b, "%s  %s  %s", c.Address, c.Name, c.Status)
			if c.Role != "" {
				fmt.Fprintf(&b, "  (%s)", c.Role)
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

// CheckChildStatusTool returns a tool that reads one child's status.
func CheckChildStatusTool(d *Deps) *Tool {
	return &Tool{
		Name:        "check_child_status",
		Description: "Check the status of one child agent by address.",
		Category:    CategoryIdentity,
		Risk:        RiskSafe,
		Execute:     executeCheckChildStatus(d),
		Schema: ToolSchema{
			Required: []string{"address"},
			Properties: map[string]Property{
				"address": {
					Type:        "string",
					Description: "Child agent address",
				},
			},
		},
	}
}

func executeCheckChildStatus(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		address, err := requiredString(args, "address")
		if err != nil {
			return "", err
		}
		child, ok, err := d.Store.GetChild(address)
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("no child with address %s", address), nil
		}
		out := fmt.Sprintf("%s (%s) is %s, spawned %s", child.Name, child.Address, child.Status, child.CreatedAt)
		if child.Role != "" {
			out += ", role: " + child.Role
		}
		return out, nil
	}
}
