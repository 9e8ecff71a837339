package tools

import (
	"context"
	"fmt"
	"strings"

	"automa/internal/logging"
)

// SendMessageTool returns a tool that messages another agent through the
// relay. Delivery is recorded in the relationship graph.
func SendMessageTool(d *Deps) *Tool {
	return &Tool{
		Name:        "send_message",
		Description: "Send a message to another agent by address.",
		Category:    CategoryCommunication,
		Risk:        RiskCaution,
		Priority:    80,
		Execute:     executeSendMessage(d, false),
		Schema: ToolSchema{
			Required: []string{"to", "content"},
			Properties: map[string]Property{
				"to": {
					Type:        "string",
					Description: "Recipient agent address",
				},
				"content": {
					Type:        "string",
					Description: "Message body",
				},
			},
		},
	}
}

// InboxReplyTool returns a tool that answers a specific inbox message.
func InboxReplyTool(d *Deps) *Tool {
	return &Tool{
		Name:        "inbox_reply",
		Description: "Reply to a message from your inbox, threading onto the original.",
		Category:    CategoryCommunication,
		Risk:        RiskCaution,
		Execute:     executeSendMessage(d, true),
		Schema: ToolSchema{
			Required: []string{"to", "content", "reply_to"},
			Properties: map[string]Property{
				"to": {
					Type:        "string",
					Description: "Recipient agent address",
				},
				"content": {
					Type:        "string",
					Description: "Reply body",
				},
				"reply_to": {
					Type:        "string",
					Description: "ID of the inbox message being answered",
				},
			},
		},
	}
}

func executeSendMessage(d *Deps, reply bool) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		to, err := requiredString(args, "to")
		if err != nil {
			return "", err
		}
		content, err := requiredString(args, "content")
		if err != nil {
			return "", err
		}
		replyTo := ""
		if reply {
			if replyTo, err = requiredString(args, "reply_to"); err != nil {
				return "", err
			}
		}

		msg, err := d.Social.SendMessage(ctx, to, content, replyTo)
		if err != nil {
			return "", fmt.Errorf("relay send: %w", err)
		}
		if err := d.Store.RecordRelationship(to, "contacted"); err != nil {
			logging.SocialError("Relationship record failed for %s: %v", to, err)
		}
		if replyTo != "" {
			return fmt.Sprintf("reply %s delivered to %s (in answer to %s)", msg.ID, to, replyTo), nil
		}
		return fmt.Sprintf("message %s delivered to %s", msg.ID, to), nil
	}
}

// DiscoverAgentsTool returns a tool that queries the facilitator's agent
// directory. Cards are authored by the agents themselves.
func DiscoverAgentsTool(d *Deps) *Tool {
	return &Tool{
		Name:        "discover_agents",
		Description: "Discover other registered agents, optionally filtered by capability.",
		Category:    CategoryCommunication,
		Risk:        RiskSafe,
		External:    true,
		Execute:     executeDiscoverAgents(d),
		Schema: ToolSchema{
			Properties: map[string]Property{
				"capability": {
					Type:        "string",
					Description: "Capability to filter by (optional)",
				},
			},
		},
	}
}

func executeDiscoverAgents(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		capability := stringArg(args, "capability")
		cards, err := d.Chain.DiscoverAgents(ctx, capability)
		if err != nil {
			return "", fmt.Errorf("agent discovery: %w", err)
		}
		if len(cards) == 0 {
			return "no agents found", nil
		}
		var b strings.Builder
		for _, card := range cards {
			fmt.Fprintf(&b, "%s  %s  %s", card.AgentID, card.Name, card.Address)
			if len(card.Capabilities) > 0 {
				fmt.Fprintf(&b, "  [%s]", strings.Join(card.Capabilities, ", "))
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

// CheckReputationTool returns a tool that reads another agent's on-chain
// reputation score.
func CheckReputationTool(d *Deps) *Tool {
	return &Tool{
		Name:        "check_reputation",
		Description: "Check the on-chain reputation score of an agent.",
		Category:    CategoryCommunication,
		Risk:        RiskSafe,
		External:    true,
		Execute:     executeCheckReputation(d),
		Schema: ToolSchema{
			Required: []string{"agent_id"},
			Properties: map[string]Property{
				"agent_id": {
					Type:        "string",
					Description: "Agent to look up",
				},
			},
		},
	}
}

func executeCheckReputation(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		agentID, err := requiredString(args, "agent_id")
		if err != nil {
			return "", err
		}
		rep, err := d.Chain.GetReputation(ctx, agentID)
		if err != nil {
			return "", fmt.Errorf("reputation lookup: %w", err)
		}
		return fmt.Sprintf("%s has reputation %.2f over %d feedbacks", rep.AgentID, rep.Score, rep.FeedbackCount), nil
	}
}
