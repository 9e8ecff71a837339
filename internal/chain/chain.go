// Package chain talks to the credit facilitator: credit and USDC balances,
// the ERC-8004 agent registry, reputation lookups, agent discovery, and the
// telemetry ping. Everything on-chain is mediated by the facilitator; the
// automaton never signs transactions itself.
package chain

import (
	"context"
)

// AgentCard describes one agent in the discovery registry.
type AgentCard struct {
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Domain       string   `json:"domain,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Reputation is the aggregate feedback score for one registered agent.
type Reputation struct {
	AgentID       string  `json:"agent_id"`
	Score         float64 `json:"score"`
	FeedbackCount int64   `json:"feedback_count"`
}

// Registration is the facilitator's receipt for an ERC-8004 registration.
type Registration struct {
	AgentID string `json:"agent_id"`
	TxHash  string `json:"tx_hash"`
	ChainID int64  `json:"chain_id"`
}

// Client is the facilitator surface the runtime depends on.
type Client interface {
	// GetCreditsCents returns the inference credit balance in cents.
	GetCreditsCents(ctx context.Context) (int64, error)

	// GetUSDCBalance returns the on-chain USDC balance of the wallet.
	GetUSDCBalance(ctx context.Context) (float64, error)

	// RegisterERC8004 registers this agent in the on-chain identity
	// registry under the given name and domain.
	RegisterERC8004(ctx context.Context, name, domain string) (*Registration, error)

	// GetReputation looks up the aggregate reputation of an agent.
	GetReputation(ctx context.Context, agentID string) (*Reputation, error)

	// DiscoverAgents lists registered agents, optionally filtered by
	// capability.
	DiscoverAgents(ctx context.Context, capability string) ([]AgentCard, error)

	// Ping posts a liveness telemetry payload to the facilitator.
	Ping(ctx context.Context, payload map[string]any) error
}
