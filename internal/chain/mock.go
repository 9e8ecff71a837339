package chain

import (
	"context"
	"fmt"
	"sync"
)

// MockChain is an in-process facilitator used by tests and by offline runs
// where no facilitator is configured. All fields are safe to mutate between
// calls; methods are goroutine-safe.
type MockChain struct {
	mu sync.Mutex

	CreditsCents int64
	USDC         float64
	Agents       []AgentCard
	Reputations  map[string]*Reputation

	// Err, when set, is returned by every method to simulate an outage.
	Err error

	PingCount     int
	Registrations []Registration
}

// NewMockChain returns a mock with a comfortable starting balance.
func NewMockChain() *MockChain {
	return &MockChain{
		CreditsCents: 500,
		USDC:         10,
		Reputations:  map[string]*Reputation{},
	}
}

// SetCredits replaces the credit balance.
func (m *MockChain) SetCredits(cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreditsCents = cents
}

func (m *MockChain) GetCreditsCents(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.CreditsCents, nil
}

func (m *MockChain) GetUSDCBalance(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.USDC, nil
}

func (m *MockChain) RegisterERC8004(ctx context.Context, name, domain string) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	reg := Registration{
		AgentID: fmt.Sprintf("agent-%d", len(m.Registrations)+1),
		TxHash:  fmt.Sprintf("0xmock%04d", len(m.Registrations)+1),
		ChainID: 84532,
	}
	m.Registrations = append(m.Registrations, reg)
	return &reg, nil
}

func (m *MockChain) GetReputation(ctx context.Context, agentID string) (*Reputation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if r, ok := m.Reputations[agentID]; ok {
		return r, nil
	}
	return &Reputation{AgentID: agentID}, nil
}

func (m *MockChain) DiscoverAgents(ctx context.Context, capability string) ([]AgentCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if capability == "" {
		return append([]AgentCard(nil), m.Agents...), nil
	}
	var out []AgentCard
	for _, a := range m.Agents {
		for _, c := range a.Capabilities {
			if c == capability {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (m *MockChain) Ping(ctx context.Context, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.PingCount++
	return nil
}
