package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automa/internal/chain"
	"automa/internal/config"
	"automa/internal/store"
	"automa/internal/survival"
	"automa/internal/tools"
)

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (string, error) { return "", nil }
	require.NoError(t, reg.Register(&tools.Tool{
		Name: "check_credits", Description: "Check credit balance.",
		Category: tools.CategorySurvival, Execute: noop,
	}))
	require.NoError(t, reg.Register(&tools.Tool{
		Name: "exec", Description: "Run a shell command.",
		Category: tools.CategorySandbox, Risk: tools.RiskDangerous, Execute: noop,
	}))
	return reg
}

func TestBuildSystemSections(t *testing.T) {
	sys := BuildSystem(&SystemInput{
		Identity: &config.Identity{Name: "automa-7", Address: "0xabc", Role: "builder"},
		Genesis:  "Earn your keep by shipping small services.",
		State:    "running",
		Tier:     survival.TierNormal,
		Balances: &chain.Balances{CreditsCents: 9125, USDC: 1.5, Source: "live"},
		Skills:   []store.Skill{{Name: "deploy-static-site", Version: 3}},
		Registry: testRegistry(t),
		Episodic: []store.EpisodicEntry{{Classification: "productive", Summary: "Built a webserver", Outcome: "success"}},
		Facts:    []store.SemanticEntry{{Key: "financial.last_known_balance", Value: "$91.25"}},
		Working:  []store.WorkingEntry{{Content: "Waiting for Alice to confirm the port"}},
	})

	assert.True(t, strings.HasPrefix(sys, "Earn your keep"), "genesis must lead the prompt")
	assert.Contains(t, sys, "## Identity")
	assert.Contains(t, sys, "Name: automa-7")
	assert.Contains(t, sys, "## Survival")
	assert.Contains(t, sys, "Tier: normal")
	assert.Contains(t, sys, "Credits: 9125 cents ($91.25, live)")
	assert.Contains(t, sys, "## Memory")
	assert.Contains(t, sys, "Built a webserver")
	assert.Contains(t, sys, "financial.last_known_balance: $91.25")
	assert.Contains(t, sys, "Waiting for Alice")
	assert.Contains(t, sys, "## Skills")
	assert.Contains(t, sys, "deploy-static-site (v3)")
	assert.Contains(t, sys, "## Tools")
	assert.Contains(t, sys, "exec [dangerous]: Run a shell command.")
	assert.Contains(t, sys, "check_credits: Check credit balance.")
	assert.Contains(t, sys, "## Rules")
	assert.Contains(t, sys, "untrusted input")
}

func TestBuildSystemDefaultGenesis(t *testing.T) {
	sys := BuildSystem(&SystemInput{})
	assert.Contains(t, sys, "sovereign automaton")
	assert.Contains(t, sys, "## Rules")
	assert.NotContains(t, sys, "## Identity", "empty identity renders nothing")
	assert.NotContains(t, sys, "## Memory")
	assert.NotContains(t, sys, "## Skills")
	assert.NotContains(t, sys, "## Tools")
}

func TestBuildSystemTierGuidance(t *testing.T) {
	low := BuildSystem(&SystemInput{Tier: survival.TierLowCompute})
	assert.Contains(t, low, "cheaper model")

	critical := BuildSystem(&SystemInput{Tier: survival.TierCritical})
	assert.Contains(t, critical, "CRITICAL")

	normal := BuildSystem(&SystemInput{Tier: survival.TierNormal})
	assert.NotContains(t, normal, "CRITICAL")
	assert.NotContains(t, normal, "cheaper model")
}

func TestBuildSystemToolOrder(t *testing.T) {
	sys := BuildSystem(&SystemInput{Registry: testRegistry(t)})
	survivalIdx := strings.Index(sys, "survival:")
	sandboxIdx := strings.Index(sys, "sandbox:")
	require.NotEqual(t, -1, survivalIdx)
	require.NotEqual(t, -1, sandboxIdx)
	assert.Less(t, survivalIdx, sandboxIdx, "survival tools come first in the catalog")
}

func TestRecallDegradesOnEmptyStore(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	episodic, facts, working := Recall(st, "session-1")
	assert.Empty(t, episodic)
	assert.Empty(t, facts)
	assert.Empty(t, working)
}

func TestRecallReturnsStoredMemory(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.InsertEpisodic(&store.EpisodicEntry{
		SessionID: "session-1", EventType: "tool_execution",
		Summary: "Exposed port 8080", Outcome: "success",
		Importance: 0.7, Classification: "productive",
	}))
	require.NoError(t, st.UpsertSemantic("self.system_synopsis", "tiny VPS", "self"))
	require.NoError(t, st.InsertWorking(&store.WorkingEntry{
		SessionID: "session-1", Content: "try caddy next", EntryType: "decision", Priority: 0.9,
	}))

	episodic, facts, working := Recall(st, "session-1")
	require.Len(t, episodic, 1)
	assert.Equal(t, "Exposed port 8080", episodic[0].Summary)
	require.Len(t, facts, 1)
	assert.Equal(t, "tiny VPS", facts[0].Value)
	require.Len(t, working, 1)
	assert.Equal(t, "try caddy next", working[0].Content)
}
