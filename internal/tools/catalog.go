package tools

import (
	"automa/internal/chain"
	"automa/internal/config"
	"automa/internal/perception"
	"automa/internal/sandbox"
	"automa/internal/social"
	"automa/internal/store"
)

// Deps carries everything the tool executors reach for. The kernel builds
// one of these at boot and hands it to RegisterAll.
type Deps struct {
	Store     *store.Store
	Chain     chain.Client
	Sandbox   sandbox.Client
	Social    social.Client
	Inference perception.Client
	Home      *config.Home
	Config    *config.Config

	// SessionID scopes working-memory reads to the current process.
	SessionID string

	// State and Tier report the live runtime state for system_synopsis.
	// Either may be nil.
	State func() string
	Tier  func() string
}

func (d *Deps) state() string {
	if d.State == nil {
		return "unknown"
	}
	return d.State()
}

func (d *Deps) tier() string {
	if d.Tier == nil {
		return "unknown"
	}
	return d.Tier()
}

// RegisterAll registers the full tool catalog with the given registry.
// The surface is fixed per process; nothing registers after boot.
func RegisterAll(registry *Registry, d *Deps) error {
	allTools := []*Tool{
		// Survival
		CheckCreditsTool(d),
		CheckUSDCBalanceTool(d),
		CheckInferenceSpendingTool(d),

		// Sandbox
		ExecTool(d),
		WriteFileTool(d),
		ReadFileTool(d),
		ExposePortTool(d),
		InstallPackageTool(d),
		ListSandboxesTool(d),

		// Filesystem (the automaton's own home)
		EditOwnFileTool(d),
		GitStatusTool(d),
		GitLogTool(d),

		// Communication
		SendMessageTool(d),
		InboxReplyTool(d),
		DiscoverAgentsTool(d),
		CheckReputationTool(d),

		// Identity
		RegisterERC8004Tool(d),
		UpdateGenesisPromptTool(d),
		SpawnChildTool(d),
		ListChildrenTool(d),
		CheckChildStatusTool(d),

		// Memory
		ReviewMemoryTool(d),
		RecallFactsTool(d),
		RecallProcedureTool(d),
		UpsertSkillTool(d),
		ListSkillsTool(d),

		// System
		SystemSynopsisTool(d),
		ListModelsTool(d),
		WebFetchTool(),
		SleepTool(d),
		HeartbeatPingTool(d),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
