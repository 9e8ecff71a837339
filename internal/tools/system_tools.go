package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"automa/internal/store"
)

// Sleep durations the sleep tool will accept, in seconds.
const (
	minSleepSeconds     = 10
	maxSleepSeconds     = 86400
	defaultSleepSeconds = 300
)

// SystemSynopsisTool returns a tool that summarizes the automaton's own
// runtime condition in one shot.
func SystemSynopsisTool(d *Deps) *Tool {
	return &Tool{
		Name:        "system_synopsis",
		Description: "Summarize your current condition: state, tier, balances, model, uptime, and counts.",
		Category:    CategorySystem,
		Risk:        RiskSafe,
		Priority:    80,
		Execute:     executeSystemSynopsis(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeSystemSynopsis(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%s)\n", d.Config.Name, d.Config.Address)
		fmt.Fprintf(&b, "state=%s tier=%s\n", d.state(), d.tier())

		credits := d.Store.GetKVInt(store.KeyCachedCredits, -1)
		if credits >= 0 {
			fmt.Fprintf(&b, "credits=%d¢ (cached)\n", credits)
		} else {
			b.WriteString("credits=unknown\n")
		}

		if d.Inference != nil {
			fmt.Fprintf(&b, "model=%s provider=%s low_compute=%v\n",
				d.Inference.ActiveModel(), d.Inference.Provider(), d.Inference.LowCompute())
		}

		if started, ok := d.Store.GetKVTime(store.KeyStartTime); ok {
			fmt.Fprintf(&b, "uptime=%s\n", time.Since(started).Round(time.Second))
		}

		turns, err := d.Store.CountTurns()
		if err != nil {
			return "", err
		}
		pending, err := d.Store.CountUnprocessedInbox()
		if err != nil {
			return "", err
		}
		children, err := d.Store.ListChildren()
		if err != nil {
			return "", err
		}
		skills, err := d.Store.ListSkills()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "turns=%d inbox_pending=%d children=%d skills=%d", turns, pending, len(children), len(skills))
		return b.String(), nil
	}
}

// ListModelsTool returns a tool that lists the configured models and their
// prices.
func ListModelsTool(d *Deps) *Tool {
	return &Tool{
		Name:        "list_models",
		Description: "List your configured inference models and their per-million-token prices.",
		Category:    CategorySystem,
		Risk:        RiskSafe,
		Execute:     executeListModels(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeListModels(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "configured: %s\n", d.Config.Inference.Model)
		if d.Config.Inference.LowComputeModel != "" {
			fmt.Fprintf(&b, "low_compute: %s\n", d.Config.Inference.LowComputeModel)
		}
		if d.Inference != nil {
			fmt.Fprintf(&b, "active: %s\n", d.Inference.ActiveModel())
		}
		if len(d.Config.Pricing) > 0 {
			b.WriteString("pricing (¢ per million tokens, prompt/completion):\n")
			for _, p := range d.Config.Pricing {
				fmt.Fprintf(&b, "  %s  %.0f/%.0f\n", p.Model, p.PromptCents, p.CompletionCents)
			}
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

// SleepTool returns a tool that schedules the automaton's own sleep. The
// loop finishes the current turn, persists it, and exits sleeping.
func SleepTool(d *Deps) *Tool {
	return &Tool{
		Name:        "sleep",
		Description: "Go to sleep for a number of seconds to conserve credits. You wake when the time elapses or a message arrives.",
		Category:    CategorySystem,
		Risk:        RiskSafe,
		Priority:    90,
		Execute:     executeSleep(d),
		Schema: ToolSchema{
			Properties: map[string]Property{
				"seconds": {
					Type:        "integer",
					Description: "How long to sleep, 10-86400 seconds (default 300)",
					Default:     defaultSleepSeconds,
				},
			},
		},
	}
}

func executeSleep(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		seconds := clampInt(intArg(args, "seconds", defaultSleepSeconds), minSleepSeconds, maxSleepSeconds)
		until := time.Now().Add(time.Duration(seconds) * time.Second)
		if err := d.Store.SetKVTime(store.KeySleepUntil, until); err != nil {
			return "", fmt.Errorf("scheduling sleep: %w", err)
		}
		return fmt.Sprintf("sleeping for %ds (until %s)", seconds, until.UTC().Format(time.RFC3339)), nil
	}
}

// HeartbeatPingTool returns a tool that sends liveness telemetry to the
// facilitator.
func HeartbeatPingTool(d *Deps) *Tool {
	return &Tool{
		Name:        "heartbeat_ping",
		Description: "Send a liveness ping with basic telemetry to the facilitator.",
		Category:    CategorySystem,
		Risk:        RiskSafe,
		Execute:     executeHeartbeatPing(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeHeartbeatPing(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		turns, err := d.Store.CountTurns()
		if err != nil {
			turns = -1
		}
		payload := map[string]any{
			"name":  d.Config.Name,
			"state": d.state(),
			"tier":  d.tier(),
			"turns": turns,
		}
		if err := d.Chain.Ping(ctx, payload); err != nil {
			return "", fmt.Errorf("heartbeat: %w", err)
		}
		now := time.Now()
		if err := d.Store.SetKVTime(store.KeyLastHeartbeatAt, now); err != nil {
			return "", fmt.Errorf("stamping heartbeat: %w", err)
		}
		return fmt.Sprintf("heartbeat acknowledged at %s", now.UTC().Format(time.RFC3339)), nil
	}
}
