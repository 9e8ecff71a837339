package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"automa/internal/api"
	"automa/internal/config"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what a running automaton is doing",
	Long: `Queries the overview endpoint of a running automaton and renders a
snapshot: lifecycle state, survival tier, balances, model selection, and
heartbeat schedule. Pair with --json for machine-readable output.`,
	RunE: runStatus,
}

// Styles follow the runtime dashboard's palette.
var (
	statusTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	statusLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#7a8490")).Width(12)
	statusWarn  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC107"))
	statusBad   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))

	tierStyles = map[string]lipgloss.Style{
		"normal":      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		"low_compute": statusWarn,
		"critical":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8a65")),
		"dead":        statusBad,
	}
)

func runStatus(cmd *cobra.Command, args []string) error {
	p := port
	if p == 0 {
		home, err := config.NewHome(homeDir)
		if err != nil {
			return err
		}
		cfg, err := config.Load(home.ConfigPath())
		if err != nil {
			return err
		}
		p = cfg.Runtime.Port
	}

	ov, err := fetchOverview(fmt.Sprintf("http://127.0.0.1:%d", p))
	if err != nil {
		return fmt.Errorf("no automaton answering on port %d: %w", p, err)
	}

	if statusJSON {
		out, err := json.MarshalIndent(ov, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Print(renderOverview(ov))
	return nil
}

func fetchOverview(baseURL string) (*api.Overview, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(baseURL + "/api/overview")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overview returned %s", resp.Status)
	}
	var ov api.Overview
	if err := json.NewDecoder(resp.Body).Decode(&ov); err != nil {
		return nil, fmt.Errorf("parsing overview: %w", err)
	}
	return &ov, nil
}

func renderOverview(ov *api.Overview) string {
	var b strings.Builder

	name := ov.Identity.Name
	if name == "" {
		name = "automa"
	}
	b.WriteString(statusTitle.Render(name))
	if ov.Identity.Address != "" {
		b.WriteString("  " + ov.Identity.Address)
	}
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(statusLabel.Render(label) + value + "\n")
	}

	tier := ov.Runtime.Tier
	if style, ok := tierStyles[tier]; ok {
		tier = style.Render(tier)
	}
	row("State", ov.Runtime.State)
	row("Tier", tier)
	row("Turns", fmt.Sprintf("%d", ov.Runtime.TurnCount))
	if ov.Runtime.LastTurnAt != "" {
		row("Last turn", ov.Runtime.LastTurnAt)
	}
	if ov.Runtime.UptimeSeconds > 0 {
		row("Uptime", (time.Duration(ov.Runtime.UptimeSeconds) * time.Second).String())
	}
	row("Model", describeModel(ov.Model))
	row("Credits", fmt.Sprintf("$%.2f (%s)", ov.Balances.CreditsUSD, ov.Balances.Source))
	row("USDC", fmt.Sprintf("%.6f", ov.Balances.USDC))

	if len(ov.Runtime.ActiveHeartbeats) > 0 {
		b.WriteString("\n" + statusLabel.Render("Heartbeats") + "\n")
		for _, hb := range ov.Runtime.ActiveHeartbeats {
			state := "on"
			if !hb.Enabled {
				state = "off"
			}
			line := fmt.Sprintf("  %-20s %-8s %s", hb.Name, hb.Every, state)
			if hb.LastRun != "" {
				line += "  last " + hb.LastRun
			}
			b.WriteString(line + "\n")
		}
	}

	if ov.Distress != nil {
		b.WriteString("\n" + statusBad.Render("DISTRESS") + fmt.Sprintf(" %s (tier %s, %d cents) at %s\n",
			ov.Distress.Reason, ov.Distress.Tier, ov.Distress.CreditsCents, ov.Distress.CreatedAt))
	}

	return b.String()
}

func describeModel(m api.ModelSummary) string {
	if m.Active != "" && m.Active != m.Configured {
		return fmt.Sprintf("%s (active %s)", m.Configured, m.Active)
	}
	return m.Configured
}
