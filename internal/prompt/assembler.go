// Package prompt assembles what the model sees each turn: the system
// prompt describing who the automaton is, and the compressed history of
// what it has been doing. The assembler is also the first of the anti-loop
// layers: it filters pure status-check turns out of the window, falls back
// to older productive work when the window is all noise, and injects a
// warning when the automaton has been idling in circles.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"automa/internal/logging"
	"automa/internal/perception"
	"automa/internal/store"
	"automa/internal/tools"
)

const (
	// RecentWindow is how many turns the assembler considers by default.
	RecentWindow = 20

	// deepWindow is how far back the fallback scan reaches when the whole
	// recent window is idle chatter.
	deepWindow = 100

	maxProductiveFallback = 5
	recentAnchor          = 2

	maxThinkingChars   = 640
	maxToolResultChars = 700

	warningScan     = 5
	warningMinTurns = 3
)

// PendingInput is the message appended after history: inbox traffic, a
// heartbeat injection, or a system notice.
type PendingInput struct {
	Content string
	Source  string
}

// Assembler builds the message list for one inference call.
type Assembler struct {
	st *store.Store
}

// NewAssembler creates an assembler over the turn log.
func NewAssembler(st *store.Store) *Assembler {
	return &Assembler{st: st}
}

// Build assembles the ordered message list: compressed history oldest to
// newest, then the maintenance-loop warning when one is due, then the
// pending input.
func (a *Assembler) Build(pending *PendingInput) ([]perception.Message, error) {
	recent, err := a.st.GetRecentTurns(RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("loading recent turns: %w", err)
	}

	included := meaningful(recent)
	if len(included) == 0 {
		included, err = a.deepFallback(recent)
		if err != nil {
			return nil, err
		}
	}

	msgs := make([]perception.Message, 0, len(included)*2+2)
	for i := range included {
		msgs = append(msgs, compress(&included[i])...)
	}

	// The loop scan runs over the raw window, not the filtered one. A
	// maintenance loop is by definition a run of turns the filter drops,
	// so scanning the filtered list would never see one.
	if warning := maintenanceWarning(recent); warning != "" {
		logging.ContextWarn("Maintenance loop detected across last %d turns", min(len(recent), warningScan))
		msgs = append(msgs, perception.Message{Role: "user", Content: warning})
	}

	if pending != nil && pending.Content != "" {
		msgs = append(msgs, perception.Message{
			Role:    "user",
			Content: fmt.Sprintf("[source=%s] %s", pending.Source, pending.Content),
		})
	}

	logging.ContextDebug("Assembled %d messages from %d turns", len(msgs), len(included))
	return msgs, nil
}

// meaningful keeps turns that either called no tools at all or called at
// least one tool outside the idle-only set.
func meaningful(turns []store.Turn) []store.Turn {
	var out []store.Turn
	for _, t := range turns {
		if isMeaningful(&t) {
			out = append(out, t)
		}
	}
	return out
}

func isMeaningful(t *store.Turn) bool {
	if len(t.ToolCalls) == 0 {
		return true
	}
	for _, c := range t.ToolCalls {
		if !tools.IsIdleOnly(c.Name) {
			return true
		}
	}
	return false
}

// isProductive is stricter than isMeaningful: the turn must have actually
// called a non-idle tool.
func isProductive(t *store.Turn) bool {
	if len(t.ToolCalls) == 0 {
		return false
	}
	return isMeaningful(t)
}

// deepFallback rescans up to 100 turns for real work when the recent
// window is all status checks. It keeps the most recent productive turns
// plus the tail of the original window as an anchor, so the model sees
// both what it last achieved and what it has been doing since.
func (a *Assembler) deepFallback(recent []store.Turn) ([]store.Turn, error) {
	deep, err := a.st.GetRecentTurns(deepWindow)
	if err != nil {
		return nil, fmt.Errorf("deep fallback scan: %w", err)
	}

	var productive []store.Turn
	for i := len(deep) - 1; i >= 0 && len(productive) < maxProductiveFallback; i-- {
		if isProductive(&deep[i]) {
			productive = append(productive, deep[i])
		}
	}
	// Collected newest-first; flip back to chronological.
	for i, j := 0, len(productive)-1; i < j; i, j = i+1, j-1 {
		productive[i], productive[j] = productive[j], productive[i]
	}

	anchor := recent
	if len(anchor) > recentAnchor {
		anchor = anchor[len(anchor)-recentAnchor:]
	}

	if len(productive) == 0 {
		logging.ContextDebug("Deep fallback found no productive turns, using last %d", len(anchor))
		return anchor, nil
	}

	seen := make(map[string]bool, len(productive))
	out := make([]store.Turn, 0, len(productive)+len(anchor))
	for _, t := range productive {
		seen[t.ID] = true
		out = append(out, t)
	}
	for _, t := range anchor {
		if !seen[t.ID] {
			out = append(out, t)
		}
	}
	logging.Context("Recent window was all idle; deep fallback kept %d productive + %d anchor turns",
		len(productive), len(out)-len(productive))
	return out, nil
}

// compress collapses one turn into at most one user and one assistant
// message.
func compress(t *store.Turn) []perception.Message {
	var msgs []perception.Message

	if t.Input != "" {
		content := t.Input
		if t.InputSource != "" {
			content = fmt.Sprintf("[source=%s] %s", t.InputSource, t.Input)
		}
		msgs = append(msgs, perception.Message{Role: "user", Content: content})
	}

	var b strings.Builder
	if th := strings.TrimSpace(t.Thinking); th != "" {
		b.WriteString(truncate(th, maxThinkingChars))
	}
	for _, c := range t.ToolCalls {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if c.Error != "" {
			fmt.Fprintf(&b, "[%s] error: %s", c.Name, truncate(c.Error, maxToolResultChars))
		} else {
			fmt.Fprintf(&b, "[%s] %s", c.Name, truncate(c.Result, maxToolResultChars))
		}
	}
	if b.Len() > 0 {
		msgs = append(msgs, perception.Message{Role: "assistant", Content: b.String()})
	}
	return msgs
}

// productiveSuggestions is what the warning offers as a way out.
var productiveSuggestions = []string{
	"exec", "write_file", "expose_port", "web_fetch",
	"send_message", "register_erc8004", "upsert_skill",
}

// maintenanceWarning returns the anti-loop banner when the last five
// turns of the window were each a single idle-only tool call. Short
// histories stay quiet; two status checks after a fresh boot are not a loop.
func maintenanceWarning(recent []store.Turn) string {
	if len(recent) < warningMinTurns {
		return ""
	}
	scan := recent
	if len(scan) > warningScan {
		scan = scan[len(scan)-warningScan:]
	}

	observed := make(map[string]bool)
	for _, t := range scan {
		if len(t.ToolCalls) != 1 || !tools.IsIdleOnly(t.ToolCalls[0].Name) {
			return ""
		}
		observed[t.ToolCalls[0].Name] = true
	}

	names := make([]string, 0, len(observed))
	for n := range observed {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("MAINTENANCE LOOP DETECTED\n\n")
	fmt.Fprintf(&b, "Your last %d turns were single status checks: %s. ", len(scan), strings.Join(names, ", "))
	b.WriteString("Status checks do not earn credits and do not advance your goals.\n\n")
	fmt.Fprintf(&b, "Break the loop with a productive tool such as: %s.\n", strings.Join(productiveSuggestions, ", "))
	fmt.Fprintf(&b, "Avoid calling %s again this turn.\n", strings.Join(names, ", "))
	b.WriteString("Re-read your genesis prompt and pick one concrete objective to advance right now.")
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
