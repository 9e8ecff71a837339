package memory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"automa/internal/logging"
	"automa/internal/store"
)

// Pipeline ingests finished turns into the memory tables. One pipeline
// lives per process; sessionID scopes episodic and working entries to this
// boot.
type Pipeline struct {
	st        *store.Store
	sessionID string
}

// NewPipeline creates a pipeline for the given session.
func NewPipeline(st *store.Store, sessionID string) *Pipeline {
	return &Pipeline{st: st, sessionID: sessionID}
}

// SessionID returns the session this pipeline writes under.
func (p *Pipeline) SessionID() string { return p.sessionID }

// Ingest records everything one completed turn teaches us. It never fails:
// every write is best-effort and logged on error, because losing a memory
// is survivable and losing a turn is not. Returns the classification so the
// caller can log it.
func (p *Pipeline) Ingest(turn *store.Turn) string {
	classification := Classify(turn.ToolCalls, turn.Thinking)

	p.writeEpisodic(turn, classification)
	p.extractFacts(turn)
	p.recordErrors(turn)
	p.recordRelationships(turn)
	p.writeWorking(turn)

	logging.MemoryDebug("Turn %s ingested as %s", turn.ID, classification)
	return classification
}

// RecordSuppressedInput leaves a low-importance marker when the sanitizer
// drops hostile input. The marker is maintenance-classified so the model
// never sees it; diagnostics do.
func (p *Pipeline) RecordSuppressedInput(source, threatLevel string) {
	err := p.st.InsertEpisodic(&store.EpisodicEntry{
		SessionID:      p.sessionID,
		EventType:      "input_suppressed",
		Summary:        fmt.Sprintf("suppressed %s-threat input from %s", threatLevel, source),
		Outcome:        "neutral",
		Importance:     0.2,
		Classification: ClassMaintenance,
	})
	if err != nil {
		logging.MemoryWarn("Could not record suppressed input: %v", err)
	}
}

func (p *Pipeline) writeEpisodic(turn *store.Turn, classification string) {
	entry := &store.EpisodicEntry{
		SessionID:      p.sessionID,
		EventType:      eventTypeFor(turn),
		Summary:        summarize(turn, classification),
		Detail:         detailFor(turn),
		Outcome:        outcomeFor(turn),
		Importance:     Importance(classification),
		Classification: classification,
	}
	if err := p.st.InsertEpisodic(entry); err != nil {
		logging.MemoryWarn("Episodic write failed: %v", err)
	}
}

// factKeys maps fact-bearing tools to the semantic key their result lands
// under. Values are raw tool output, truncated.
var factKeys = map[string]struct {
	key string
	max int
}{
	"check_credits":      {"financial.last_known_balance", 200},
	"check_usdc_balance": {"financial.usdc_balance", 200},
	"system_synopsis":    {"self.system_synopsis", 500},
	"discover_agents":    {"environment.known_agents", 500},
}

func (p *Pipeline) extractFacts(turn *store.Turn) {
	for _, call := range turn.ToolCalls {
		if call.Error != "" {
			continue
		}
		fk, ok := factKeys[call.Name]
		if !ok {
			continue
		}
		value := truncateRunes(call.Result, fk.max)
		category := strings.SplitN(fk.key, ".", 2)[0]
		if err := p.st.UpsertSemantic(fk.key, value, category); err != nil {
			logging.MemoryWarn("Semantic write %s failed: %v", fk.key, err)
		}
	}
}

var repeatCount = regexp.MustCompile(`\((\d+)x\)$`)

func (p *Pipeline) recordErrors(turn *store.Turn) {
	for _, call := range turn.ToolCalls {
		if call.Error == "" {
			continue
		}
		errType := NormalizeError(call.Error)
		key := "errors." + call.Name

		n := 1
		if prev, ok, err := p.st.GetSemantic(key); err == nil && ok &&
			strings.Contains(prev.Value, "fails with "+errType+" ") {
			if m := repeatCount.FindStringSubmatch(prev.Value); m != nil {
				if c, err := strconv.Atoi(m[1]); err == nil {
					n = c + 1
				}
			}
		}

		value := fmt.Sprintf("%s fails with %s (%dx)", call.Name, errType, n)
		if err := p.st.UpsertSemantic(key, value, "errors"); err != nil {
			logging.MemoryWarn("Error fact write %s failed: %v", key, err)
		}
	}
}

var inboundSender = regexp.MustCompile(`\[Message from ([^\]]+)\]`)

func (p *Pipeline) recordRelationships(turn *store.Turn) {
	for _, call := range turn.ToolCalls {
		if call.Error != "" || !communicationTools[call.Name] {
			continue
		}
		to, _ := call.Arguments["to"].(string)
		if to == "" {
			continue
		}
		if err := p.st.RecordRelationship(to, "contacted"); err != nil {
			logging.MemoryWarn("Relationship write for %s failed: %v", to, err)
		}
	}

	if turn.InputSource != "agent" || turn.Input == "" {
		return
	}
	for _, m := range inboundSender.FindAllStringSubmatch(turn.Input, -1) {
		if err := p.st.RecordRelationship(m[1], "messaged_us"); err != nil {
			logging.MemoryWarn("Relationship write for %s failed: %v", m[1], err)
		}
	}
}

func (p *Pipeline) writeWorking(turn *store.Turn) {
	for _, call := range turn.ToolCalls {
		if call.Error != "" {
			continue
		}
		switch call.Name {
		case "sleep":
			p.insertWorking("Chose to sleep: "+truncateRunes(call.Result, 160), "observation", 0.3)
		case "edit_own_file", "update_genesis_prompt":
			p.insertWorking(fmt.Sprintf("Self-modification via %s: %s",
				call.Name, truncateRunes(call.Result, 160)), "decision", 0.9)
		}
	}
}

func (p *Pipeline) insertWorking(content, entryType string, priority float64) {
	err := p.st.InsertWorking(&store.WorkingEntry{
		SessionID: p.sessionID,
		Content:   content,
		EntryType: entryType,
		Priority:  priority,
	})
	if err != nil {
		logging.MemoryWarn("Working memory write failed: %v", err)
	}
}

func eventTypeFor(turn *store.Turn) string {
	switch {
	case len(turn.ToolCalls) > 0:
		return "tool_execution"
	case turn.Input != "":
		return "exchange"
	default:
		return "reflection"
	}
}

func outcomeFor(turn *store.Turn) string {
	failed := false
	for _, c := range turn.ToolCalls {
		if c.Error != "" {
			failed = true
			break
		}
	}
	switch {
	case failed:
		return "failure"
	case len(turn.ToolCalls) > 0:
		return "success"
	default:
		return "neutral"
	}
}

func summarize(turn *store.Turn, classification string) string {
	switch classification {
	case ClassIdle:
		return "idle turn"
	case ClassError:
		for _, c := range turn.ToolCalls {
			if c.Error != "" {
				return fmt.Sprintf("%s failed with %s", c.Name, NormalizeError(c.Error))
			}
		}
	case ClassCommunication:
		for _, c := range turn.ToolCalls {
			if communicationTools[c.Name] {
				if to, _ := c.Arguments["to"].(string); to != "" {
					return "messaged " + to
				}
				return "sent a message"
			}
		}
	case ClassMaintenance:
		if len(turn.ToolCalls) == 0 {
			return "thought without acting"
		}
		return "status checks: " + strings.Join(toolNames(turn.ToolCalls), ", ")
	}
	if len(turn.ToolCalls) > 0 {
		return "ran " + strings.Join(toolNames(turn.ToolCalls), ", ")
	}
	return truncateRunes(strings.TrimSpace(turn.Thinking), 120)
}

func detailFor(turn *store.Turn) string {
	var b strings.Builder
	if th := strings.TrimSpace(turn.Thinking); th != "" {
		b.WriteString(truncateRunes(th, 240))
	}
	for _, c := range turn.ToolCalls {
		b.WriteString("\n")
		if c.Error != "" {
			fmt.Fprintf(&b, "%s -> error: %s", c.Name, truncateRunes(c.Error, 160))
		} else {
			fmt.Fprintf(&b, "%s -> %s", c.Name, truncateRunes(c.Result, 160))
		}
	}
	return strings.TrimSpace(b.String())
}

func toolNames(calls []store.ToolCall) []string {
	seen := make(map[string]bool, len(calls))
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		if !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	return names
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
