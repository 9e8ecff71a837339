// Package memory turns finished turns into durable memory: an episodic
// event log, extracted semantic facts, relationship history with other
// agents, and short-lived working notes. Everything here is best-effort;
// a memory failure must never cost the automaton a turn.
package memory

import (
	"regexp"
	"strings"

	"automa/internal/store"
	"automa/internal/tools"
)

// Turn classifications, ordered from least to most noteworthy. The read
// side filters maintenance and idle out of anything shown to the model.
const (
	ClassIdle          = "idle"
	ClassError         = "error"
	ClassCommunication = "communication"
	ClassStrategic     = "strategic"
	ClassMaintenance   = "maintenance"
	ClassProductive    = "productive"
)

// communicationTools reach other agents.
var communicationTools = map[string]bool{
	"send_message": true,
	"inbox_reply":  true,
}

// strategicTools change who the automaton is: its files, its prompt, its
// registrations, its lineage, its skills.
var strategicTools = map[string]bool{
	"edit_own_file":         true,
	"update_genesis_prompt": true,
	"register_erc8004":      true,
	"spawn_child":           true,
	"upsert_skill":          true,
}

// Classify buckets one turn by what it did. The checks run in precedence
// order: a failed send_message is an error turn, not a communication turn.
// A turn with thinking but no tool calls counts as maintenance (its calls
// are vacuously all idle).
func Classify(calls []store.ToolCall, thinking string) string {
	if len(calls) == 0 && strings.TrimSpace(thinking) == "" {
		return ClassIdle
	}
	allIdle := true
	for _, c := range calls {
		if c.Error != "" {
			return ClassError
		}
		if !tools.IsIdleOnly(c.Name) {
			allIdle = false
		}
	}
	for _, c := range calls {
		if communicationTools[c.Name] {
			return ClassCommunication
		}
	}
	for _, c := range calls {
		if strategicTools[c.Name] {
			return ClassStrategic
		}
	}
	if allIdle {
		return ClassMaintenance
	}
	return ClassProductive
}

// Importance weights how prominently a classification surfaces in recall.
func Importance(classification string) float64 {
	switch classification {
	case ClassStrategic:
		return 0.9
	case ClassError:
		return 0.8
	case ClassProductive:
		return 0.7
	case ClassCommunication:
		return 0.6
	case ClassMaintenance:
		return 0.3
	default:
		return 0.1
	}
}

// errorType pairs a normalized name with the pattern that detects it.
type errorType struct {
	name string
	re   *regexp.Regexp
}

// Checked in order; the first match wins. The names are stable so repeat
// counters keyed on them survive wording changes in the underlying error.
var errorTypes = []errorType{
	{"PATH_TRAVERSAL", regexp.MustCompile(`(?i)path\s*traversal|\.\.[\\/]`)},
	{"PERMISSION_DENIED", regexp.MustCompile(`(?i)permission denied|EACCES|access denied|operation not permitted`)},
	{"TIMEOUT", regexp.MustCompile(`(?i)timed?\s*out|deadline exceeded`)},
	{"NOT_FOUND", regexp.MustCompile(`(?i)not found|no such file|ENOENT|\b404\b`)},
	{"RATE_LIMIT", regexp.MustCompile(`(?i)rate.?limit|too many requests|\b429\b`)},
	{"ADDRESS_IN_USE", regexp.MustCompile(`(?i)address already in use|EADDRINUSE`)},
	{"CONNECTION_REFUSED", regexp.MustCompile(`(?i)connection refused|ECONNREFUSED`)},
	{"OUT_OF_MEMORY", regexp.MustCompile(`(?i)out of memory|ENOMEM|\boom\b`)},
	{"SYNTAX_ERROR", regexp.MustCompile(`(?i)syntax error|unexpected token|parse error`)},
	{"POLICY_BLOCKED", regexp.MustCompile(`(?i)\bblocked\b|forbidden pattern|protected path`)},
}

var errorPrefixJunk = regexp.MustCompile(`[^a-zA-Z0-9 _./:-]+`)

// NormalizeError collapses an error message to a stable type name, falling
// back to a sanitized prefix of the message itself.
func NormalizeError(msg string) string {
	for _, et := range errorTypes {
		if et.re.MatchString(msg) {
			return et.name
		}
	}
	clean := errorPrefixJunk.ReplaceAllString(msg, "")
	clean = strings.Join(strings.Fields(clean), " ")
	if len(clean) > 60 {
		clean = clean[:60]
	}
	if clean == "" {
		clean = "UNKNOWN"
	}
	return clean
}
