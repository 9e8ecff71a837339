// Package tools defines the static tool surface the agent loop exposes to
// the model: every tool the automaton can call, its JSON schema, its guard
// policy, and its risk classification.
//
// The registry is assembled once at boot and never mutated afterwards. The
// loop resolves the model's tool calls against it:
//
//	inference → ToolCallRequest → Registry.Get() → guard.Check() → Tool.Execute()
package tools

import (
	"context"
	"fmt"

	"automa/internal/guard"
)

// Category groups tools for the system prompt and for synopsis reporting.
type Category string

const (
	// CategorySurvival covers credit, balance, and spend inspection.
	CategorySurvival Category = "survival"

	// CategorySandbox covers remote execution and sandbox file operations.
	CategorySandbox Category = "sandbox"

	// CategoryFilesystem covers the automaton's own home directory.
	CategoryFilesystem Category = "filesystem"

	// CategoryCommunication covers agent-to-agent messaging and discovery.
	CategoryCommunication Category = "communication"

	// CategoryIdentity covers registration, genesis, and offspring.
	CategoryIdentity Category = "identity"

	// CategoryMemory covers episodic, semantic, and skill recall.
	CategoryMemory Category = "memory"

	// CategorySystem covers introspection, web retrieval, and sleep.
	CategorySystem Category = "system"
)

// RiskLevel is the coarse danger classification surfaced in the system
// prompt so the model can weigh a call before making it.
type RiskLevel string

const (
	RiskSafe      RiskLevel = "safe"
	RiskCaution   RiskLevel = "caution"
	RiskDangerous RiskLevel = "dangerous"
)

// Property describes a single parameter for the tool's JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// PropertyMap renders the schema properties as plain JSON-schema maps, the
// shape every inference adapter wants.
func (s ToolSchema) PropertyMap() map[string]any {
	out := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		m := map[string]any{"type": p.Type}
		if p.Description != "" {
			m["description"] = p.Description
		}
		if p.Default != nil {
			m["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			m["enum"] = p.Enum
		}
		if p.Items != nil {
			m["items"] = map[string]any{"type": p.Items.Type}
		}
		out[name] = m
	}
	return out
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one entry in the automaton's capability surface.
type Tool struct {
	// Name is the unique identifier the model calls the tool by.
	Name string

	// Description explains what the tool does, for the model.
	Description string

	// Category classifies the tool for prompt grouping.
	Category Category

	// Risk is the danger classification shown in the system prompt.
	Risk RiskLevel

	// Guard names which guard checks apply before execution. The loop
	// runs guard.Check with this policy; executors never re-check.
	Guard guard.Policy

	// External marks tools whose results carry text authored by outside
	// parties. The loop sanitizes these results before they reach the
	// prompt.
	External bool

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority orders tools within a category (default 50, higher first).
	Priority int
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}

// idleOnly names the read-only inspection tools. A turn whose calls all
// land in this set did not do meaningful work; the context assembler and
// the memory classifier both key off it.
var idleOnly = map[string]bool{
	"check_credits":            true,
	"check_usdc_balance":       true,
	"system_synopsis":          true,
	"review_memory":            true,
	"list_children":            true,
	"check_child_status":       true,
	"list_sandboxes":           true,
	"list_models":              true,
	"list_skills":              true,
	"git_status":               true,
	"git_log":                  true,
	"check_reputation":         true,
	"discover_agents":          true,
	"recall_facts":             true,
	"recall_procedure":         true,
	"heartbeat_ping":           true,
	"check_inference_spending": true,
}

// externalSource names the tools whose results embed text written by
// someone other than the automaton. Inbox messages join this set on the
// input side.
var externalSource = map[string]bool{
	"web_fetch":        true,
	"discover_agents":  true,
	"check_reputation": true,
}

// IsIdleOnly reports whether name is a read-only inspection tool.
func IsIdleOnly(name string) bool { return idleOnly[name] }

// IsExternalSource reports whether name returns outside-authored text.
func IsExternalSource(name string) bool { return externalSource[name] }

// IdleOnlyNames returns the idle-only tool set as a fresh map.
func IdleOnlyNames() map[string]bool {
	out := make(map[string]bool, len(idleOnly))
	for k := range idleOnly {
		out[k] = true
	}
	return out
}

// Argument coercion. Tool arguments arrive as decoded JSON, so numbers are
// float64 and missing keys are simply absent.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func requiredString(args map[string]any, key string) (string, error) {
	s := stringArg(args, key)
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	return s, nil
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return fallback
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
