package tools

import (
	"context"
	"fmt"
	"strings"
)

// ReviewMemoryTool returns a tool that surfaces recent episodic memory and
// working notes. Maintenance and idle chatter is filtered out on read.
func ReviewMemoryTool(d *Deps) *Tool {
	return &Tool{
		Name:        "review_memory",
		Description: "Review your recent significant memories and current working notes.",
		Category:    CategoryMemory,
		Risk:        RiskSafe,
		Priority:    80,
		Execute:     executeReviewMemory(d),
		Schema: ToolSchema{
			Properties: map[string]Property{
				"limit": {
					Type:        "integer",
					Description: "How many episodic entries to include (default 20)",
					Default:     20,
				},
			},
		},
	}
}

func executeReviewMemory(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		limit := clampInt(intArg(args, "limit", 20), 1, 100)

		episodic, err := d.Store.GetEpisodic("", limit, false)
		if err != nil {
			return "", err
		}
		working, err := d.Store.GetWorking(d.SessionID, 10)
		if err != nil {
			return "", err
		}

		var b strings.Builder
		b.WriteString("## Recent events\n")
		if len(episodic) == 0 {
			b.WriteString("(nothing significant recorded yet)\n")
		}
		for _, e := range episodic {
			fmt.Fprintf(&b, "- [%s] %s (%s, importance %.1f)\n", e.Classification, e.Summary, e.Outcome, e.Importance)
		}

		b.WriteString("\n## Working notes\n")
		if len(working) == 0 {
			b.WriteString("(none this session)\n")
		}
		for _, w := range working {
			fmt.Fprintf(&b, "- [%s] %s\n", w.EntryType, w.Content)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

// RecallFactsTool returns a tool that reads the semantic fact store.
func RecallFactsTool(d *Deps) *Tool {
	return &Tool{
		Name:        "recall_facts",
		Description: "Recall long-lived facts you have learned, by exact key or free-text query.",
		Category:    CategoryMemory,
		Risk:        RiskSafe,
		Execute:     executeRecallFacts(d),
		Schema: ToolSchema{
			Properties: map[string]Property{
				"key": {
					Type:        "string",
					Description: "Exact fact key, e.g. financial.last_known_balance",
				},
				"query": {
					Type:        "string",
					Description: "Free-text search across keys and values",
				},
			},
		},
	}
}

func executeRecallFacts(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		if key := stringArg(args, "key"); key != "" {
			entry, ok, err := d.Store.GetSemantic(key)
			if err != nil {
				return "", err
			}
			if !ok {
				return fmt.Sprintf("no fact stored under %s", key), nil
			}
			return fmt.Sprintf("%s = %s (%s, updated %s)", entry.Key, entry.Value, entry.Category, entry.UpdatedAt), nil
		}

		query := stringArg(args, "query")
		entries, err := d.Store.SearchSemantic(query, 20)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "no matching facts", nil
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s = %s (%s)\n", e.Key, e.Value, e.Category)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

// RecallProcedureTool returns a tool that reads stored skills.
func RecallProcedureTool(d *Deps) *Tool {
	return &Tool{
		Name:        "recall_procedure",
		Description: "Recall a stored skill or procedure by name. Without a name, lists what you know how to do.",
		Category:    CategoryMemory,
		Risk:        RiskSafe,
		Execute:     executeRecallProcedure(d),
		Schema: ToolSchema{
			Properties: map[string]Property{
				"name": {
					Type:        "string",
					Description: "Skill name or fragment of one",
				},
			},
		},
	}
}

func executeRecallProcedure(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		skills, err := d.Store.ListSkills()
		if err != nil {
			return "", err
		}
		if len(skills) == 0 {
			return "no skills stored yet", nil
		}

		name := strings.ToLower(stringArg(args, "name"))
		if name == "" {
			var b strings.Builder
			for _, sk := range skills {
				fmt.Fprintf(&b, "%s (v%d)\n", sk.Name, sk.Version)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		}

		for _, sk := range skills {
			if strings.Contains(strings.ToLower(sk.Name), name) {
				return fmt.Sprintf("# %s (v%d)\n\n%s", sk.Name, sk.Version, sk.Content), nil
			}
		}
		return fmt.Sprintf("no skill matching %q", name), nil
	}
}

// UpsertSkillTool returns a tool that saves or revises a skill document.
func UpsertSkillTool(d *Deps) *Tool {
	return &Tool{
		Name:        "upsert_skill",
		Description: "Save or revise a named skill: a procedure you want to remember how to perform.",
		Category:    CategoryMemory,
		Risk:        RiskCaution,
		Execute:     executeUpsertSkill(d),
		Schema: ToolSchema{
			Required: []string{"name", "content"},
			Properties: map[string]Property{
				"name": {
					Type:        "string",
					Description: "Skill name",
				},
				"content": {
					Type:        "string",
					Description: "Markdown body of the skill",
				},
			},
		},
	}
}

func executeUpsertSkill(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		name, err := requiredString(args, "name")
		if err != nil {
			return "", err
		}
		content, err := requiredString(args, "content")
		if err != nil {
			return "", err
		}
		sk, err := d.Store.UpsertSkill(name, content)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("skill %s saved at v%d", sk.Name, sk.Version), nil
	}
}

// ListSkillsTool returns a tool that lists stored skills.
func ListSkillsTool(d *Deps) *Tool {
	return &Tool{
		Name:        "list_skills",
		Description: "List the skills you have stored.",
		Category:    CategoryMemory,
		Risk:        RiskSafe,
		Execute:     executeListSkills(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeListSkills(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		skills, err := d.Store.ListSkills()
		if err != nil {
			return "", err
		}
		if len(skills) == 0 {
			return "no skills stored", nil
		}
		var b strings.Builder
		for _, sk := range skills {
			fmt.Fprintf(&b, "%s (v%d, updated %s)\n", sk.Name, sk.Version, sk.UpdatedAt)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}
