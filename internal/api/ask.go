package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"automa/internal/logging"
	"automa/internal/perception"
	"automa/internal/store"
)

const (
	askDefaultLimit  = 120
	askMinLimit      = 10
	askMaxLimit      = 300
	askTranscriptMax = 45000
	askSourceLimit   = 8
	askMaxTokens     = 2048
)

const askSystemPrompt = `You are the operations assistant for a sovereign automaton. ` +
	`Answer the operator's question using only the turn transcript provided; do not invent events. ` +
	`Cite turn ids when you reference specific activity, and say plainly when the transcript ` +
	`does not contain the answer. Respond in Markdown with exactly these sections: ` +
	`"## Summary", "## Timeline", "## Key Evidence", "## Unknowns".`

type askRequest struct {
	Question string `json:"question"`
	Q        string `json:"q,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	State    string `json:"state,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

type askResponse struct {
	Answer    string   `json:"answer"`
	ModelUsed string   `json:"modelUsed"`
	Sources   []string `json:"sources"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question is required")
		return
	}
	if s.d.Inference == nil {
		writeError(w, http.StatusServiceUnavailable, "inference_unavailable", "no inference client configured")
		return
	}

	page, err := s.d.Store.QueryTurns(store.TurnQuery{
		From:  req.From,
		To:    req.To,
		Q:     req.Q,
		State: req.State,
		Limit: clampAskLimit(req.Limit),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	// QueryTurns is newest-first; the model reads chronologically.
	turns := page.Turns
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	transcript, included := buildTranscript(turns, askTranscriptMax)

	ctx, cancel := context.WithTimeout(r.Context(), s.d.Config.GetInferenceTimeout())
	defer cancel()

	resp, err := s.d.Inference.Complete(ctx, &perception.Request{
		System: askSystemPrompt,
		Messages: []perception.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Transcript of recent turns:\n%s\n\nQuestion: %s", transcript, req.Question),
		}},
		MaxTokens: askMaxTokens,
	})
	if err != nil {
		logging.APIWarn("Ask inference failed: %v", err)
		writeError(w, http.StatusBadGateway, "inference_failed", err.Error())
		return
	}

	model := resp.Model
	if model == "" {
		model = s.d.Inference.ActiveModel()
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:    resp.Thinking,
		ModelUsed: model,
		Sources:   sourceIDs(included),
	})
}

// clampAskLimit resolves the optional limit into [askMinLimit, askMaxLimit].
func clampAskLimit(limit *int) int {
	n := askDefaultLimit
	if limit != nil {
		n = *limit
	}
	if n < askMinLimit {
		return askMinLimit
	}
	if n > askMaxLimit {
		return askMaxLimit
	}
	return n
}

// buildTranscript formats chronological turns into a compact transcript no
// longer than maxChars. When the full set does not fit, the oldest entries
// fall off first. Returns the transcript and the turns that made it in.
func buildTranscript(turns []store.Turn, maxChars int) (string, []store.Turn) {
	if len(turns) == 0 {
		return "(no recorded turns match the filters)", nil
	}

	entries := make([]string, len(turns))
	for i := range turns {
		entries[i] = formatTurnEntry(&turns[i])
	}

	// Walk backward from the newest entry until the budget runs out.
	total := 0
	start := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		n := len(entries[i]) + 2
		if total+n > maxChars && start < len(entries) {
			break
		}
		total += n
		start = i
	}

	return strings.Join(entries[start:], "\n\n"), turns[start:]
}

func formatTurnEntry(t *store.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] turn %s state=%s", t.Timestamp, t.ID, t.State)
	if t.Input != "" {
		fmt.Fprintf(&b, "\n  input (%s): %s", t.InputSource, clip(t.Input, 300))
	}
	if t.Thinking != "" {
		fmt.Fprintf(&b, "\n  thinking: %s", clip(t.Thinking, 400))
	}
	for i := range t.ToolCalls {
		c := &t.ToolCalls[i]
		if c.Error != "" {
			fmt.Fprintf(&b, "\n  tool %s error: %s", c.Name, clip(c.Error, 200))
		} else {
			fmt.Fprintf(&b, "\n  tool %s: %s", c.Name, clip(c.Result, 200))
		}
	}
	return b.String()
}

// sourceIDs returns the ids of the newest turns in the transcript, newest
// first, capped at askSourceLimit.
func sourceIDs(turns []store.Turn) []string {
	ids := []string{}
	for i := len(turns) - 1; i >= 0 && len(ids) < askSourceLimit; i-- {
		ids = append(ids, turns[i].ID)
	}
	return ids
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
