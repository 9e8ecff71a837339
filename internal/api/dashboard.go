package api

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"automa/internal/chain"
	"automa/internal/logging"
	"automa/internal/store"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

const dashboardTurnCount = 20
const dashboardThinkingMax = 1200

var (
	markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
	sanitizePolicy   = bluemonday.UGCPolicy()
)

type dashboardData struct {
	Name      string
	Address   string
	State     string
	Tier      string
	Credits   string
	TurnCount int
	Distress  *store.DistressSignal
	Turns     []dashboardTurn
}

type dashboardTurn struct {
	ID        string
	Timestamp string
	State     string
	Source    string
	Thinking  template.HTML
	Tools     []dashboardTool
}

type dashboardTool struct {
	Name   string
	Result string
	Failed bool
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	turns, err := s.d.Store.GetRecentTurns(dashboardTurnCount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	distress, err := s.d.Store.LatestDistressSignal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	turnCount, err := s.d.Store.CountTurns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	bal := chain.Cached(s.d.Store)
	data := dashboardData{
		Name:      s.d.Identity.Name,
		Address:   s.d.Identity.Address,
		State:     s.d.Life.State(),
		Tier:      string(s.d.Monitor.CurrentTier()),
		Credits:   fmt.Sprintf("$%.2f (%s)", float64(bal.CreditsCents)/100, bal.Source),
		TurnCount: turnCount,
		Distress:  distress,
	}

	// Feed shows newest first.
	for i := len(turns) - 1; i >= 0; i-- {
		t := &turns[i]
		dt := dashboardTurn{
			ID:        t.ID,
			Timestamp: t.Timestamp,
			State:     t.State,
			Source:    t.InputSource,
			Thinking:  renderMarkdown(clip(t.Thinking, dashboardThinkingMax)),
		}
		for j := range t.ToolCalls {
			c := &t.ToolCalls[j]
			tool := dashboardTool{Name: c.Name, Result: clip(c.Result, 160)}
			if c.Error != "" {
				tool.Result = clip(c.Error, 160)
				tool.Failed = true
			}
			dt.Tools = append(dt.Tools, tool)
		}
		data.Turns = append(data.Turns, dt)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		logging.APIError("Dashboard render failed: %v", err)
	}
}

// renderMarkdown converts agent thinking to HTML and strips anything the
// UGC policy does not allow. Thinking is model output and gets no more
// trust here than it does in the loop.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(sanitizePolicy.SanitizeBytes(buf.Bytes()))
}
