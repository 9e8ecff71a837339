package api

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automa/internal/store"
)

func (f *fixture) getBody(path string) (string, *http.Response) {
	f.t.Helper()
	resp := f.get(path)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	return string(body), resp
}

func TestDashboardRenders(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(-time.Minute)
	f.insertTurn(base, "running", "**bold** move today\n\n<script>alert(1)</script>", store.ToolCall{
		ID: store.NewID(), Name: "exec", Result: "built the site",
	})
	f.insertTurn(base.Add(time.Second), "running", "second thought", store.ToolCall{
		ID: store.NewID(), Name: "web_fetch", Error: "connection refused",
	})

	body, resp := f.getBody("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	assert.Contains(t, body, "automa-7")
	assert.Contains(t, body, "0x1234abcd")
	assert.Contains(t, body, "<strong>bold</strong>", "thinking markdown is rendered")
	assert.NotContains(t, body, "<script>alert", "raw HTML in thinking is stripped")
	assert.Contains(t, body, "exec")
	assert.Contains(t, body, "connection refused")
}

func TestDashboardShowsDistress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.st.InsertDistressSignal(&store.DistressSignal{
		Reason: "credits exhausted", Tier: "dead", CreditsCents: 0,
	}))

	body, resp := f.getBody("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "credits exhausted")
}

func TestDashboardEmptyStore(t *testing.T) {
	f := newFixture(t)

	body, resp := f.getBody("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "automa-7")
	assert.Contains(t, body, "/api/logs/stream")
}

func TestRenderMarkdownSanitizes(t *testing.T) {
	out := string(renderMarkdown("a [link](javascript:alert(1)) and `code`"))
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, "<code>code</code>")

	out = string(renderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |"))
	assert.Contains(t, out, "<table>", "tables render through the GFM extension")
}
