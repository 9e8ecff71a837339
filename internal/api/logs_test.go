package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automa/internal/store"
)

func (f *fixture) seedTurns(n int, state string) []store.Turn {
	f.t.Helper()
	base := time.Now().Add(-time.Duration(n+1) * time.Second)
	turns := make([]store.Turn, 0, n)
	for i := 0; i < n; i++ {
		turns = append(turns, f.insertTurn(base.Add(time.Duration(i)*time.Second), state, fmt.Sprintf("turn %d", i)))
	}
	return turns
}

func TestLogsPagination(t *testing.T) {
	f := newFixture(t)
	f.seedTurns(100, "running")

	seen := map[string]bool{}
	page := func(cursor string) logsResponse {
		path := "/api/logs?limit=40"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		resp := f.get(path)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decode[logsResponse](t, resp)
	}

	first := page("")
	assert.Equal(t, 100, first.Total)
	assert.Equal(t, 40, first.Returned)
	assert.Equal(t, 40, first.Limit)
	require.NotNil(t, first.NextCursor)
	require.NotNil(t, first.HeadCursor)

	second := page(*first.NextCursor)
	assert.Equal(t, 40, second.Returned)
	require.NotNil(t, second.NextCursor)

	third := page(*second.NextCursor)
	assert.Equal(t, 20, third.Returned)
	assert.Nil(t, third.NextCursor)

	for _, pg := range []logsResponse{first, second, third} {
		for _, turn := range pg.Logs {
			assert.False(t, seen[turn.ID], "turn %s appeared in two pages", turn.ID)
			seen[turn.ID] = true
		}
	}
	assert.Len(t, seen, 100)
}

func TestLogsNewestFirst(t *testing.T) {
	f := newFixture(t)
	turns := f.seedTurns(5, "running")

	resp := f.get("/api/logs")
	body := decode[logsResponse](t, resp)
	require.Len(t, body.Logs, 5)
	assert.Equal(t, turns[4].ID, body.Logs[0].ID)
	assert.Equal(t, turns[0].ID, body.Logs[4].ID)
}

func TestLogsInvalidCursor(t *testing.T) {
	f := newFixture(t)

	resp := f.get("/api/logs?cursor=%21%21not-a-cursor")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Padded base64 is also rejected.
	resp = f.get("/api/logs?cursor=eyJ0IjoiYSJ9==")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogsLimitClamp(t *testing.T) {
	f := newFixture(t)
	f.seedTurns(3, "running")

	cases := []struct {
		raw  string
		want int
	}{
		{"", defaultLogLimit},
		{"999", maxLogLimit},
		{"0", 1},
		{"-5", 1},
		{"abc", defaultLogLimit},
		{"7", 7},
	}
	for _, tc := range cases {
		path := "/api/logs"
		if tc.raw != "" {
			path += "?limit=" + tc.raw
		}
		body := decode[logsResponse](t, f.get(path))
		assert.Equal(t, tc.want, body.Limit, "limit=%q", tc.raw)
	}
}

func TestLogsFilters(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(-time.Minute)
	f.insertTurn(base, "running", "deploying the static site")
	f.insertTurn(base.Add(time.Second), "sleeping", "resting now")
	f.insertTurn(base.Add(2*time.Second), "running", "checking balances", store.ToolCall{
		ID: store.NewID(), Name: "check_credits", Result: "120 cents",
	})

	body := decode[logsResponse](t, f.get("/api/logs?q=static+site"))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Logs, 1)
	assert.Contains(t, body.Logs[0].Thinking, "static site")

	body = decode[logsResponse](t, f.get("/api/logs?state=sleeping"))
	assert.Equal(t, 1, body.Total)

	// Substring search reaches tool names and results.
	body = decode[logsResponse](t, f.get("/api/logs?q=check_credits"))
	assert.Equal(t, 1, body.Total)
}

// readEvent scans one SSE event, skipping keep-alive comments.
func readEvent(t *testing.T, r *bufio.Reader) (string, []byte) {
	t.Helper()
	var event string
	var data []byte
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = []byte(strings.TrimPrefix(line, "data: "))
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestLogsStream(t *testing.T) {
	f := newFixture(t)
	f.srv.pollEvery = 25 * time.Millisecond
	f.srv.keepAliveEvery = time.Hour

	// Already-persisted turns sit behind the head cursor and never stream.
	pre := f.insertTurn(time.Now().Add(-time.Minute), "running", "old news")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL+"/api/logs/stream", nil)
	require.NoError(t, err)
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	require.Equal(t, "ready", event)
	var ready struct {
		Cursor string `json:"cursor"`
		PollMs int64  `json:"pollMs"`
	}
	require.NoError(t, json.Unmarshal(data, &ready))
	assert.Equal(t, int64(25), ready.PollMs)
	cur, err := store.DecodeCursor(ready.Cursor)
	require.NoError(t, err)
	assert.Equal(t, pre.ID, cur.ID)

	base := time.Now()
	first := f.insertTurn(base, "running", "fresh work")
	second := f.insertTurn(base.Add(time.Millisecond), "running", "more work")

	// A poll tick may land between the two inserts, so the pair can arrive
	// as one batch or two. Order and completeness are what matter.
	var batch struct {
		Cursor string       `json:"cursor"`
		Count  int          `json:"count"`
		Logs   []store.Turn `json:"logs"`
	}
	var got []store.Turn
	for len(got) < 2 {
		event, data = readEvent(t, reader)
		require.Equal(t, "logs", event)
		require.NoError(t, json.Unmarshal(data, &batch))
		require.Equal(t, len(batch.Logs), batch.Count)
		got = append(got, batch.Logs...)
	}
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	for _, turn := range got {
		assert.NotEqual(t, pre.ID, turn.ID)
	}

	// The cursor advanced; a third turn streams alone.
	third := f.insertTurn(base.Add(2*time.Millisecond), "running", "done")
	event, data = readEvent(t, reader)
	require.Equal(t, "logs", event)
	require.NoError(t, json.Unmarshal(data, &batch))
	assert.Equal(t, 1, batch.Count)
	assert.Equal(t, third.ID, batch.Logs[0].ID)
}

func TestLogsStreamKeepAlive(t *testing.T) {
	f := newFixture(t)
	f.srv.pollEvery = time.Hour
	f.srv.keepAliveEvery = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL+"/api/logs/stream", nil)
	require.NoError(t, err)
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	sawKeepAlive := false
	for !sawKeepAlive {
		line, err := reader.ReadString('\n')
		require.NoError(t, err, "expected a keep-alive before the deadline")
		if strings.HasPrefix(line, ": keep-alive") {
			sawKeepAlive = true
		}
	}
}
