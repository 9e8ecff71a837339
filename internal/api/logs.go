package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"automa/internal/logging"
	"automa/internal/store"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200

	streamPoll      = 2 * time.Second
	streamKeepAlive = 15 * time.Second
	streamBatch     = 200
)

type logsResponse struct {
	Total      int          `json:"total"`
	Returned   int          `json:"returned"`
	Limit      int          `json:"limit"`
	NextCursor *string      `json:"nextCursor"`
	HeadCursor *string      `json:"headCursor"`
	Logs       []store.Turn `json:"logs"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit := parseLimit(params.Get("limit"))

	query := store.TurnQuery{
		From:  params.Get("from"),
		To:    params.Get("to"),
		Q:     params.Get("q"),
		State: params.Get("state"),
		Limit: limit,
	}
	if enc := params.Get("cursor"); enc != "" {
		c, err := store.DecodeCursor(enc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cursor", "invalid cursor")
			return
		}
		query.Cursor = c
	}

	page, err := s.d.Store.QueryTurns(query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	head, err := s.d.Store.HeadCursor()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	resp := logsResponse{
		Total:    page.TotalMatched,
		Returned: len(page.Turns),
		Limit:    limit,
		Logs:     page.Turns,
	}
	if resp.Logs == nil {
		resp.Logs = []store.Turn{}
	}
	if page.HasMore && len(page.Turns) > 0 {
		last := page.Turns[len(page.Turns)-1]
		enc := store.Cursor{Timestamp: last.Timestamp, ID: last.ID}.Encode()
		resp.NextCursor = &enc
	}
	if !head.IsZero() {
		enc := head.Encode()
		resp.HeadCursor = &enc
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseLimit clamps the page size to [1, maxLogLimit]. Absent or garbage
// input falls back to the default rather than erroring.
func parseLimit(raw string) int {
	if raw == "" {
		return defaultLogLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultLogLimit
	}
	if n < 1 {
		return 1
	}
	if n > maxLogLimit {
		return maxLogLimit
	}
	return n
}

// handleLogsStream tails the turn log over Server-Sent Events. The client
// gets a ready event carrying the head cursor, then a logs event per poll
// that found new turns, plus keep-alive comments in between.
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "sse_unsupported", "streaming unsupported")
		return
	}

	cursor, err := s.d.Store.HeadCursor()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	emit("ready", map[string]any{
		"cursor": cursor.Encode(),
		"pollMs": s.pollEvery.Milliseconds(),
	})

	poll := time.NewTicker(s.pollEvery)
	defer poll.Stop()
	keepAlive := time.NewTicker(s.keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-poll.C:
			turns, err := s.d.Store.TurnsAfter(cursor, streamBatch)
			if err != nil {
				logging.APIWarn("Stream poll failed: %v", err)
				continue
			}
			if len(turns) == 0 {
				continue
			}
			last := turns[len(turns)-1]
			cursor = store.Cursor{Timestamp: last.Timestamp, ID: last.ID}
			emit("logs", map[string]any{
				"cursor": cursor.Encode(),
				"count":  len(turns),
				"logs":   turns,
			})
		}
	}
}
