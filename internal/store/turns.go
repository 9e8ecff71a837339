package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"automa/internal/logging"
)

// Sentinel errors callers branch on.
var (
	ErrDuplicateTurn     = fmt.Errorf("turn id already exists")
	ErrDuplicateToolCall = fmt.Errorf("tool call id already exists")
	ErrUnknownTurn       = fmt.Errorf("unknown turn id")
)

// TokenUsage is the inference token accounting for one turn.
type TokenUsage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// ToolCall is one tool invocation inside a turn. An empty Error means the
// call did not fail; a guard block is a normal result, not an error.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Result     string         `json:"result"`
	DurationMs int64          `json:"durationMs"`
	Error      string         `json:"error,omitempty"`
}

// Turn is one Think→Act→Observe→Persist cycle.
type Turn struct {
	ID          string     `json:"id"`
	Timestamp   string     `json:"timestamp"`
	State       string     `json:"state"`
	Input       string     `json:"input,omitempty"`
	InputSource string     `json:"inputSource,omitempty"`
	Thinking    string     `json:"thinking"`
	ToolCalls   []ToolCall `json:"toolCalls"`
	Usage       TokenUsage `json:"tokenUsage"`
	CostCents   int64      `json:"costCents"`
}

// InsertTurn appends a turn and its tool calls in one transaction. A turn
// row without its tool-call rows is never observable.
func (s *Store) InsertTurn(turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.ID == "" {
		return fmt.Errorf("turn id is required")
	}
	if turn.Timestamp == "" {
		turn.Timestamp = FormatTime(time.Now())
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM turns WHERE id = ?", turn.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check turn id: %w", err)
	}
	if exists > 0 {
		return ErrDuplicateTurn
	}

	if _, err := tx.Exec(`INSERT INTO turns
		(id, timestamp, state, input, input_source, thinking, prompt_tokens, completion_tokens, total_tokens, cost_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.Timestamp, turn.State,
		nullable(turn.Input), nullable(turn.InputSource), turn.Thinking,
		turn.Usage.Prompt, turn.Usage.Completion, turn.Usage.Total, turn.CostCents,
	); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	for i := range turn.ToolCalls {
		if err := insertToolCallTx(tx, turn.ID, i, &turn.ToolCalls[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}

	logging.StoreDebug("Persisted turn %s (%d tool calls)", turn.ID, len(turn.ToolCalls))
	return nil
}

// InsertToolCall appends a single tool call to an existing turn.
func (s *Store) InsertToolCall(turnID string, call *ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM turns WHERE id = ?", turnID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check turn id: %w", err)
	}
	if exists == 0 {
		return ErrUnknownTurn
	}

	var seq int
	if err := tx.QueryRow("SELECT COALESCE(MAX(seq)+1, 0) FROM tool_calls WHERE turn_id = ?", turnID).Scan(&seq); err != nil {
		return fmt.Errorf("failed to compute tool call seq: %w", err)
	}
	if err := insertToolCallTx(tx, turnID, seq, call); err != nil {
		return err
	}
	return tx.Commit()
}

func insertToolCallTx(tx *sql.Tx, turnID string, seq int, call *ToolCall) error {
	if call.ID == "" {
		call.ID = NewID()
	}
	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM tool_calls WHERE id = ?", call.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check tool call id: %w", err)
	}
	if exists > 0 {
		return ErrDuplicateToolCall
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}

	if _, err := tx.Exec(`INSERT INTO tool_calls
		(id, turn_id, seq, name, arguments, result, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, turnID, seq, call.Name, string(argsJSON), call.Result, call.DurationMs, nullable(call.Error),
	); err != nil {
		return fmt.Errorf("failed to insert tool call: %w", err)
	}
	return nil
}

// GetRecentTurns returns the newest n turns in chronological order, oldest
// first, with tool calls attached.
func (s *Store) GetRecentTurns(n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT id, timestamp, state, input, input_source, thinking,
		prompt_tokens, completion_tokens, total_tokens, cost_cents
		FROM turns ORDER BY timestamp DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from SQL; flip to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if err := s.attachToolCalls(turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// CountTurns returns the total number of persisted turns.
func (s *Store) CountTurns() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM turns").Scan(&n)
	return n, err
}

// TotalCostCents sums inference spend across turns at or after since.
// A zero since covers the whole log.
func (s *Store) TotalCostCents(since time.Time) (int64, error) {
	var total sql.NullInt64
	var err error
	if since.IsZero() {
		err = s.db.QueryRow("SELECT SUM(cost_cents) FROM turns").Scan(&total)
	} else {
		err = s.db.QueryRow("SELECT SUM(cost_cents) FROM turns WHERE timestamp >= ?", FormatTime(since)).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("summing turn cost: %w", err)
	}
	return total.Int64, nil
}

// GetLastTurn returns the newest turn, or nil when the log is empty.
func (s *Store) GetLastTurn() (*Turn, error) {
	turns, err := s.GetRecentTurns(1)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, nil
	}
	return &turns[0], nil
}

// TurnQuery filters the turn log. Zero values mean "no constraint".
type TurnQuery struct {
	From   string  // inclusive lower bound, ISO timestamp
	To     string  // exclusive upper bound, ISO timestamp
	Q      string  // case-insensitive substring across thinking, input, tool names+results
	State  string  // exact state match
	Limit  int     // page size
	Cursor *Cursor // rows strictly older than this position
}

// TurnPage is one page of query results, newest first.
type TurnPage struct {
	Turns        []Turn
	HasMore      bool
	TotalMatched int
}

// QueryTurns returns a page of turns matching q, newest first, paginated by
// the (timestamp, id) total order.
func (s *Store) QueryTurns(q TurnQuery) (*TurnPage, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	where, args := buildTurnFilter(q)

	countSQL := "SELECT COUNT(*) FROM turns t" + where
	var total int
	if err := s.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count turns: %w", err)
	}

	pageArgs := args
	pageWhere := where
	if q.Cursor != nil {
		if pageWhere == "" {
			pageWhere = " WHERE "
		} else {
			pageWhere += " AND "
		}
		pageWhere += "(t.timestamp < ? OR (t.timestamp = ? AND t.id < ?))"
		pageArgs = append(append([]any{}, args...), q.Cursor.Timestamp, q.Cursor.Timestamp, q.Cursor.ID)
	}

	querySQL := `SELECT id, timestamp, state, input, input_source, thinking,
		prompt_tokens, completion_tokens, total_tokens, cost_cents
		FROM turns t` + pageWhere + ` ORDER BY t.timestamp DESC, t.id DESC LIMIT ?`
	pageArgs = append(pageArgs, q.Limit+1)

	rows, err := s.db.Query(querySQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(turns) > q.Limit
	if hasMore {
		turns = turns[:q.Limit]
	}
	if err := s.attachToolCalls(turns); err != nil {
		return nil, err
	}

	return &TurnPage{Turns: turns, HasMore: hasMore, TotalMatched: total}, nil
}

// TurnsAfter returns turns strictly newer than the cursor in chronological
// order, up to limit. Used by the SSE stream.
func (s *Store) TurnsAfter(c Cursor, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, timestamp, state, input, input_source, thinking,
		prompt_tokens, completion_tokens, total_tokens, cost_cents
		FROM turns WHERE timestamp > ? OR (timestamp = ? AND id > ?)
		ORDER BY timestamp ASC, id ASC LIMIT ?`,
		c.Timestamp, c.Timestamp, c.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns after cursor: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachToolCalls(turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// HeadCursor returns the position of the newest turn, or the zero cursor on
// an empty log.
func (s *Store) HeadCursor() (Cursor, error) {
	var c Cursor
	err := s.db.QueryRow("SELECT timestamp, id FROM turns ORDER BY timestamp DESC, id DESC LIMIT 1").
		Scan(&c.Timestamp, &c.ID)
	if err == sql.ErrNoRows {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("failed to read head cursor: %w", err)
	}
	return c, nil
}

func buildTurnFilter(q TurnQuery) (string, []any) {
	var conds []string
	var args []any

	if q.From != "" {
		conds = append(conds, "t.timestamp >= ?")
		args = append(args, normalizeBound(q.From))
	}
	if q.To != "" {
		conds = append(conds, "t.timestamp < ?")
		args = append(args, normalizeBound(q.To))
	}
	if q.State != "" {
		conds = append(conds, "t.state = ?")
		args = append(args, q.State)
	}
	if q.Q != "" {
		pat := "%" + strings.ToLower(q.Q) + "%"
		conds = append(conds, `(lower(t.thinking) LIKE ? OR lower(COALESCE(t.input, '')) LIKE ?
			OR EXISTS (SELECT 1 FROM tool_calls c WHERE c.turn_id = t.id
				AND (lower(c.name) LIKE ? OR lower(c.result) LIKE ?)))`)
		args = append(args, pat, pat, pat, pat)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// normalizeBound re-renders a caller-supplied ISO timestamp in the canonical
// layout so string comparison stays chronological. Unparseable input is used
// verbatim.
func normalizeBound(s string) string {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FormatTime(t)
		}
	}
	return s
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	defer rows.Close()
	var turns []Turn
	for rows.Next() {
		var t Turn
		var input, source sql.NullString
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.State, &input, &source, &t.Thinking,
			&t.Usage.Prompt, &t.Usage.Completion, &t.Usage.Total, &t.CostCents); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Input = input.String
		t.InputSource = source.String
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// attachToolCalls loads tool calls for the given turns in one query.
func (s *Store) attachToolCalls(turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}
	byID := make(map[string]*Turn, len(turns))
	placeholders := make([]string, len(turns))
	args := make([]any, len(turns))
	for i := range turns {
		turns[i].ToolCalls = []ToolCall{}
		byID[turns[i].ID] = &turns[i]
		placeholders[i] = "?"
		args[i] = turns[i].ID
	}

	rows, err := s.db.Query(`SELECT id, turn_id, name, arguments, result, duration_ms, error
		FROM tool_calls WHERE turn_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY turn_id, seq`, args...)
	if err != nil {
		return fmt.Errorf("failed to load tool calls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var call ToolCall
		var turnID, argsJSON string
		var callErr sql.NullString
		if err := rows.Scan(&call.ID, &turnID, &call.Name, &argsJSON, &call.Result, &call.DurationMs, &callErr); err != nil {
			return fmt.Errorf("failed to scan tool call: %w", err)
		}
		call.Error = callErr.String
		if err := json.Unmarshal([]byte(argsJSON), &call.Arguments); err != nil {
			call.Arguments = map[string]any{}
		}
		if t, ok := byID[turnID]; ok {
			t.ToolCalls = append(t.ToolCalls, call)
		}
	}
	return rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
