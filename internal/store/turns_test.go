package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTurn(ts time.Time, state string, calls ...ToolCall) *Turn {
	return &Turn{
		ID:        NewID(),
		Timestamp: FormatTime(ts),
		State:     state,
		Thinking:  "thinking at " + FormatTime(ts),
		ToolCalls: calls,
	}
}

func TestInsertTurnAndReadBack(t *testing.T) {
	s := newTestStore(t)

	turn := makeTurn(time.Now(), "running",
		ToolCall{Name: "exec", Arguments: map[string]any{"command": "echo hello"}, Result: "hello", DurationMs: 12},
		ToolCall{Name: "check_credits", Result: "2500", Error: "timeout"},
	)
	turn.Input = "do the thing"
	turn.InputSource = "creator"
	turn.Usage = TokenUsage{Prompt: 100, Completion: 40, Total: 140}
	turn.CostCents = 3

	require.NoError(t, s.InsertTurn(turn))

	got, err := s.GetRecentTurns(5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, turn.ID, got[0].ID)
	assert.Equal(t, "do the thing", got[0].Input)
	assert.Equal(t, "creator", got[0].InputSource)
	assert.Equal(t, int64(140), got[0].Usage.Total)
	require.Len(t, got[0].ToolCalls, 2)
	assert.Equal(t, "exec", got[0].ToolCalls[0].Name)
	assert.Equal(t, "echo hello", got[0].ToolCalls[0].Arguments["command"])
	assert.Empty(t, got[0].ToolCalls[0].Error)
	assert.Equal(t, "timeout", got[0].ToolCalls[1].Error)
}

func TestInsertTurnDuplicateID(t *testing.T) {
	s := newTestStore(t)

	turn := makeTurn(time.Now(), "running")
	require.NoError(t, s.InsertTurn(turn))

	dup := makeTurn(time.Now(), "running")
	dup.ID = turn.ID
	err := s.InsertTurn(dup)
	assert.ErrorIs(t, err, ErrDuplicateTurn)

	n, err := s.CountTurns()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertTurnAtomicity(t *testing.T) {
	s := newTestStore(t)

	// Second tool call reuses the first call's id; the whole turn must roll back.
	bad := makeTurn(time.Now(), "running",
		ToolCall{ID: "call-1", Name: "exec", Result: "ok"},
		ToolCall{ID: "call-1", Name: "exec", Result: "again"},
	)
	err := s.InsertTurn(bad)
	require.ErrorIs(t, err, ErrDuplicateToolCall)

	n, err := s.CountTurns()
	require.NoError(t, err)
	assert.Zero(t, n, "partially applied turn must not be observable")

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats["tool_calls"])
}

func TestInsertToolCallUnknownTurn(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertToolCall("no-such-turn", &ToolCall{Name: "exec"})
	assert.ErrorIs(t, err, ErrUnknownTurn)
}

func TestGetRecentTurnsChronological(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertTurn(makeTurn(base.Add(time.Duration(i)*time.Minute), "running")))
	}

	got, err := s.GetRecentTurns(3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest 3, oldest first.
	assert.Equal(t, FormatTime(base.Add(2*time.Minute)), got[0].Timestamp)
	assert.Equal(t, FormatTime(base.Add(4*time.Minute)), got[2].Timestamp)
	assert.True(t, got[0].Timestamp < got[1].Timestamp && got[1].Timestamp < got[2].Timestamp)
}

func TestMonotoneTurnOrder(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.InsertTurn(makeTurn(time.Now(), "running")))
	}

	got, err := s.GetRecentTurns(50)
	require.NoError(t, err)
	require.Len(t, got, 50)
	for i := 1; i < len(got); i++ {
		a, b := got[i-1], got[i]
		if !(b.Timestamp > a.Timestamp || (b.Timestamp == a.Timestamp && b.ID > a.ID)) {
			t.Fatalf("order violated at %d: (%s,%s) then (%s,%s)", i, a.Timestamp, a.ID, b.Timestamp, b.ID)
		}
	}
}

func TestQueryTurnsFilters(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

	early := makeTurn(base, "running", ToolCall{Name: "exec", Result: "compiled fine"})
	mid := makeTurn(base.Add(time.Hour), "sleeping")
	mid.Input = "wake up and smell the entropy"
	late := makeTurn(base.Add(2*time.Hour), "running", ToolCall{Name: "check_credits", Result: "120"})
	late.Thinking = "balance seems healthy"

	for _, turn := range []*Turn{early, mid, late} {
		require.NoError(t, s.InsertTurn(turn))
	}

	t.Run("state filter", func(t *testing.T) {
		page, err := s.QueryTurns(TurnQuery{State: "sleeping", Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Turns, 1)
		assert.Equal(t, mid.ID, page.Turns[0].ID)
		assert.Equal(t, 1, page.TotalMatched)
	})

	t.Run("q matches thinking", func(t *testing.T) {
		page, err := s.QueryTurns(TurnQuery{Q: "HEALTHY", Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Turns, 1)
		assert.Equal(t, late.ID, page.Turns[0].ID)
	})

	t.Run("q matches input", func(t *testing.T) {
		page, err := s.QueryTurns(TurnQuery{Q: "entropy", Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Turns, 1)
		assert.Equal(t, mid.ID, page.Turns[0].ID)
	})

	t.Run("q matches tool name and result", func(t *testing.T) {
		page, err := s.QueryTurns(TurnQuery{Q: "compiled", Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Turns, 1)
		assert.Equal(t, early.ID, page.Turns[0].ID)

		page, err = s.QueryTurns(TurnQuery{Q: "check_credits", Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Turns, 1)
	})

	t.Run("from inclusive to exclusive", func(t *testing.T) {
		page, err := s.QueryTurns(TurnQuery{
			From:  FormatTime(base.Add(time.Hour)),
			To:    FormatTime(base.Add(2 * time.Hour)),
			Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, page.Turns, 1)
		assert.Equal(t, mid.ID, page.Turns[0].ID)
	})

	t.Run("rfc3339 bounds normalized", func(t *testing.T) {
		page, err := s.QueryTurns(TurnQuery{From: base.Add(90 * time.Minute).Format(time.RFC3339), Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Turns, 1)
		assert.Equal(t, late.ID, page.Turns[0].ID)
	})
}

func TestQueryTurnsPagination(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		require.NoError(t, s.InsertTurn(makeTurn(base.Add(time.Duration(i)*time.Second), "running")))
	}

	seen := make(map[string]bool)

	page1, err := s.QueryTurns(TurnQuery{Limit: 40})
	require.NoError(t, err)
	assert.Len(t, page1.Turns, 40)
	assert.True(t, page1.HasMore)
	assert.Equal(t, 100, page1.TotalMatched)
	for _, turn := range page1.Turns {
		seen[turn.ID] = true
	}
	last := page1.Turns[len(page1.Turns)-1]

	page2, err := s.QueryTurns(TurnQuery{Limit: 40, Cursor: &Cursor{Timestamp: last.Timestamp, ID: last.ID}})
	require.NoError(t, err)
	assert.Len(t, page2.Turns, 40)
	assert.True(t, page2.HasMore)
	for _, turn := range page2.Turns {
		require.False(t, seen[turn.ID], "turn %s appeared in two pages", turn.ID)
		seen[turn.ID] = true
	}
	last = page2.Turns[len(page2.Turns)-1]

	page3, err := s.QueryTurns(TurnQuery{Limit: 40, Cursor: &Cursor{Timestamp: last.Timestamp, ID: last.ID}})
	require.NoError(t, err)
	assert.Len(t, page3.Turns, 20)
	assert.False(t, page3.HasMore)
	for _, turn := range page3.Turns {
		require.False(t, seen[turn.ID])
		seen[turn.ID] = true
	}
	assert.Len(t, seen, 100)
}

func TestTurnsAfterAndHeadCursor(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 4, 4, 12, 0, 0, 0, time.UTC)

	head, err := s.HeadCursor()
	require.NoError(t, err)
	assert.True(t, head.IsZero())

	var cursorAt5 Cursor
	for i := 0; i < 10; i++ {
		turn := makeTurn(base.Add(time.Duration(i)*time.Second), "running")
		require.NoError(t, s.InsertTurn(turn))
		if i == 4 {
			cursorAt5 = Cursor{Timestamp: turn.Timestamp, ID: turn.ID}
		}
	}

	after, err := s.TurnsAfter(cursorAt5, 100)
	require.NoError(t, err)
	assert.Len(t, after, 5)
	for i := 1; i < len(after); i++ {
		assert.True(t, after[i].Timestamp > after[i-1].Timestamp)
	}

	head, err = s.HeadCursor()
	require.NoError(t, err)
	assert.Equal(t, FormatTime(base.Add(9*time.Second)), head.Timestamp)
}

func TestQueryTurnsSameTimestampTieBreak(t *testing.T) {
	s := newTestStore(t)
	ts := FormatTime(time.Date(2026, 4, 5, 6, 0, 0, 0, time.UTC))

	var ids []string
	for i := 0; i < 6; i++ {
		turn := &Turn{ID: NewID(), Timestamp: ts, State: "running", Thinking: fmt.Sprintf("t%d", i)}
		ids = append(ids, turn.ID)
		require.NoError(t, s.InsertTurn(turn))
	}

	page1, err := s.QueryTurns(TurnQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page1.Turns, 3)
	last := page1.Turns[2]

	page2, err := s.QueryTurns(TurnQuery{Limit: 3, Cursor: &Cursor{Timestamp: last.Timestamp, ID: last.ID}})
	require.NoError(t, err)
	require.Len(t, page2.Turns, 3)

	got := make(map[string]bool)
	for _, turn := range append(page1.Turns, page2.Turns...) {
		require.False(t, got[turn.ID], "duplicate across pages with equal timestamps")
		got[turn.ID] = true
	}
	for _, id := range ids {
		assert.True(t, got[id])
	}
}
