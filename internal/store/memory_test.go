package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodicReadFilter(t *testing.T) {
	s := newTestStore(t)

	classes := []string{"strategic", "productive", "communication", "error", "maintenance", "idle"}
	for _, class := range classes {
		require.NoError(t, s.InsertEpisodic(&EpisodicEntry{
			SessionID:      "sess-1",
			EventType:      "turn",
			Summary:        "a " + class + " turn",
			Classification: class,
			Importance:     0.5,
		}))
	}

	got, err := s.GetEpisodic("sess-1", 20, false)
	require.NoError(t, err)
	require.Len(t, got, 4, "maintenance and idle chatter stays out of recall")
	for _, e := range got {
		assert.NotEqual(t, "maintenance", e.Classification)
		assert.NotEqual(t, "idle", e.Classification)
	}

	all, err := s.GetEpisodic("sess-1", 20, true)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestEpisodicSpansSessionsWhenUnscoped(t *testing.T) {
	s := newTestStore(t)

	for _, sess := range []string{"sess-1", "sess-2"} {
		require.NoError(t, s.InsertEpisodic(&EpisodicEntry{
			SessionID:      sess,
			EventType:      "turn",
			Summary:        "work done in " + sess,
			Classification: "productive",
			Importance:     0.7,
		}))
	}

	scoped, err := s.GetEpisodic("sess-1", 20, false)
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	unscoped, err := s.GetEpisodic("", 20, false)
	require.NoError(t, err)
	assert.Len(t, unscoped, 2, "empty session id reads across sessions")
}

func TestEpisodicSearch(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.InsertEpisodic(&EpisodicEntry{
		SessionID: "sess-1", EventType: "turn",
		Summary: "deployed the billing service", Classification: "productive", Importance: 0.7,
	}))
	require.NoError(t, s.InsertEpisodic(&EpisodicEntry{
		SessionID: "sess-1", EventType: "turn",
		Summary: "routine credit check", Classification: "maintenance", Importance: 0.3,
	}))

	got, err := s.SearchEpisodic("billing", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Summary, "billing")

	// Search honors the same noise filter.
	got, err = s.SearchEpisodic("credit check", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEpisodicDefaults(t *testing.T) {
	s := newTestStore(t)

	e := &EpisodicEntry{SessionID: "sess-1", EventType: "turn", Summary: "x", Classification: "productive"}
	require.NoError(t, s.InsertEpisodic(e))
	assert.NotEmpty(t, e.ID)
	assert.NotEmpty(t, e.CreatedAt)

	got, err := s.GetEpisodic("sess-1", 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "neutral", got[0].Outcome)
}

func TestSemanticUpsert(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertSemantic("financial.last_known_balance", "2500", "financial"))
	require.NoError(t, s.UpsertSemantic("financial.last_known_balance", "2400", "financial"))

	fact, ok, err := s.GetSemantic("financial.last_known_balance")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2400", fact.Value)

	_, ok, err = s.GetSemantic("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := s.SearchSemantic("financial", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRelationshipCounters(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordRelationship("0xpeer", "contacted"))
	require.NoError(t, s.RecordRelationship("0xpeer", "contacted"))
	require.NoError(t, s.RecordRelationship("0xpeer", "messaged_us"))

	rel, ok, err := s.GetRelationship("0xpeer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, rel.ContactedCount)
	assert.Equal(t, 1, rel.MessagedUsCount)
	assert.Equal(t, "messaged_us", rel.Relation)
	assert.NotEmpty(t, rel.LastInteraction)

	assert.Error(t, s.RecordRelationship("0xpeer", "stalked"))

	_, ok, err = s.GetRelationship("0xstranger")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkingMemoryPrune(t *testing.T) {
	s := newTestStore(t)

	// Two high-priority decisions that must survive the prune.
	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertWorking(&WorkingEntry{
			SessionID: "sess-1", EntryType: "decision",
			Content: fmt.Sprintf("rewrote genesis prompt v%d", i), Priority: 0.9,
		}))
	}
	for i := 0; i < 30; i++ {
		require.NoError(t, s.InsertWorking(&WorkingEntry{
			SessionID: "sess-1", EntryType: "observation",
			Content: fmt.Sprintf("slept for 60s (%d)", i), Priority: 0.3,
		}))
	}

	got, err := s.GetWorking("sess-1", 100)
	require.NoError(t, err)
	assert.Len(t, got, 20, "working memory is bounded per session")

	decisions := 0
	for _, w := range got {
		if w.EntryType == "decision" {
			decisions++
		}
	}
	assert.Equal(t, 2, decisions, "high-priority entries outlive low-priority churn")
}

func TestWorkingMemorySessionScoped(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.InsertWorking(&WorkingEntry{SessionID: "a", EntryType: "observation", Content: "x", Priority: 0.3}))
	require.NoError(t, s.InsertWorking(&WorkingEntry{SessionID: "b", EntryType: "observation", Content: "y", Priority: 0.3}))

	got, err := s.GetWorking("a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Content)
}
