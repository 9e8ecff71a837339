package store

import (
	"database/sql"
	"fmt"
	"time"

	"automa/internal/logging"
)

// EpisodicEntry records one event the automaton lived through.
type EpisodicEntry struct {
	ID             string  `json:"id"`
	SessionID      string  `json:"sessionId"`
	EventType      string  `json:"eventType"`
	Summary        string  `json:"summary"`
	Detail         string  `json:"detail,omitempty"`
	Outcome        string  `json:"outcome"` // success | failure | neutral
	Importance     float64 `json:"importance"`
	Classification string  `json:"classification"`
	CreatedAt      string  `json:"createdAt"`
}

// SemanticEntry is one long-lived fact keyed by a dotted path.
type SemanticEntry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Category  string `json:"category"`
	UpdatedAt string `json:"updatedAt"`
}

// RelationshipEntry tracks interaction history with one remote agent.
type RelationshipEntry struct {
	AgentID         string `json:"agentId"`
	Relation        string `json:"relation"` // contacted | messaged_us
	ContactedCount  int    `json:"contactedCount"`
	MessagedUsCount int    `json:"messagedUsCount"`
	LastInteraction string `json:"lastInteraction"`
	Notes           string `json:"notes,omitempty"`
}

// WorkingEntry is short-lived session-scoped scratch memory.
type WorkingEntry struct {
	ID        string  `json:"id"`
	SessionID string  `json:"sessionId"`
	Content   string  `json:"content"`
	EntryType string  `json:"entryType"` // observation | decision
	Priority  float64 `json:"priority"`
	CreatedAt string  `json:"createdAt"`
}

// InsertEpisodic appends an episodic entry.
func (s *Store) InsertEpisodic(e *EpisodicEntry) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = FormatTime(time.Now())
	}
	if e.Outcome == "" {
		e.Outcome = "neutral"
	}
	_, err := s.db.Exec(`INSERT INTO episodic_memory
		(id, session_id, event_type, summary, detail, outcome, importance, classification, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.EventType, e.Summary, nullable(e.Detail), e.Outcome,
		e.Importance, e.Classification, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert episodic entry: %w", err)
	}
	return nil
}

// GetEpisodic returns recent episodic entries, newest first. An empty
// sessionID spans all sessions. Maintenance and idle chatter is excluded;
// consumers showing memory to the model must never see it. Pass includeAll
// for diagnostic reads.
func (s *Store) GetEpisodic(sessionID string, limit int, includeAll bool) ([]EpisodicEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, session_id, event_type, summary, detail, outcome, importance, classification, created_at
		FROM episodic_memory WHERE (? = '' OR session_id = ?)`
	if !includeAll {
		query += ` AND classification NOT IN ('maintenance', 'idle')`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.Query(query, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodic memory: %w", err)
	}
	defer rows.Close()

	var entries []EpisodicEntry
	for rows.Next() {
		var e EpisodicEntry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Summary, &detail,
			&e.Outcome, &e.Importance, &e.Classification, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episodic entry: %w", err)
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SearchEpisodic finds entries whose summary or detail contains q, newest
// first, honoring the read-side classification filter.
func (s *Store) SearchEpisodic(q string, limit int) ([]EpisodicEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	pat := "%" + q + "%"
	rows, err := s.db.Query(`SELECT id, session_id, event_type, summary, detail, outcome, importance, classification, created_at
		FROM episodic_memory
		WHERE classification NOT IN ('maintenance', 'idle')
		AND (summary LIKE ? OR COALESCE(detail, '') LIKE ?)
		ORDER BY created_at DESC, id DESC LIMIT ?`, pat, pat, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search episodic memory: %w", err)
	}
	defer rows.Close()

	var entries []EpisodicEntry
	for rows.Next() {
		var e EpisodicEntry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Summary, &detail,
			&e.Outcome, &e.Importance, &e.Classification, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episodic entry: %w", err)
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertSemantic writes a fact, replacing any previous value for the key.
func (s *Store) UpsertSemantic(key, value, category string) error {
	_, err := s.db.Exec(`INSERT INTO semantic_memory (key, value, category, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, category = excluded.category, updated_at = excluded.updated_at`,
		key, value, category, FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert semantic memory %s: %w", key, err)
	}
	return nil
}

// GetSemantic returns the fact stored under key, ok=false when absent.
func (s *Store) GetSemantic(key string) (*SemanticEntry, bool, error) {
	var e SemanticEntry
	err := s.db.QueryRow("SELECT key, value, category, updated_at FROM semantic_memory WHERE key = ?", key).
		Scan(&e.Key, &e.Value, &e.Category, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get semantic memory %s: %w", key, err)
	}
	return &e, true, nil
}

// SearchSemantic returns facts whose key or value contains q.
func (s *Store) SearchSemantic(q string, limit int) ([]SemanticEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	pat := "%" + q + "%"
	rows, err := s.db.Query(`SELECT key, value, category, updated_at FROM semantic_memory
		WHERE key LIKE ? OR value LIKE ? ORDER BY updated_at DESC LIMIT ?`, pat, pat, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search semantic memory: %w", err)
	}
	defer rows.Close()

	var entries []SemanticEntry
	for rows.Next() {
		var e SemanticEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.Category, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan semantic entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordRelationship bumps the interaction counter for an agent. relation is
// "contacted" for outbound and "messaged_us" for inbound.
func (s *Store) RecordRelationship(agentID, relation string) error {
	now := FormatTime(time.Now())
	contacted := 0
	messagedUs := 0
	switch relation {
	case "contacted":
		contacted = 1
	case "messaged_us":
		messagedUs = 1
	default:
		return fmt.Errorf("unknown relation: %s", relation)
	}

	_, err := s.db.Exec(`INSERT INTO relationship_memory
		(agent_id, relation, contacted_count, messaged_us_count, last_interaction)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			relation = excluded.relation,
			contacted_count = relationship_memory.contacted_count + ?,
			messaged_us_count = relationship_memory.messaged_us_count + ?,
			last_interaction = excluded.last_interaction`,
		agentID, relation, contacted, messagedUs, now, contacted, messagedUs)
	if err != nil {
		return fmt.Errorf("failed to record relationship: %w", err)
	}
	return nil
}

// GetRelationship returns the interaction record for one agent.
func (s *Store) GetRelationship(agentID string) (*RelationshipEntry, bool, error) {
	var e RelationshipEntry
	var notes sql.NullString
	err := s.db.QueryRow(`SELECT agent_id, relation, contacted_count, messaged_us_count, last_interaction, notes
		FROM relationship_memory WHERE agent_id = ?`, agentID).
		Scan(&e.AgentID, &e.Relation, &e.ContactedCount, &e.MessagedUsCount, &e.LastInteraction, &notes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get relationship: %w", err)
	}
	e.Notes = notes.String
	return &e, true, nil
}

// InsertWorking stores a working-memory entry and prunes the session down to
// the 20 highest-priority entries.
func (s *Store) InsertWorking(w *WorkingEntry) error {
	if w.ID == "" {
		w.ID = NewID()
	}
	if w.CreatedAt == "" {
		w.CreatedAt = FormatTime(time.Now())
	}
	_, err := s.db.Exec(`INSERT INTO working_memory (id, session_id, content, entry_type, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.SessionID, w.Content, w.EntryType, w.Priority, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert working memory: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM working_memory WHERE session_id = ? AND id NOT IN (
			SELECT id FROM working_memory WHERE session_id = ?
			ORDER BY priority DESC, created_at DESC LIMIT 20)`,
		w.SessionID, w.SessionID); err != nil {
		logging.StoreWarn("Working memory prune failed: %v", err)
	}
	return nil
}

// GetWorking returns a session's working memory, highest priority first.
func (s *Store) GetWorking(sessionID string, limit int) ([]WorkingEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id, session_id, content, entry_type, priority, created_at
		FROM working_memory WHERE session_id = ?
		ORDER BY priority DESC, created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query working memory: %w", err)
	}
	defer rows.Close()

	var entries []WorkingEntry
	for rows.Next() {
		var e WorkingEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Content, &e.EntryType, &e.Priority, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan working entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
