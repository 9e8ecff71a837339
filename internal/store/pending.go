package store

import (
	"database/sql"
	"fmt"
	"time"
)

// PendingInput is a queued message for the next inference turn. The
// heartbeat scheduler enqueues these; only the loop dequeues them.
type PendingInput struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Source    string `json:"source"` // heartbeat | system
	CreatedAt string `json:"createdAt"`
}

// EnqueuePendingInput queues a message for the loop's next turn.
func (s *Store) EnqueuePendingInput(content, source string) error {
	_, err := s.db.Exec(`INSERT INTO pending_inputs (id, content, source, created_at)
		VALUES (?, ?, ?, ?)`,
		NewID(), content, source, FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to enqueue pending input: %w", err)
	}
	return nil
}

// DequeuePendingInput pops the oldest unconsumed pending input, stamping it
// consumed in the same transaction. Returns (nil, false, nil) on an empty
// queue.
func (s *Store) DequeuePendingInput() (*PendingInput, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin dequeue: %w", err)
	}
	defer tx.Rollback()

	var p PendingInput
	err = tx.QueryRow(`SELECT id, content, source, created_at FROM pending_inputs
		WHERE consumed_at IS NULL ORDER BY created_at ASC, id ASC LIMIT 1`).
		Scan(&p.ID, &p.Content, &p.Source, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read pending input: %w", err)
	}

	if _, err := tx.Exec("UPDATE pending_inputs SET consumed_at = ? WHERE id = ?",
		FormatTime(time.Now()), p.ID); err != nil {
		return nil, false, fmt.Errorf("failed to consume pending input: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit dequeue: %w", err)
	}
	return &p, true, nil
}

// CountPendingInputs returns the number of unconsumed pending inputs.
func (s *Store) CountPendingInputs() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM pending_inputs WHERE consumed_at IS NULL").Scan(&n)
	return n, err
}

// HasPendingInput reports whether anything is waiting for the next turn.
func (s *Store) HasPendingInput() bool {
	n, err := s.CountPendingInputs()
	return err == nil && n > 0
}
