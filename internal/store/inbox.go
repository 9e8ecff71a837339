package store

import (
	"database/sql"
	"fmt"
	"time"

	"automa/internal/logging"
)

// InboxMessage is one message from another agent or the creator.
type InboxMessage struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Content     string `json:"content"`
	SignedAt    string `json:"signedAt,omitempty"`
	CreatedAt   string `json:"createdAt"`
	ReplyTo     string `json:"replyTo,omitempty"`
	ProcessedAt string `json:"processedAt,omitempty"`
}

// InsertInboxMessage stores a message. Inserting an id that already exists
// is a no-op, so pollers can re-deliver safely.
func (s *Store) InsertInboxMessage(msg *InboxMessage) error {
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = FormatTime(time.Now())
	}

	res, err := s.db.Exec(`INSERT INTO inbox (id, from_address, to_address, content, signed_at, created_at, reply_to)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		msg.ID, msg.From, msg.To, msg.Content, nullable(msg.SignedAt), msg.CreatedAt, nullable(msg.ReplyTo))
	if err != nil {
		return fmt.Errorf("failed to insert inbox message: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.StoreDebug("Inbox message %s stored (from %s)", msg.ID, msg.From)
	}
	return nil
}

// GetUnprocessedInboxMessages returns unprocessed messages, oldest first.
func (s *Store) GetUnprocessedInboxMessages(limit int) ([]InboxMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`SELECT id, from_address, to_address, content, signed_at, created_at, reply_to
		FROM inbox WHERE processed_at IS NULL ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query inbox: %w", err)
	}
	defer rows.Close()

	var msgs []InboxMessage
	for rows.Next() {
		var m InboxMessage
		var signed, replyTo sql.NullString
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Content, &signed, &m.CreatedAt, &replyTo); err != nil {
			return nil, fmt.Errorf("failed to scan inbox message: %w", err)
		}
		m.SignedAt = signed.String
		m.ReplyTo = replyTo.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkInboxMessageProcessed stamps processed_at once. The stamp is monotone:
// a second call leaves the original timestamp.
func (s *Store) MarkInboxMessageProcessed(id string) error {
	_, err := s.db.Exec("UPDATE inbox SET processed_at = ? WHERE id = ? AND processed_at IS NULL",
		FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark inbox message processed: %w", err)
	}
	return nil
}

// CountUnprocessedInbox returns the number of pending messages.
func (s *Store) CountUnprocessedInbox() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM inbox WHERE processed_at IS NULL").Scan(&n)
	return n, err
}
