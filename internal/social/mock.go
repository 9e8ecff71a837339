package social

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockSocial is an in-memory relay used by tests and offline runs. Sent
// messages are recorded; the inbox is a queue drained by FetchInbox.
type MockSocial struct {
	mu sync.Mutex

	// Err, when set, is returned by every method.
	Err error

	Sent  []Message
	queue []Message
	next  int
}

// NewMockSocial returns an empty mock relay.
func NewMockSocial() *MockSocial {
	return &MockSocial{}
}

// Deliver enqueues a message for the next FetchInbox call.
func (m *MockSocial) Deliver(from, content string) Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	msg := Message{
		ID:       fmt.Sprintf("relay-%d", m.next),
		From:     from,
		Content:  content,
		SignedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.queue = append(m.queue, msg)
	return msg
}

func (m *MockSocial) SendMessage(ctx context.Context, to, content, replyTo string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.next++
	msg := Message{
		ID:      fmt.Sprintf("sent-%d", m.next),
		To:      to,
		Content: content,
		ReplyTo: replyTo,
	}
	m.Sent = append(m.Sent, msg)
	return &msg, nil
}

func (m *MockSocial) FetchInbox(ctx context.Context) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := m.queue
	m.queue = nil
	return out, nil
}
