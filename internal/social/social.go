// Package social is the agent-to-agent messaging layer: a relay service
// that delivers signed messages between registered agents and holds an
// inbox for each address.
package social

import (
	"context"
)

// Message is one relayed agent-to-agent message.
type Message struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Content  string `json:"content"`
	SignedAt string `json:"signed_at,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// Client is the relay surface the runtime depends on.
type Client interface {
	// SendMessage relays a message to another agent. replyTo references
	// the inbox message being answered, when there is one.
	SendMessage(ctx context.Context, to, content, replyTo string) (*Message, error)

	// FetchInbox returns messages addressed to this agent that the relay
	// has not yet marked delivered.
	FetchInbox(ctx context.Context) ([]Message, error)
}
