package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"automa/internal/config"
)

func newTestClient(baseURL string) *HTTPClient {
	cfg := config.SocialConfig{BaseURL: baseURL}
	return NewHTTPClient(cfg, "0xme", 5*time.Second)
}

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["from"] != "0xme" || body["to"] != "0xpeer" {
			t.Errorf("unexpected addresses: %v", body)
		}
		if body["reply_to"] != "msg-9" {
			t.Errorf("expected reply_to passthrough, got %q", body["reply_to"])
		}
		json.NewEncoder(w).Encode(Message{ID: "m-1", From: "0xme", To: "0xpeer", Content: body["content"]})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	msg, err := c.SendMessage(context.Background(), "0xpeer", "hello there", "msg-9")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.ID != "m-1" || msg.Content != "hello there" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestFetchInbox(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") != "0xme" {
			t.Errorf("expected address query param, got %q", r.URL.Query().Get("address"))
		}
		w.Write([]byte(`{"messages": [
			{"id": "in-1", "from": "0xpeer", "to": "0xme", "content": "ping"},
			{"id": "in-2", "from": "0xcreator", "to": "0xme", "content": "status?", "reply_to": ""}
		]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	msgs, err := c.FetchInbox(context.Background())
	if err != nil {
		t.Fatalf("FetchInbox failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "in-1" || msgs[1].From != "0xcreator" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestFetchInboxRelayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.FetchInbox(context.Background()); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestMockSocialQueueDrains(t *testing.T) {
	m := NewMockSocial()
	m.Deliver("0xpeer", "first")
	m.Deliver("0xpeer", "second")

	msgs, err := m.FetchInbox(context.Background())
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected 2 queued messages, got %d (err %v)", len(msgs), err)
	}
	msgs, err = m.FetchInbox(context.Background())
	if err != nil || len(msgs) != 0 {
		t.Errorf("expected drained queue, got %d (err %v)", len(msgs), err)
	}

	if _, err := m.SendMessage(context.Background(), "0xpeer", "re: first", "relay-1"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(m.Sent) != 1 || m.Sent[0].ReplyTo != "relay-1" {
		t.Errorf("expected sent record with reply_to, got %+v", m.Sent)
	}
}
