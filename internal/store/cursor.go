package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ErrInvalidCursor marks a cursor that could not be decoded.
var ErrInvalidCursor = fmt.Errorf("invalid cursor")

// Cursor is a position in the (timestamp, id) total order over turns.
type Cursor struct {
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
}

// IsZero reports whether the cursor carries no position.
func (c Cursor) IsZero() bool {
	return c.Timestamp == "" && c.ID == ""
}

// Encode renders the cursor as base64url without padding.
func (c Cursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses an encoded cursor. Anything malformed, including
// padded base64 or stray fields of the wrong type, yields ErrInvalidCursor.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, ErrInvalidCursor
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.Timestamp == "" || c.ID == "" {
		return nil, fmt.Errorf("%w: missing fields", ErrInvalidCursor)
	}
	return &c, nil
}

// After reports whether the turn position (timestamp, id) is strictly newer
// than the cursor.
func (c Cursor) After(timestamp, id string) bool {
	if timestamp != c.Timestamp {
		return timestamp > c.Timestamp
	}
	return id > c.ID
}
