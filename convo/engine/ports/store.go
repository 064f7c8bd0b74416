package engineports

import (
	"context"
	"errors"
)

// Message roles. Sessions only ever hold user and assistant entries; the
// rendered system prompt is seeded as a user message by the prompt builder.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable entry of a session's history. Ordering is
// significant: the stored sequence is exactly what gets replayed to the
// model as conversation context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrSessionNotFound is returned by Get for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists per-session message history, keyed by an opaque
// session id. Append creates the session when absent and extends it
// otherwise, preserving prior order; it never truncates or reorders.
// Implementations must be safe for concurrent use across distinct session
// ids. The engine serializes turns within one session id itself.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) ([]Message, error)
	Append(ctx context.Context, sessionID string, msgs []Message) error
}
