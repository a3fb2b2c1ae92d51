// Package memory persists conversation history as a bounded per-conversation
// window: only the most recent messages are retained, oldest evicted first.
package memory

import (
	"context"
	"time"
)

const DefaultWindow = 20

type Message struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Store owns ordered conversation turns keyed by an opaque conversation id.
// Conversations are created implicitly on first reference; GetOrCreate makes
// that explicit.
type Store interface {
	// GetOrCreate returns the retained window of a conversation in append
	// order, creating the conversation if the id has never been seen. A new
	// conversation has no messages.
	GetOrCreate(ctx context.Context, conversationID string) ([]Message, error)
	// Append adds messages to the end of a conversation in one atomic call
	// and evicts the oldest messages beyond the window.
	Append(ctx context.Context, conversationID string, messages ...Message) error
	Clear(ctx context.Context, conversationID string) error
}
