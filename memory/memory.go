package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps conversation windows in process memory. Used by tests
// and setups without Postgres.
type InMemoryStore struct {
	mu            sync.Mutex
	window        int
	conversations map[string][]Message
}

func NewInMemoryStore(window int) *InMemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &InMemoryStore{
		window:        window,
		conversations: make(map[string][]Message),
	}
}

func (s *InMemoryStore) GetOrCreate(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		s.conversations[conversationID] = nil
	}

	history := s.conversations[conversationID]
	copied := make([]Message, len(history))
	copy(copied, history)
	return copied, nil
}

func (s *InMemoryStore) Append(_ context.Context, conversationID string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	history := s.conversations[conversationID]
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		history = append(history, msg)
	}
	if len(history) > s.window {
		history = history[len(history)-s.window:]
	}
	s.conversations[conversationID] = history
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

var _ Store = (*InMemoryStore)(nil)
