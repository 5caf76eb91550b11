package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/smallnest/pdfqa/store"
)

// MemoryHistoryStore keeps session histories in process memory.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*store.Message
}

// NewMemoryHistoryStore creates an empty in-memory history store
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		sessions: make(map[string][]*store.Message),
	}
}

// Append adds messages to a session
func (s *MemoryHistoryStore) Append(ctx context.Context, sessionID string, messages ...*store.Message) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range messages {
		if m == nil {
			continue
		}
		s.sessions[sessionID] = append(s.sessions[sessionID], store.CloneMessage(m))
	}
	return nil
}

// Load returns copies of a session's messages
func (s *MemoryHistoryStore) Load(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := store.ValidateSession(sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.NotFound(sessionID)
	}

	out := make([]*store.Message, len(msgs))
	for i, m := range msgs {
		out[i] = store.CloneMessage(m)
	}
	return out, nil
}

// Sessions returns the session IDs in lexical order
func (s *MemoryHistoryStore) Sessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Clear drops a session
func (s *MemoryHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Close is a no-op
func (s *MemoryHistoryStore) Close() error {
	return nil
}
