package history

import (
	"context"
	"sync"
)

// MemoryStore keeps history in process. It is lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Turn)}
}

func (s *MemoryStore) Load(_ context.Context, session string) ([]Turn, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[session]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, session string, turns ...Turn) error {
	if err := checkSession(session); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session] = append(s.sessions[session], stamp(turns)...)
	return nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }
