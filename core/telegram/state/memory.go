package state

import (
	"context"
	"slices"
	"sync"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryManager constructs a process-local Manager. Sessions are lost on restart.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]Session),
	}
}

func (m *memoryManager) Backend() string { return "memory" }

func (m *memoryManager) Close() error { return nil }

// Get returns a copy of the user's session, or an idle session.
func (m *memoryManager) Get(_ context.Context, userID int64) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[userID]; ok {
		s.Posts = slices.Clone(s.Posts)
		return s, nil
	}
	return Idle(), nil
}

func (m *memoryManager) Set(ctx context.Context, userID int64, s Session) error {
	if s.IsIdle() {
		return m.Clear(ctx, userID)
	}
	s.Posts = slices.Clone(s.Posts)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = s
	return nil
}

// Clear removes the entire session for a user.
func (m *memoryManager) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
