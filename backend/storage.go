package backend

import (
	"context"
	"sync"

	"github.com/goliatone/go-campus"
)

// MemoryStorage keeps the session in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	session *campus.Session
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(context.Context) (*campus.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone(), nil
}

func (m *MemoryStorage) Save(_ context.Context, session *campus.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session.Clone()
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
