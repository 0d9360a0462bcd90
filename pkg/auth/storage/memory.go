package storage

import (
	"context"
	"sync"

	"github.com/s155cp/memberctl/pkg/auth/types"
)

// MemoryStorage implements in-memory session storage.
// This storage is ephemeral and sessions are lost when the process exits.
type MemoryStorage struct {
	mu      sync.RWMutex
	session *types.Session
	saves   int
	deletes int
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Save saves a copy of the session.
func (m *MemoryStorage) Save(ctx context.Context, session *types.Session) error {
	if err := validate(session); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = session.Clone()
	m.saves++
	return nil
}

// Load returns a copy of the stored session.
func (m *MemoryStorage) Load(ctx context.Context) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, ErrNotFound
	}

	return m.session.Clone(), nil
}

// Delete deletes the session from memory.
func (m *MemoryStorage) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	m.deletes++
	return nil
}

// Clear is an alias for Delete.
func (m *MemoryStorage) Clear() {
	_ = m.Delete(context.Background())
}

// Saves returns how many times Save succeeded.
func (m *MemoryStorage) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Deletes returns how many times Delete was called.
func (m *MemoryStorage) Deletes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deletes
}
