package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/johpaz/smart-calendar-assistant/internal/store"
)

// ErrCorrupt is returned by Get when a stored context cannot be decoded.
var ErrCorrupt = errors.New("corrupt session context")

// Store keeps one Context per user key. Get on an unknown user returns a
// fresh default Context. Callers own the returned value: mutating it has no
// effect until Put.
type Store interface {
	Get(ctx context.Context, userID string) (Context, error)
	Put(ctx context.Context, userID string, c Context) error
	Clear(ctx context.Context, userID string) error
}

// MemoryStore keeps serialized contexts in a map, so every Get decodes a
// private copy.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty process-wide session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns the stored context or a fresh one.
func (m *MemoryStore) Get(_ context.Context, userID string) (Context, error) {
	m.mu.RLock()
	raw, ok := m.data[userID]
	m.mu.RUnlock()
	if !ok {
		return Context{}, nil
	}
	return decode(raw)
}

// Put replaces the context for a user.
func (m *MemoryStore) Put(_ context.Context, userID string, c Context) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", userID, err)
	}
	m.mu.Lock()
	m.data[userID] = raw
	m.mu.Unlock()
	return nil
}

// Clear removes the context for a user.
func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.data, userID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored contexts.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// RepositoryStore persists contexts through a store.SessionRepository.
type RepositoryStore struct {
	repo store.SessionRepository
}

// NewRepositoryStore wraps a persistent session repository.
func NewRepositoryStore(repo store.SessionRepository) *RepositoryStore {
	return &RepositoryStore{repo: repo}
}

// Get loads and decodes the context for a user.
func (r *RepositoryStore) Get(ctx context.Context, userID string) (Context, error) {
	raw, ok, err := r.repo.GetSession(ctx, userID)
	if err != nil {
		return Context{}, fmt.Errorf("load session for %s: %w", userID, err)
	}
	if !ok {
		return Context{}, nil
	}
	return decode(raw)
}

// Put encodes and stores the context for a user.
func (r *RepositoryStore) Put(ctx context.Context, userID string, c Context) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", userID, err)
	}
	return r.repo.PutSession(ctx, userID, raw)
}

// Clear deletes the context for a user.
func (r *RepositoryStore) Clear(ctx context.Context, userID string) error {
	return r.repo.DeleteSession(ctx, userID)
}

func decode(raw []byte) (Context, error) {
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return Context{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return c, nil
}
