package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/johpaz/smart-calendar-assistant/internal/conflict"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

// MemoryStore is an EventStore kept in process memory. It is used by tests
// and by the CLI when no database path is configured.
type MemoryStore struct {
	mu     sync.Mutex
	events map[int64]domain.Event
	nextID int64
}

// NewMemory returns an empty in-memory event store.
func NewMemory() *MemoryStore {
	return &MemoryStore{events: make(map[int64]domain.Event), nextID: 1}
}

// Create validates and inserts an event.
func (m *MemoryStore) Create(_ context.Context, ev domain.NewEvent) (domain.Event, error) {
	if err := ev.Validate(); err != nil {
		return domain.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := ev.Event(0)
	if err := conflict.Check(m.onDate(candidate.Date), candidate.Slot(), 0); err != nil {
		return domain.Event{}, err
	}
	candidate.ID = m.nextID
	m.nextID++
	m.events[candidate.ID] = candidate
	return candidate, nil
}

// QueryRange returns events between start and end inclusive.
func (m *MemoryStore) QueryRange(_ context.Context, start, end domain.Date) ([]domain.Event, error) {
	if err := domain.ValidateRange(start, end); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Event
	for _, e := range m.events {
		if inRange(e.Date, start, end) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

// Get returns one event.
func (m *MemoryStore) Get(_ context.Context, id int64) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

// Update applies a patch under the store lock.
func (m *MemoryStore) Update(_ context.Context, id int64, patch domain.EventPatch) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return domain.Event{}, err
	}
	if err := conflict.Check(m.onDate(updated.Date), updated.Slot(), id); err != nil {
		return domain.Event{}, err
	}
	m.events[id] = updated
	return updated, nil
}

// Delete removes an event.
func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
	}
	delete(m.events, id)
	return nil
}

// SearchByName returns events whose name contains text.
func (m *MemoryStore) SearchByName(_ context.Context, text string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Event
	for _, e := range m.events {
		if nameMatches(e.Name, text) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

// SeedIfEmpty inserts events only when the store holds none.
func (m *MemoryStore) SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error) {
	m.mu.Lock()
	empty := len(m.events) == 0
	m.mu.Unlock()
	if !empty {
		return 0, nil
	}
	for i, ev := range events {
		if _, err := m.Create(ctx, ev); err != nil {
			return i, fmt.Errorf("seed %q: %w", ev.Name, err)
		}
	}
	return len(events), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// onDate must be called with mu held.
func (m *MemoryStore) onDate(d domain.Date) []domain.Event {
	var out []domain.Event
	for _, e := range m.events {
		if e.Date == d {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}
