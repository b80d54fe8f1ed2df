// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

// EventStore persists calendar events. Writes run the overlap check inside
// the same critical section as the write, so two concurrent writers can never
// both succeed with overlapping intervals.
type EventStore interface {
	// Create validates and inserts an event. It returns *domain.ConflictError
	// when the interval overlaps an existing event on the same date.
	Create(ctx context.Context, ev domain.NewEvent) (domain.Event, error)

	// QueryRange returns events with start <= date <= end ordered by date,
	// then start time.
	QueryRange(ctx context.Context, start, end domain.Date) ([]domain.Event, error)

	// Get returns one event or domain.ErrNotFound.
	Get(ctx context.Context, id int64) (domain.Event, error)

	// Update applies a patch. The event itself is excluded from the overlap
	// check.
	Update(ctx context.Context, id int64, patch domain.EventPatch) (domain.Event, error)

	// Delete removes an event or returns domain.ErrNotFound.
	Delete(ctx context.Context, id int64) error

	// SearchByName returns events whose name contains text, case-insensitively.
	SearchByName(ctx context.Context, text string) ([]domain.Event, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// SessionRepository persists serialized conversation contexts by user key.
type SessionRepository interface {
	// GetSession returns the stored blob, or ok=false when none exists.
	GetSession(ctx context.Context, userID string) (data []byte, ok bool, err error)

	// PutSession creates or replaces the blob for a user.
	PutSession(ctx context.Context, userID string, data []byte) error

	// DeleteSession removes the blob for a user. Missing rows are not an error.
	DeleteSession(ctx context.Context, userID string) error

	// CleanupExpiredSessions removes sessions untouched for longer than ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// Seeder inserts starter events into an empty store.
type Seeder interface {
	SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error)
}

// SampleEvents are the demo entries loaded on first start.
func SampleEvents() []domain.NewEvent {
	day := domain.Date{Year: 2025, Month: time.March, Day: 10}
	return []domain.NewEvent{
		{Name: "Llamada con cliente", Date: day, Start: domain.Clock{Hour: 13, Minute: 30}, End: domain.Clock{Hour: 14, Minute: 30}},
		{Name: "Revisión de código", Date: day, Start: domain.Clock{Hour: 15}, End: domain.Clock{Hour: 16}},
	}
}

func sortEvents(events []domain.Event) {
	slices.SortFunc(events, func(a, b domain.Event) int {
		if a.Date != b.Date {
			if a.Date.Before(b.Date) {
				return -1
			}
			return 1
		}
		if d := a.Start.Minutes() - b.Start.Minutes(); d != 0 {
			return d
		}
		return int(a.ID - b.ID)
	})
}

func nameMatches(name, text string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(strings.TrimSpace(text)))
}

func inRange(d, start, end domain.Date) bool {
	return !d.Before(start) && !end.Before(d)
}
