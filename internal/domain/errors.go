package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when an interval overlaps an existing event.
	ErrConflict = errors.New("schedule conflict")
	// ErrNotFound is returned for unknown ids or empty searches.
	ErrNotFound = errors.New("event not found")
	// ErrInvalidEvent is returned for events that break field invariants.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")
)

// ConflictError carries the event that blocks a write.
type ConflictError struct {
	Existing Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %q on %s %s-%s", ErrConflict, e.Existing.Name, e.Existing.Date, e.Existing.Start, e.Existing.End)
}

// Unwrap lets errors.Is match ErrConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ValidateRange rejects ranges whose end precedes their start.
func ValidateRange(start, end Date) error {
	if end.Before(start) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, end, start)
	}
	return nil
}
