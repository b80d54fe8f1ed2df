// Package conflict decides whether a candidate slot collides with existing events.
package conflict

import "github.com/johpaz/smart-calendar-assistant/internal/domain"

// Overlaps reports whether two slots on the same date intersect. Intervals are
// half-open: an event ending at 14:30 does not clash with one starting at 14:30.
func Overlaps(a, b domain.Slot) bool {
	if a.Date != b.Date {
		return false
	}
	return a.Start.Minutes() < b.End.Minutes() && a.End.Minutes() > b.Start.Minutes()
}

// FirstConflict returns the first event in existing that overlaps the
// candidate, ignoring the event whose ID equals excludeID (0 excludes nothing).
func FirstConflict(existing []domain.Event, candidate domain.Slot, excludeID int64) (domain.Event, bool) {
	for _, e := range existing {
		if excludeID != 0 && e.ID == excludeID {
			continue
		}
		if Overlaps(candidate, e.Slot()) {
			return e, true
		}
	}
	return domain.Event{}, false
}

// Check returns a *domain.ConflictError when the candidate overlaps any
// existing event, or nil.
func Check(existing []domain.Event, candidate domain.Slot, excludeID int64) error {
	if e, ok := FirstConflict(existing, candidate, excludeID); ok {
		return &domain.ConflictError{Existing: e}
	}
	return nil
}
