// Package domain contains core domain types for the calendar assistant.
package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxEventNameLength bounds event names.
const MaxEventNameLength = 100

// Event is a scheduled entry in the calendar.
type Event struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Date  Date   `json:"date"`
	Start Clock  `json:"start_time"`
	End   Clock  `json:"end_time"`
}

// Slot is the time interval an event occupies on its date.
type Slot struct {
	Date  Date
	Start Clock
	End   Clock
}

// Slot returns the interval occupied by the event.
func (e Event) Slot() Slot {
	return Slot{Date: e.Date, Start: e.Start, End: e.End}
}

// NewEvent is the input for creating an event; the store assigns the ID.
type NewEvent struct {
	Name  string `json:"name"`
	Date  Date   `json:"date"`
	Start Clock  `json:"start_time"`
	End   Clock  `json:"end_time"`
}

// Validate checks the name and the interval.
func (n NewEvent) Validate() error {
	return validate(n.Name, n.Date, n.Start, n.End)
}

// Event returns the event that would be stored with the given ID.
func (n NewEvent) Event(id int64) Event {
	return Event{ID: id, Name: strings.TrimSpace(n.Name), Date: n.Date, Start: n.Start, End: n.End}
}

// EventPatch lists fields to change on an existing event. Nil fields keep
// their current value.
type EventPatch struct {
	Name  *string `json:"name,omitempty"`
	Date  *Date   `json:"date,omitempty"`
	Start *Clock  `json:"start_time,omitempty"`
	End   *Clock  `json:"end_time,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Name == nil && p.Date == nil && p.Start == nil && p.End == nil
}

// Apply returns a copy of e with the patch applied and validated.
func (p EventPatch) Apply(e Event) (Event, error) {
	if p.Name != nil {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.End != nil {
		e.End = *p.End
	}
	if err := validate(e.Name, e.Date, e.Start, e.End); err != nil {
		return Event{}, err
	}
	return e, nil
}

func validate(name string, date Date, start, end Clock) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if utf8.RuneCountInString(name) > MaxEventNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidEvent, MaxEventNameLength)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidEvent)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidEvent, start, end)
	}
	return nil
}
