// Package calendar converts agenda events to and from iCalendar data.
package calendar

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

// ProductID is written as the PRODID of exported calendars.
const ProductID = "-//Agente Sofia//Agenda//ES"

// ErrNoEvents is returned when there is nothing to export; a VCALENDAR needs
// at least one component.
var ErrNoEvents = errors.New("no events to export")

// uidNamespace makes exported UIDs stable for a given event id.
var uidNamespace = uuid.MustParse("5d0f5c1e-7b8a-4f43-9a51-3b1c8e0d2a77")

// EventUID returns the UID an event is exported with.
func EventUID(id int64) string {
	return uuid.NewSHA1(uidNamespace, fmt.Appendf(nil, "event-%d", id)).String()
}

// ExportOptions controls how events are rendered.
type ExportOptions struct {
	// Location the wall-clock times belong to. Nil means time.Local, which
	// produces floating times.
	Location *time.Location
	// Stamp is written as DTSTAMP. Zero means now.
	Stamp time.Time
}

// Export writes events as a single VCALENDAR.
func Export(w io.Writer, events []domain.Event, opts ExportOptions) error {
	if len(events) == 0 {
		return ErrNoEvents
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	for _, e := range events {
		cal.Children = append(cal.Children, toVEvent(e, opts))
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func toVEvent(e domain.Event, opts ExportOptions) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, EventUID(e.ID))
	ve.Props.SetText(ical.PropSummary, e.Name)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, opts.Stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, At(e.Date, e.Start, opts.Location))
	ve.Props.SetDateTime(ical.PropDateTimeEnd, At(e.Date, e.End, opts.Location))
	return ve
}

// At returns the instant of a wall-clock time on a date. Hours past 23 roll
// into the following day.
func At(d domain.Date, c domain.Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}
