package calendar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

const (
	defaultMaxOccurrences = 500
	defaultWindowDays     = 365
	// maxSkippedOccurrences bounds the walk from DTSTART up to the window.
	maxSkippedOccurrences = 100_000
)

// ImportOptions bounds how a calendar file is turned into events.
type ImportOptions struct {
	// Location wall-clock times are converted to. Nil means time.Local.
	Location *time.Location
	// From and To bound recurrence expansion, inclusive. A zero From starts
	// at each event's DTSTART; a zero To covers a year from From.
	From, To domain.Date
	// MaxOccurrences caps the expansion of one recurring event.
	MaxOccurrences int
}

// Skipped describes a VEVENT that could not become an agenda event.
type Skipped struct {
	UID    string `json:"uid"`
	Reason string `json:"reason"`
}

// ImportResult is the outcome of Import.
type ImportResult struct {
	Events  []domain.NewEvent
	Skipped []Skipped
}

// Import parses an iCalendar payload. Timed events become NewEvents, RRULEs
// are expanded inside the window, all-day and malformed entries are reported
// as skipped.
func Import(r io.Reader, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = defaultMaxOccurrences
	}

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return res, fmt.Errorf("failed to parse calendar: %w", err)
	}

	for _, ve := range cal.Events() {
		uid := propValue(ve, ical.ComponentPropertyUniqueId)
		events, err := convert(ve, opts)
		if err != nil {
			slog.Debug("Skipping calendar entry", "uid", uid, "reason", err)
			res.Skipped = append(res.Skipped, Skipped{UID: uid, Reason: err.Error()})
			continue
		}
		res.Events = append(res.Events, events...)
	}
	return res, nil
}

func convert(ve *ical.VEvent, opts ImportOptions) ([]domain.NewEvent, error) {
	name := strings.TrimSpace(propValue(ve, ical.ComponentPropertySummary))
	if name == "" {
		return nil, errors.New("missing summary")
	}
	if utf8.RuneCountInString(name) > domain.MaxEventNameLength {
		name = string([]rune(name)[:domain.MaxEventNameLength])
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p == nil || !strings.Contains(p.Value, "T") {
		return nil, errors.New("all-day or undated entry")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("bad DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return nil, fmt.Errorf("bad DTEND: %w", err)
	}
	length := end.Sub(start)
	if length <= 0 {
		return nil, errors.New("end is not after start")
	}

	starts := []time.Time{start}
	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		starts, err = expand(raw, start, opts)
		if err != nil {
			return nil, err
		}
	}

	out := make([]domain.NewEvent, 0, len(starts))
	for _, s := range starts {
		out = append(out, toNewEvent(name, s.In(opts.Location), length))
	}
	return out, nil
}

func expand(raw string, dtstart time.Time, opts ImportOptions) ([]time.Time, error) {
	rule, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, fmt.Errorf("bad RRULE %q: %w", raw, err)
	}
	rule.DTStart(dtstart)

	from := dtstart
	if !opts.From.IsZero() {
		from = time.Date(opts.From.Year, opts.From.Month, opts.From.Day, 0, 0, 0, 0, dtstart.Location())
	}
	to := from.AddDate(0, 0, defaultWindowDays)
	if !opts.To.IsZero() {
		to = time.Date(opts.To.Year, opts.To.Month, opts.To.Day, 23, 59, 59, 0, dtstart.Location())
	}

	// Stop at the cap or past the window, whichever comes first.
	var starts []time.Time
	next := rule.Iterator()
	for skipped := 0; ; {
		t, ok := next()
		if !ok || t.After(to) {
			break
		}
		if t.Before(from) {
			if skipped++; skipped > maxSkippedOccurrences {
				return nil, fmt.Errorf("RRULE %q repeats too often before the import window", raw)
			}
			continue
		}
		if len(starts) == opts.MaxOccurrences {
			slog.Warn("Truncated recurring event", "rrule", raw, "cap", opts.MaxOccurrences)
			break
		}
		starts = append(starts, t)
	}
	return starts, nil
}

// toNewEvent keeps the end on the start's date, so events past midnight get
// an end hour above 23.
func toNewEvent(name string, start time.Time, length time.Duration) domain.NewEvent {
	begin := domain.Clock{Hour: start.Hour(), Minute: start.Minute()}
	total := begin.Minutes() + int(length.Minutes())
	return domain.NewEvent{
		Name:  name,
		Date:  domain.DateOf(start),
		Start: begin,
		End:   domain.Clock{Hour: total / 60, Minute: total % 60},
	}
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}
