// Package dateparse turns Spanish date, time and duration phrases into values.
//
// All functions are pure. Relative words ("hoy", "mañana") resolve against a
// reference date supplied by an injected clock, so results are deterministic
// under test.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

// Value is the result of parsing a date phrase: either SingleDate or DateRange.
type Value interface {
	// Span returns the first and last day covered. A single date is a
	// degenerate range.
	Span() (start, end domain.Date)
	isValue()
}

// SingleDate is one calendar day.
type SingleDate struct {
	Date domain.Date
}

// Span implements Value.
func (s SingleDate) Span() (domain.Date, domain.Date) { return s.Date, s.Date }
func (SingleDate) isValue()                           {}

// DateRange spans from Start to End inclusive.
type DateRange struct {
	Start domain.Date
	End   domain.Date
}

// Span implements Value.
func (r DateRange) Span() (domain.Date, domain.Date) { return r.Start, r.End }
func (DateRange) isValue()                           {}

// First returns the day a value begins on. Flows that need one date use it.
func First(v Value) domain.Date {
	start, _ := v.Span()
	return start
}

// Kind names what the parser was asked to read.
type Kind string

const (
	KindDate     Kind = "date"
	KindTime     Kind = "time"
	KindDuration Kind = "duration"
)

// Error reports text that could not be interpreted.
type Error struct {
	Kind  Kind
	Input string
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not interpret %q as %s", e.Input, e.Kind)
}

// DefaultDurationHours is used when no duration phrase is found.
const DefaultDurationHours = 1

var months = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

var (
	sameMonthRange  = regexp.MustCompile(`del\s+(\d{1,2})\s+al\s+(\d{1,2})\s+de\s+(\p{L}+)(?:\s+de\s+(\d{4}))?`)
	crossMonthRange = regexp.MustCompile(`del\s+(\d{1,2})\s+de\s+(\p{L}+)\s+al\s+(\d{1,2})\s+de\s+(\p{L}+)(?:\s+de\s+(\d{4}))?`)
	singleDay       = regexp.MustCompile(`(?:el\s+)?(\d{1,2})\s+de\s+(\p{L}+)(?:\s+de\s+(\d{4}))?`)
	timeOfDay       = regexp.MustCompile(`^(?:a\s+las?\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	durationHours   = regexp.MustCompile(`(\d+)\s*(?:horas|hora|h)`)
)

// Parser resolves phrases against a reference date.
type Parser struct {
	now func() time.Time
}

// New returns a parser whose reference date is taken from now on each call.
func New(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now}
}

// Fixed returns a parser pinned to the given reference date.
func Fixed(ref domain.Date) *Parser {
	t := ref.Time()
	return New(func() time.Time { return t })
}

// Reference returns the current reference date.
func (p *Parser) Reference() domain.Date {
	return domain.DateOf(p.now())
}

// Date parses a date phrase. Patterns are tried in a fixed order: "hoy",
// "mañana", same-month range, cross-month range, single day.
func (p *Parser) Date(text string) (Value, error) {
	ref := p.Reference()
	t := strings.ToLower(strings.TrimSpace(text))

	if strings.Contains(t, "hoy") {
		return SingleDate{Date: ref}, nil
	}
	if strings.Contains(t, "mañana") {
		return SingleDate{Date: ref.AddDays(1)}, nil
	}

	if m := sameMonthRange.FindStringSubmatch(t); m != nil {
		year := yearOr(m[4], ref.Year)
		start, err1 := day(year, m[3], m[1])
		end, err2 := day(year, m[3], m[2])
		if err1 == nil && err2 == nil {
			return DateRange{Start: start, End: end}, nil
		}
	}

	if m := crossMonthRange.FindStringSubmatch(t); m != nil {
		year := yearOr(m[5], ref.Year)
		start, err1 := day(year, m[2], m[1])
		end, err2 := day(year, m[4], m[3])
		if err1 == nil && err2 == nil {
			return DateRange{Start: start, End: end}, nil
		}
	}

	if m := singleDay.FindStringSubmatch(t); m != nil {
		d, err := day(yearOr(m[3], ref.Year), m[2], m[1])
		if err == nil {
			return SingleDate{Date: d}, nil
		}
	}

	return nil, &Error{Kind: KindDate, Input: text}
}

// Time parses "14:00", "a las 2 pm", "12 am" and similar into a 24-hour clock.
func (p *Parser) Time(text string) (domain.Clock, error) {
	return ParseTime(text)
}

// Duration returns the number of hours in the text, or the default.
func (p *Parser) Duration(text string) int {
	return ParseDuration(text)
}

// ParseTime is the stateless form of Parser.Time.
func ParseTime(text string) (domain.Clock, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	m := timeOfDay.FindStringSubmatch(t)
	if m == nil {
		return domain.Clock{}, &Error{Kind: KindTime, Input: text}
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return domain.Clock{}, &Error{Kind: KindTime, Input: text}
	}
	return domain.Clock{Hour: hour, Minute: minute}, nil
}

// ParseDuration extracts "<n> hora(s)" or "<n>h". It never fails: missing or
// zero durations fall back to DefaultDurationHours.
func ParseDuration(text string) int {
	m := durationHours.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return DefaultDurationHours
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return DefaultDurationHours
	}
	return n
}

func yearOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return y
}

func day(year int, monthName, dayText string) (domain.Date, error) {
	month, ok := months[monthName]
	if !ok {
		return domain.Date{}, fmt.Errorf("unknown month %q", monthName)
	}
	d, _ := strconv.Atoi(dayText)
	return domain.NewDate(year, month, d)
}
