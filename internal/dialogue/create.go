package dialogue

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/johpaz/smart-calendar-assistant/internal/dateparse"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/session"
)

// stepCreate fills name, date, start time and duration in order, then asks
// for confirmation before writing.
func (r *Router) stepCreate(ctx context.Context, f *session.CreateFlow, t turn) outcome {
	if t.trigger {
		rest := stripTrigger(t.text, t.keyword)
		if strings.Contains(rest, ",") {
			return r.applyShorthand(f, rest)
		}
		return pending(msgAskName)
	}

	switch {
	case f.Name == "":
		if !f.ShorthandTried && strings.Contains(t.text, ",") {
			return r.applyShorthand(f, t.text)
		}
		name := strings.TrimSpace(t.text)
		if name == "" || utf8.RuneCountInString(name) > domain.MaxEventNameLength {
			return retry(&f.Attempts, t, failure(msgBadName))
		}
		f.Name = name
		f.Attempts = 0
		return r.nextCreatePrompt(f)

	case f.Date == nil:
		v, err := r.parser.Date(t.text)
		if err != nil {
			return retry(&f.Attempts, t, failure(msgBadDate))
		}
		d := dateparse.First(v)
		f.Date = &d
		f.Attempts = 0
		return r.nextCreatePrompt(f)

	case f.Start == nil:
		c, err := r.parser.Time(t.text)
		if err != nil {
			return retry(&f.Attempts, t, failure(msgBadStart))
		}
		f.Start = &c
		f.Attempts = 0
		return r.nextCreatePrompt(f)

	case f.DurationHours == 0:
		f.DurationHours = r.parser.Duration(t.text)
		f.Attempts = 0
		return r.nextCreatePrompt(f)
	}

	return r.confirmCreate(ctx, f, t)
}

// applyShorthand reads "name, date[, time][, duration]" from one message. The
// first segment is the name; later segments fill the date and start time
// when they parse, and the duration defaults to one hour. Unfilled slots are
// left for the sequential prompts.
func (r *Router) applyShorthand(f *session.CreateFlow, text string) outcome {
	f.ShorthandTried = true
	segments := strings.Split(text, ",")

	if name := strings.TrimSpace(segments[0]); name != "" && utf8.RuneCountInString(name) <= domain.MaxEventNameLength {
		f.Name = name
	}
	rest := segments[1:]
	for _, seg := range rest {
		seg = strings.TrimSpace(seg)
		if f.Date == nil {
			if v, err := r.parser.Date(seg); err == nil {
				d := dateparse.First(v)
				f.Date = &d
				continue
			}
		}
		if f.Start == nil {
			if c, err := r.parser.Time(seg); err == nil {
				f.Start = &c
			}
		}
	}
	if len(rest) > 0 {
		f.DurationHours = r.parser.Duration(strings.Join(rest, " "))
	}
	return r.nextCreatePrompt(f)
}

func (r *Router) nextCreatePrompt(f *session.CreateFlow) outcome {
	switch {
	case f.Name == "":
		return pending(msgAskName)
	case f.Date == nil:
		return pending(msgAskDate)
	case f.Start == nil:
		return pending(msgAskStart)
	case f.DurationHours == 0:
		return pending(msgAskDuration)
	}
	return pending(createConfirmation(f))
}

func (r *Router) confirmCreate(ctx context.Context, f *session.CreateFlow, t turn) outcome {
	switch {
	case isYes(t.lower):
	case isNo(t.lower):
		return done(msgCreateCancel)
	default:
		// Unclear replies re-prompt without counting toward MaxAttempts.
		return pending(msgCreateHint)
	}

	created, err := r.events.Create(ctx, f.NewEvent())
	var cerr *domain.ConflictError
	switch {
	case errors.As(err, &cerr):
		r.logger.Info("create rejected by conflict", "user_id", t.userID, "existing_id", cerr.Existing.ID)
		return failure(msgCreateConflict)
	case errors.Is(err, domain.ErrInvalidEvent):
		return abort(msgCreateInvalid)
	case err != nil:
		r.logger.Error("create event failed", "user_id", t.userID, "error", err)
		return storeFailure()
	}
	return done(createDone(created, f.DurationHours), created)
}
