package dialogue

import (
	"context"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/session"
)

// stepQuery reads a date or range and lists the events inside it. The flow
// ends as soon as a usable range is understood.
func (r *Router) stepQuery(ctx context.Context, f *session.QueryFlow, t turn) outcome {
	v, err := r.parser.Date(t.text)
	if err != nil {
		return retry(&f.Attempts, t, pending(msgAskQueryRange))
	}
	start, end := v.Span()
	if err := domain.ValidateRange(start, end); err != nil {
		return retry(&f.Attempts, t, failure(reversedRange(start, end)))
	}

	events, err := r.events.QueryRange(ctx, start, end)
	if err != nil {
		r.logger.Error("query range failed", "user_id", t.userID, "start", start, "end", end, "error", err)
		return abort(msgQueryFailed)
	}
	if len(events) == 0 {
		return done(queryEmpty(start, end))
	}
	return done(queryFound(start, end), events...)
}
