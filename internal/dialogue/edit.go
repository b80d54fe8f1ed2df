package dialogue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/johpaz/smart-calendar-assistant/internal/dateparse"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/session"
)

// searchResult is the shared outcome of the search step of update and delete.
type searchResult struct {
	out        outcome
	candidates []domain.Event
}

// search looks events up by name. On the trigger turn the keyword and filler
// words are removed first; an empty remainder asks for a name.
func (r *Router) search(ctx context.Context, attempts *int, t turn, askName, action string) searchResult {
	name := trimFillers(t.text)
	if t.trigger {
		name = stripTrigger(t.text, t.keyword)
	}
	if name == "" {
		if t.trigger {
			return searchResult{out: pending(askName)}
		}
		return searchResult{out: retry(attempts, t, pending(askName))}
	}

	found, err := r.events.SearchByName(ctx, name)
	if err != nil {
		r.logger.Error("search by name failed", "user_id", t.userID, "name", name, "error", err)
		return searchResult{out: storeFailure()}
	}
	if len(found) == 0 {
		return searchResult{out: retry(attempts, t, failure(notFoundByName(name)))}
	}
	*attempts = 0
	return searchResult{out: pending(candidateList(found, action), found...), candidates: found}
}

// selectCandidate parses an id typed by the user. A miss leaves the session
// untouched.
func selectCandidate(candidates []domain.Event, text string) (domain.Event, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return domain.Event{}, false
	}
	return session.FindCandidate(candidates, id)
}

func (r *Router) stepDelete(ctx context.Context, f *session.DeleteFlow, t turn) outcome {
	switch f.Step {
	case session.StepSearch:
		res := r.search(ctx, &f.Attempts, t, msgAskDeleteName, "borrar")
		if res.candidates != nil {
			f.Candidates = res.candidates
			f.Step = session.StepSelect
		}
		return res.out

	case session.StepSelect:
		ev, ok := selectCandidate(f.Candidates, t.text)
		if !ok {
			return outcome{reply: failure(msgBadID).reply, persist: persistSkip}
		}
		f.Selected = &ev
		f.Step = session.StepConfirm
		return pending(deleteConfirmation(ev))

	case session.StepConfirm:
		if !isYes(t.lower) || f.Selected == nil {
			return done(msgDeleteCancel)
		}
		err := r.events.Delete(ctx, f.Selected.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return abort(msgDeleteFailed)
		case err != nil:
			r.logger.Error("delete event failed", "user_id", t.userID, "event_id", f.Selected.ID, "error", err)
			return storeFailure()
		}
		return done(msgDeleted, *f.Selected)
	}
	return abort(msgInternalError)
}

func (r *Router) stepUpdate(ctx context.Context, f *session.UpdateFlow, t turn) outcome {
	switch f.Step {
	case session.StepSearch:
		res := r.search(ctx, &f.Attempts, t, msgAskEditName, "editar")
		if res.candidates != nil {
			f.Candidates = res.candidates
			f.Step = session.StepSelect
		}
		return res.out

	case session.StepSelect:
		ev, ok := selectCandidate(f.Candidates, t.text)
		if !ok {
			return outcome{reply: failure(msgBadID).reply, persist: persistSkip}
		}
		f.Selected = &ev
		f.Step = session.StepFields
		f.FieldIndex = 0
		f.AwaitingValue = false
		f.Changes = domain.EventPatch{}
		return pending("✅ Seleccionaste:\n" + describeEvent(ev) + "\n" + askChangeField(ev, f.CurrentField()))

	case session.StepFields:
		if f.Selected == nil {
			return abort(msgInternalError)
		}
		if f.AwaitingValue {
			return r.readFieldValue(f, t)
		}
		switch {
		case isYes(t.lower):
			f.AwaitingValue = true
			f.Attempts = 0
			return pending(askFieldValue(*f.Selected, f.CurrentField()))
		case isNo(t.lower):
			keepField(&f.Changes, *f.Selected, f.CurrentField())
			return advanceField(f)
		default:
			return retry(&f.Attempts, t, failure(msgYesOrNo))
		}

	case session.StepConfirm:
		return r.confirmUpdate(ctx, f, t)
	}
	return abort(msgInternalError)
}

func (r *Router) readFieldValue(f *session.UpdateFlow, t turn) outcome {
	field := f.CurrentField()
	if isKeep(t.lower) {
		keepField(&f.Changes, *f.Selected, field)
		return advanceField(f)
	}

	switch field {
	case session.FieldName:
		name := strings.TrimSpace(t.text)
		if name == "" || utf8.RuneCountInString(name) > domain.MaxEventNameLength {
			return retry(&f.Attempts, t, failure(msgBadName))
		}
		f.Changes.Name = &name
	case session.FieldDate:
		v, err := r.parser.Date(t.text)
		if err != nil {
			return retry(&f.Attempts, t, failure(msgBadDate))
		}
		d := dateparse.First(v)
		f.Changes.Date = &d
	case session.FieldStart, session.FieldEnd:
		c, err := r.parser.Time(t.text)
		if err != nil {
			msg := msgBadStart
			if field == session.FieldEnd {
				msg = msgBadEnd
			}
			return retry(&f.Attempts, t, failure(msg))
		}
		if field == session.FieldStart {
			f.Changes.Start = &c
		} else {
			f.Changes.End = &c
		}
	}
	return advanceField(f)
}

// keepField records the current value of a field as its new value.
func keepField(p *domain.EventPatch, e domain.Event, field session.Field) {
	switch field {
	case session.FieldName:
		name := e.Name
		p.Name = &name
	case session.FieldDate:
		d := e.Date
		p.Date = &d
	case session.FieldStart:
		c := e.Start
		p.Start = &c
	case session.FieldEnd:
		c := e.End
		p.End = &c
	}
}

func advanceField(f *session.UpdateFlow) outcome {
	f.FieldIndex++
	f.AwaitingValue = false
	f.Attempts = 0
	if next := f.CurrentField(); next != "" {
		return pending(askChangeField(*f.Selected, next))
	}
	f.Step = session.StepConfirm
	return pending(updateSummary(*f.Selected, f.Changes))
}

func (r *Router) confirmUpdate(ctx context.Context, f *session.UpdateFlow, t turn) outcome {
	if !isYes(t.lower) || f.Selected == nil {
		return done(msgUpdateCancel)
	}

	updated, err := r.events.Update(ctx, f.Selected.ID, f.Changes)
	var cerr *domain.ConflictError
	switch {
	case errors.As(err, &cerr):
		r.logger.Info("update rejected by conflict", "user_id", t.userID, "event_id", f.Selected.ID, "existing_id", cerr.Existing.ID)
		return failure(msgCreateConflict)
	case errors.Is(err, domain.ErrInvalidEvent):
		return abort(msgBadInterval)
	case errors.Is(err, domain.ErrNotFound):
		return abort(msgUpdateFailed)
	case err != nil:
		r.logger.Error("update event failed", "user_id", t.userID, "event_id", f.Selected.ID, "error", err)
		return storeFailure()
	}
	return done(msgUpdated, updated)
}
