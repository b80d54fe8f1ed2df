// Package dialogue runs the multi-turn conversation: it classifies fresh
// messages, resumes in-progress flows and fills the slots each calendar
// operation needs before touching the event store.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/johpaz/smart-calendar-assistant/internal/assistant"
	"github.com/johpaz/smart-calendar-assistant/internal/dateparse"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/intent"
	"github.com/johpaz/smart-calendar-assistant/internal/session"
	"github.com/johpaz/smart-calendar-assistant/internal/store"
)

// Status classifies a reply for clients.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// Reply is the outcome of one turn.
type Reply struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Events  []domain.Event `json:"events,omitempty"`
}

// MaxAttempts is how many consecutive failed interpretations a step tolerates.
// The next failure clears the session.
const MaxAttempts = 2

// Router dispatches messages to flows and owns session persistence.
type Router struct {
	sessions   session.Store
	events     store.EventStore
	classifier *intent.Classifier
	parser     *dateparse.Parser
	fallback   assistant.Responder
	locker     *session.Locker
	logger     *slog.Logger
}

// Options configures a Router. Sessions, Events and Parser are required.
type Options struct {
	Sessions   session.Store
	Events     store.EventStore
	Classifier *intent.Classifier
	Parser     *dateparse.Parser
	Fallback   assistant.Responder
	Logger     *slog.Logger
}

// NewRouter builds a Router, filling defaults for optional collaborators.
func NewRouter(opts Options) *Router {
	if opts.Classifier == nil {
		opts.Classifier = intent.NewClassifier(intent.DefaultLexicon())
	}
	if opts.Parser == nil {
		opts.Parser = dateparse.New(nil)
	}
	if opts.Fallback == nil {
		opts.Fallback = assistant.Unavailable{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		sessions:   opts.Sessions,
		events:     opts.Events,
		classifier: opts.Classifier,
		parser:     opts.Parser,
		fallback:   opts.Fallback,
		locker:     session.NewLocker(),
		logger:     opts.Logger,
	}
}

// persistence says what to do with the session after a turn.
type persistence int

const (
	persistSave  persistence = iota // Put the mutated context
	persistClear                    // Clear the context
	persistSkip                     // leave the stored context untouched
)

// turn is the input handed to a flow step.
type turn struct {
	userID  string
	text    string // trimmed original message
	lower   string // lowercased text
	trigger bool   // message that started the flow
	keyword string // matched intent keyword, set on trigger turns
}

// outcome is what a flow step produces.
type outcome struct {
	reply   Reply
	persist persistence
}

func pending(msg string, events ...domain.Event) outcome {
	return outcome{reply: Reply{Status: StatusPending, Message: msg, Events: events}}
}

func failure(msg string) outcome {
	return outcome{reply: Reply{Status: StatusError, Message: warn(msg)}}
}

func done(msg string, events ...domain.Event) outcome {
	return outcome{reply: Reply{Status: StatusSuccess, Message: msg, Events: events}, persist: persistClear}
}

func abort(msg string) outcome {
	return outcome{reply: Reply{Status: StatusError, Message: warn(msg)}, persist: persistClear}
}

func storeFailure() outcome {
	return outcome{reply: Reply{Status: StatusError, Message: warn(msgStoreUnavailable)}, persist: persistSkip}
}

// retry counts a failed interpretation against attempts. Trigger messages are
// never counted. Past MaxAttempts the session is cleared.
func retry(attempts *int, in turn, out outcome) outcome {
	if in.trigger {
		return out
	}
	*attempts++
	if *attempts > MaxAttempts {
		return abort(msgTooManyAttempts)
	}
	return out
}

// Handle processes one message for a user and returns the reply. Turns from
// the same user are serialized; Handle never panics.
func (r *Router) Handle(ctx context.Context, userID, message string) (reply Reply) {
	unlock := r.locker.Lock(userID)
	defer unlock()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while handling message",
				"user_id", userID,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))
			reply = Reply{Status: StatusError, Message: warn(msgInternalError)}
		}
	}()

	text := strings.TrimSpace(message)
	if text == "" {
		return Reply{Status: StatusError, Message: warn(msgEmptyMessage)}
	}

	sc, err := r.sessions.Get(ctx, userID)
	switch {
	case errors.Is(err, session.ErrCorrupt):
		r.logger.Warn("discarding unreadable session", "user_id", userID, "error", err)
		if err := r.sessions.Clear(ctx, userID); err != nil {
			r.logger.Error("failed to clear session", "user_id", userID, "error", err)
			return Reply{Status: StatusError, Message: warn(msgInternalError)}
		}
		sc = session.Context{}
	case err != nil:
		r.logger.Error("failed to load session", "user_id", userID, "error", err)
		return Reply{Status: StatusError, Message: warn(msgInternalError)}
	}

	in := turn{userID: userID, text: text, lower: strings.ToLower(text)}
	detected := intent.None
	greeting := ""

	var out outcome
	switch {
	case sc.Flow != nil && isCancel(in.lower):
		out = done(msgCancelled)
	case sc.Flow != nil:
		out = r.resume(ctx, &sc, in)
	default:
		if !sc.Greeted {
			greeting = Greeting
			sc.Greeted = true
		}
		detected, in.keyword = r.classifier.Classify(text)
		in.trigger = true
		out = r.start(ctx, &sc, detected, in)
	}

	out.reply.Message = greeting + out.reply.Message
	r.persist(ctx, userID, sc, out.persist)

	action := sc.PendingAction()
	if out.persist == persistClear {
		action = session.ActionNone
	}
	r.logger.Info("chat turn",
		"user_id", userID,
		"intent", detected,
		"pending_action", action,
		"status", out.reply.Status,
		"persist", out.persist.String())
	return out.reply
}

func (r *Router) start(ctx context.Context, sc *session.Context, in intent.Intent, t turn) outcome {
	switch in {
	case intent.Query:
		f := &session.QueryFlow{}
		sc.Flow = f
		return r.stepQuery(ctx, f, t)
	case intent.Create:
		f := &session.CreateFlow{}
		sc.Flow = f
		return r.stepCreate(ctx, f, t)
	case intent.Update:
		f := &session.UpdateFlow{Step: session.StepSearch}
		sc.Flow = f
		return r.stepUpdate(ctx, f, t)
	case intent.Delete:
		f := &session.DeleteFlow{Step: session.StepSearch}
		sc.Flow = f
		return r.stepDelete(ctx, f, t)
	default:
		return r.converse(ctx, t)
	}
}

func (r *Router) resume(ctx context.Context, sc *session.Context, t turn) outcome {
	switch f := sc.Flow.(type) {
	case *session.QueryFlow:
		return r.stepQuery(ctx, f, t)
	case *session.CreateFlow:
		return r.stepCreate(ctx, f, t)
	case *session.UpdateFlow:
		return r.stepUpdate(ctx, f, t)
	case *session.DeleteFlow:
		return r.stepDelete(ctx, f, t)
	default:
		r.logger.Warn("unknown flow in session", "user_id", t.userID, "flow", fmt.Sprintf("%T", f))
		return abort(msgInternalError)
	}
}

// converse hands unclassified text to the fallback responder.
func (r *Router) converse(ctx context.Context, t turn) outcome {
	content, err := r.fallback.Respond(ctx, assistant.FallbackRequest{
		Persona: assistant.Persona(r.parser.Reference()),
		UserID:  t.userID,
		Message: t.text,
	})
	if err != nil {
		r.logger.Warn("fallback responder failed", "user_id", t.userID, "error", err)
		return abort(msgFallbackFailed)
	}
	return outcome{reply: Reply{Status: StatusSuccess, Message: content}}
}

func (r *Router) persist(ctx context.Context, userID string, sc session.Context, p persistence) {
	var err error
	switch p {
	case persistSave:
		err = r.sessions.Put(ctx, userID, sc)
	case persistClear:
		err = r.sessions.Clear(ctx, userID)
	case persistSkip:
		return
	}
	if err != nil {
		r.logger.Error("failed to persist session", "user_id", userID, "error", err)
	}
}

func (p persistence) String() string {
	switch p {
	case persistSave:
		return "save"
	case persistClear:
		return "clear"
	default:
		return "skip"
	}
}
