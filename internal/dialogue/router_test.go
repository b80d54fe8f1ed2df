package dialogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/johpaz/smart-calendar-assistant/internal/assistant"
	"github.com/johpaz/smart-calendar-assistant/internal/dateparse"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/session"
	"github.com/johpaz/smart-calendar-assistant/internal/store"
)

type fakeFallback struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []assistant.FallbackRequest
}

func (f *fakeFallback) Respond(_ context.Context, req assistant.FallbackRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

type harness struct {
	router   *Router
	events   *store.MemoryStore
	sessions *session.MemoryStore
	fallback *fakeFallback
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	events := store.NewMemory()
	if _, err := events.SeedIfEmpty(context.Background(), store.SampleEvents()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := &harness{
		events:   events,
		sessions: session.NewMemoryStore(),
		fallback: &fakeFallback{reply: "Con gusto te ayudo."},
	}
	h.router = NewRouter(Options{
		Sessions: h.sessions,
		Events:   events,
		Parser:   dateparse.Fixed(domain.Date{Year: 2025, Month: time.March, Day: 6}),
		Fallback: h.fallback,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

// say sends a message and checks the reply status.
func (h *harness) say(t *testing.T, user, msg string, want Status) Reply {
	t.Helper()
	r := h.router.Handle(context.Background(), user, msg)
	if r.Status != want {
		t.Fatalf("Handle(%q) status = %s, want %s (message %q)", msg, r.Status, want, r.Message)
	}
	return r
}

func (h *harness) pendingAction(t *testing.T, user string) session.Action {
	t.Helper()
	c, err := h.sessions.Get(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	return c.PendingAction()
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	all, err := h.events.QueryRange(context.Background(), domain.Date{Year: 2000, Month: 1, Day: 1}, domain.Date{Year: 2100, Month: 1, Day: 1})
	if err != nil {
		t.Fatal(err)
	}
	return len(all)
}

func TestGreetingOnlyOnFirstContact(t *testing.T) {
	h := newHarness(t)

	first := h.say(t, "u1", "hola, ¿cómo estás?", StatusSuccess)
	if first.Message != Greeting+"Con gusto te ayudo." {
		t.Fatalf("unexpected first reply %q", first.Message)
	}
	second := h.say(t, "u1", "gracias", StatusSuccess)
	if strings.HasPrefix(second.Message, Greeting) {
		t.Fatalf("greeting repeated: %q", second.Message)
	}
	if got := h.fallback.calls[0].Persona; !strings.Contains(got, "6 de marzo de 2025") {
		t.Fatalf("persona should carry the reference date, got %q", got)
	}
	if h.fallback.calls[0].UserID != "u1" {
		t.Fatalf("fallback user id = %q", h.fallback.calls[0].UserID)
	}
}

func TestFallbackFailureApologizesAndClears(t *testing.T) {
	h := newHarness(t)
	h.fallback.err = assistant.ErrUnavailable

	r := h.say(t, "u1", "cuéntame un chiste", StatusError)
	if !strings.HasPrefix(r.Message, Greeting) || !strings.Contains(r.Message, msgFallbackFailed) {
		t.Fatalf("unexpected apology %q", r.Message)
	}
	if h.sessions.Len() != 0 {
		t.Fatal("context should be cleared after fallback failure")
	}
}

func TestCreateSequentialReachesConfirmationOnFifthTurn(t *testing.T) {
	h := newHarness(t)

	steps := []struct {
		msg    string
		action session.Action
		prompt string
	}{
		{"agendar", session.ActionCreate, msgAskName},
		{"Reunión de equipo", session.ActionCreate, msgAskDate},
		{"15 de marzo", session.ActionCreate, msgAskStart},
		{"a las 2 pm", session.ActionCreate, msgAskDuration},
		{"2 horas", session.ActionConfirmCreate, "¿Confirmas?"},
	}
	for i, s := range steps {
		r := h.say(t, "u1", s.msg, StatusPending)
		if !strings.Contains(r.Message, s.prompt) {
			t.Fatalf("turn %d: reply %q does not contain %q", i+1, r.Message, s.prompt)
		}
		if got := h.pendingAction(t, "u1"); got != s.action {
			t.Fatalf("turn %d: pending action %s, want %s", i+1, got, s.action)
		}
	}

	r := h.say(t, "u1", "sí", StatusSuccess)
	if len(r.Events) != 1 {
		t.Fatalf("expected created event in reply, got %+v", r.Events)
	}
	ev := r.Events[0]
	if ev.Name != "Reunión de equipo" || ev.Date.String() != "2025-03-15" || ev.Start.String() != "14:00" || ev.End.String() != "16:00" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if h.pendingAction(t, "u1") != session.ActionNone {
		t.Fatal("session should be cleared after success")
	}
	if h.count(t) != 3 {
		t.Fatalf("expected 3 events, got %d", h.count(t))
	}
}

func TestCreateNegativeConfirmationCancels(t *testing.T) {
	h := newHarness(t)
	for _, msg := range []string{"agendar", "Demo", "mañana", "10:00", "1 hora"} {
		h.say(t, "u1", msg, StatusPending)
	}
	r := h.say(t, "u1", "no", StatusSuccess)
	if r.Message != msgCreateCancel {
		t.Fatalf("unexpected cancel reply %q", r.Message)
	}
	if h.count(t) != 2 {
		t.Fatal("cancel must not touch the store")
	}
	if h.pendingAction(t, "u1") != session.ActionNone {
		t.Fatal("cancel must clear the session")
	}
}

func TestCreateUnclearConfirmationKeepsWaiting(t *testing.T) {
	h := newHarness(t)
	for _, msg := range []string{"agendar", "Demo", "mañana", "10:00", "1 hora"} {
		h.say(t, "u1", msg, StatusPending)
	}
	for _, msg := range []string{"quizás", "no sé", "tal vez", "déjame pensar"} {
		r := h.say(t, "u1", msg, StatusPending)
		if r.Message != msgCreateHint {
			t.Fatalf("%q: unexpected guidance %q", msg, r.Message)
		}
		if h.pendingAction(t, "u1") != session.ActionConfirmCreate {
			t.Fatalf("%q: should still wait for confirmation", msg)
		}
	}
	h.say(t, "u1", "sí", StatusSuccess)
}

func TestCreateConflictStaysInConfirmation(t *testing.T) {
	h := newHarness(t)

	// Existing "Llamada con cliente" is 13:30-14:30 on 2025-03-10.
	h.say(t, "u1", "agendar Demo, 10 de marzo, a las 14:00, 1 hora", StatusPending)
	if h.pendingAction(t, "u1") != session.ActionConfirmCreate {
		t.Fatalf("shorthand should fill every slot, action %s", h.pendingAction(t, "u1"))
	}
	r := h.say(t, "u1", "sí", StatusError)
	if !strings.Contains(r.Message, msgCreateConflict) {
		t.Fatalf("unexpected conflict reply %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionConfirmCreate {
		t.Fatal("conflict must keep the confirmation step")
	}
	h.say(t, "u1", "no", StatusSuccess)

	h.say(t, "u1", "agendar Demo, 10 de marzo, a las 12:30", StatusPending)
	r = h.say(t, "u1", "si", StatusSuccess)
	if got := r.Events[0]; got.Start.String() != "12:30" || got.End.String() != "13:30" {
		t.Fatalf("adjacent event should be created, got %+v", got)
	}
}

func TestCreateShorthandThenSequentialPrompts(t *testing.T) {
	h := newHarness(t)
	r := h.say(t, "u1", "crear", StatusPending)
	if !strings.Contains(r.Message, msgAskName) {
		t.Fatalf("expected name prompt, got %q", r.Message)
	}
	r = h.say(t, "u1", "Dentista, 20 de marzo", StatusPending)
	if r.Message != msgAskStart {
		t.Fatalf("expected start time prompt after shorthand, got %q", r.Message)
	}
	r = h.say(t, "u1", "9:30", StatusPending)
	if !strings.Contains(r.Message, "\"Dentista\" para el 2025-03-20 a las 09:30 con duración de 1 hora(s)") {
		t.Fatalf("unexpected confirmation %q", r.Message)
	}
}

func TestThreeFailedAttemptsClearSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "agendar", StatusPending)
	h.say(t, "u1", "Demo", StatusPending)

	h.say(t, "u1", "algún día", StatusError)
	h.say(t, "u1", "pronto", StatusError)
	if h.pendingAction(t, "u1") != session.ActionCreate {
		t.Fatal("two failures should keep the flow")
	}
	r := h.say(t, "u1", "cuando sea", StatusError)
	if !strings.Contains(r.Message, msgTooManyAttempts) {
		t.Fatalf("expected restart instruction, got %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionNone {
		t.Fatal("session should be cleared after the third failure")
	}
}

func TestSuccessResetsAttemptCounter(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "agendar", StatusPending)
	h.say(t, "u1", "Demo", StatusPending)
	h.say(t, "u1", "algún día", StatusError)
	h.say(t, "u1", "pronto", StatusError)
	h.say(t, "u1", "mañana", StatusPending)
	h.say(t, "u1", "temprano", StatusError)
	h.say(t, "u1", "tarde", StatusError)
	if h.pendingAction(t, "u1") != session.ActionCreate {
		t.Fatal("counter should have been reset by the valid date")
	}
}

func TestQueryFlow(t *testing.T) {
	h := newHarness(t)

	r := h.say(t, "u1", "qué tengo el 10 de marzo", StatusSuccess)
	if len(r.Events) != 2 || r.Events[0].Name != "Llamada con cliente" || r.Events[1].Name != "Revisión de código" {
		t.Fatalf("unexpected events %+v", r.Events)
	}
	if !strings.HasPrefix(r.Message, Greeting) {
		t.Fatalf("first reply should be greeted: %q", r.Message)
	}

	// The finished query cleared the context, so the greeting comes back.
	r = h.say(t, "u1", "consultar", StatusPending)
	if r.Message != Greeting+msgAskQueryRange {
		t.Fatalf("unexpected reprompt %q", r.Message)
	}
	r = h.say(t, "u1", "hoy", StatusSuccess)
	if len(r.Events) != 0 || !strings.Contains(r.Message, "No tienes eventos programados en el rango de 2025-03-06 a 2025-03-06") {
		t.Fatalf("unexpected empty reply %+v", r)
	}
}

func TestQueryReversedRangeIsRejected(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "consultar", StatusPending)
	r := h.say(t, "u1", "del 15 al 10 de marzo", StatusError)
	if !strings.Contains(r.Message, "anterior a la inicial") {
		t.Fatalf("unexpected validation reply %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionQuery {
		t.Fatal("query flow should stay active")
	}
	r = h.say(t, "u1", "del 8 al 12 de marzo", StatusSuccess)
	if len(r.Events) != 2 {
		t.Fatalf("expected 2 events, got %+v", r.Events)
	}
}

func TestDeleteFlow(t *testing.T) {
	h := newHarness(t)

	r := h.say(t, "u1", "eliminar revisión", StatusPending)
	if len(r.Events) != 1 || r.Events[0].Name != "Revisión de código" {
		t.Fatalf("unexpected candidates %+v", r.Events)
	}
	id := r.Events[0].ID

	h.say(t, "u1", "999", StatusError)
	if h.pendingAction(t, "u1") != session.ActionDelete {
		t.Fatal("bad id must not change the step")
	}

	r = h.say(t, "u1", " 2 ", StatusPending)
	if !strings.Contains(r.Message, "Vas a borrar el evento \"Revisión de código\"") {
		t.Fatalf("unexpected confirmation %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionConfirmDelete {
		t.Fatal("expected confirm-delete")
	}

	r = h.say(t, "u1", "sí", StatusSuccess)
	if r.Message != msgDeleted {
		t.Fatalf("unexpected reply %q", r.Message)
	}
	if _, err := h.events.Get(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("event should be gone, got %v", err)
	}
}

func TestDeleteAnythingButYesCancels(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "borrar llamada", StatusPending)
	h.say(t, "u1", "1", StatusPending)
	r := h.say(t, "u1", "mejor no", StatusSuccess)
	if r.Message != msgDeleteCancel {
		t.Fatalf("unexpected reply %q", r.Message)
	}
	if h.count(t) != 2 {
		t.Fatal("cancelled delete must not touch the store")
	}
}

func TestDeleteAsksForNameWhenTriggerIsBare(t *testing.T) {
	h := newHarness(t)
	r := h.say(t, "u1", "eliminar el evento", StatusPending)
	if !strings.HasSuffix(r.Message, msgAskDeleteName) {
		t.Fatalf("expected name prompt, got %q", r.Message)
	}
	r = h.say(t, "u1", "inexistente", StatusError)
	if !strings.Contains(r.Message, "No se encontraron eventos") {
		t.Fatalf("expected not-found, got %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionDelete {
		t.Fatal("not-found should stay in search")
	}
	r = h.say(t, "u1", "llamada", StatusPending)
	if len(r.Events) != 1 {
		t.Fatalf("expected one candidate, got %+v", r.Events)
	}
}

func TestUpdateFlowWalksFieldsAndApplies(t *testing.T) {
	h := newHarness(t)

	h.say(t, "u1", "modificar llamada", StatusPending)
	r := h.say(t, "u1", "1", StatusPending)
	if !strings.Contains(r.Message, `¿Deseas cambiar el campo "nombre"`) {
		t.Fatalf("expected name question, got %q", r.Message)
	}
	h.say(t, "u1", "no", StatusPending) // name
	h.say(t, "u1", "no", StatusPending) // date
	h.say(t, "u1", "sí", StatusPending) // start
	h.say(t, "u1", "12:00", StatusPending)
	h.say(t, "u1", "sí", StatusPending) // end
	r = h.say(t, "u1", "13:00", StatusPending)
	if !strings.Contains(r.Message, "HORA_INICIO: 13:30 → 12:00") || !strings.Contains(r.Message, "HORA_FIN: 14:30 → 13:00") {
		t.Fatalf("unexpected summary %q", r.Message)
	}
	if strings.Contains(r.Message, "NOMBRE") {
		t.Fatalf("unchanged fields should not be listed: %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionConfirmUpdate {
		t.Fatal("expected confirm-update")
	}

	r = h.say(t, "u1", "sí", StatusSuccess)
	got := r.Events[0]
	if got.Name != "Llamada con cliente" || got.Start.String() != "12:00" || got.End.String() != "13:00" {
		t.Fatalf("unexpected updated event %+v", got)
	}
}

func TestUpdateBadEndTimeNamesEndField(t *testing.T) {
	h := newHarness(t)

	h.say(t, "u1", "modificar llamada", StatusPending)
	h.say(t, "u1", "1", StatusPending)
	h.say(t, "u1", "no", StatusPending) // name
	h.say(t, "u1", "no", StatusPending) // date
	h.say(t, "u1", "no", StatusPending) // start
	h.say(t, "u1", "sí", StatusPending) // end
	r := h.say(t, "u1", "cuando termine", StatusError)
	if !strings.Contains(r.Message, msgBadEnd) {
		t.Fatalf("expected end-time message, got %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionUpdate {
		t.Fatal("one bad value should keep the flow")
	}
}

func TestUpdateKeepValueAndConflict(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "cambiar llamada", StatusPending)
	h.say(t, "u1", "1", StatusPending)
	h.say(t, "u1", "sí", StatusPending)
	h.say(t, "u1", "mantener", StatusPending)
	h.say(t, "u1", "no", StatusPending)
	h.say(t, "u1", "no", StatusPending)
	h.say(t, "u1", "sí", StatusPending)
	h.say(t, "u1", "15:30", StatusPending)

	r := h.say(t, "u1", "sí", StatusError)
	if !strings.Contains(r.Message, msgCreateConflict) {
		t.Fatalf("expected conflict, got %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionConfirmUpdate {
		t.Fatal("conflict must keep the confirmation step")
	}
	r = h.say(t, "u1", "no", StatusSuccess)
	if r.Message != msgUpdateCancel {
		t.Fatalf("unexpected reply %q", r.Message)
	}
}

func TestUpdateInvalidIntervalClears(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "editar llamada", StatusPending)
	h.say(t, "u1", "1", StatusPending)
	h.say(t, "u1", "no", StatusPending)
	h.say(t, "u1", "no", StatusPending)
	h.say(t, "u1", "sí", StatusPending)
	h.say(t, "u1", "a las 6 pm", StatusPending)
	h.say(t, "u1", "no", StatusPending)

	r := h.say(t, "u1", "sí", StatusError)
	if !strings.Contains(r.Message, msgBadInterval) {
		t.Fatalf("unexpected reply %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionNone {
		t.Fatal("invalid interval should clear the session")
	}
}

func TestUpdateYesNoReprompts(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "editar llamada", StatusPending)
	h.say(t, "u1", "1", StatusPending)
	r := h.say(t, "u1", "tal vez", StatusError)
	if !strings.Contains(r.Message, msgYesOrNo) {
		t.Fatalf("unexpected reprompt %q", r.Message)
	}
}

func TestCancelWordAbandonsAnyFlow(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "agendar", StatusPending)
	r := h.say(t, "u1", "Cancelar", StatusSuccess)
	if r.Message != msgCancelled {
		t.Fatalf("unexpected reply %q", r.Message)
	}
	if h.pendingAction(t, "u1") != session.ActionNone {
		t.Fatal("cancel should clear")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.say(t, "alice", "agendar", StatusPending)
	h.say(t, "bob", "consultar", StatusPending)
	h.say(t, "alice", "Demo", StatusPending)

	if h.pendingAction(t, "alice") != session.ActionCreate || h.pendingAction(t, "bob") != session.ActionQuery {
		t.Fatal("flows leaked between users")
	}
}

func TestEmptyMessage(t *testing.T) {
	h := newHarness(t)
	r := h.say(t, "u1", "   ", StatusError)
	if !strings.Contains(r.Message, msgEmptyMessage) {
		t.Fatalf("unexpected reply %q", r.Message)
	}
	if h.sessions.Len() != 0 {
		t.Fatal("empty message must not create a session")
	}
}

type failingSearchStore struct {
	*store.MemoryStore
}

func (failingSearchStore) SearchByName(context.Context, string) ([]domain.Event, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureKeepsPriorState(t *testing.T) {
	sessions := session.NewMemoryStore()
	r := NewRouter(Options{
		Sessions: sessions,
		Events:   failingSearchStore{store.NewMemory()},
		Parser:   dateparse.Fixed(domain.Date{Year: 2025, Month: time.March, Day: 6}),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx := context.Background()

	if got := r.Handle(ctx, "u1", "borrar"); got.Status != StatusPending {
		t.Fatalf("unexpected reply %+v", got)
	}
	got := r.Handle(ctx, "u1", "revisión")
	if got.Status != StatusError || !strings.Contains(got.Message, msgStoreUnavailable) {
		t.Fatalf("unexpected reply %+v", got)
	}
	c, _ := sessions.Get(ctx, "u1")
	f, ok := c.Flow.(*session.DeleteFlow)
	if !ok || f.Step != session.StepSearch || f.Attempts != 0 {
		t.Fatalf("prior state should be kept, got %#v", c.Flow)
	}
}

// mapRepo is a SessionRepository over a plain map.
type mapRepo struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func (m *mapRepo) GetSession(_ context.Context, userID string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.rows[userID]
	return raw, ok, nil
}

func (m *mapRepo) PutSession(_ context.Context, userID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[userID] = data
	return nil
}

func (m *mapRepo) DeleteSession(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, userID)
	return nil
}

func (m *mapRepo) CleanupExpiredSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func TestUnreadableSessionStartsFresh(t *testing.T) {
	repo := &mapRepo{rows: map[string][]byte{
		"u1": []byte(`{"greeted":true,"flow":{"kind":"agendar","state":{}}}`),
	}}
	sessions := session.NewRepositoryStore(repo)
	r := NewRouter(Options{
		Sessions: sessions,
		Events:   store.NewMemory(),
		Parser:   dateparse.Fixed(domain.Date{Year: 2025, Month: time.March, Day: 6}),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx := context.Background()

	got := r.Handle(ctx, "u1", "agendar")
	if got.Status != StatusPending || !strings.HasPrefix(got.Message, Greeting) || !strings.Contains(got.Message, msgAskName) {
		t.Fatalf("unexpected reply %+v", got)
	}
	c, err := sessions.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("corrupt row should be replaced, got %v", err)
	}
	if c.PendingAction() != session.ActionCreate || !c.Greeted {
		t.Fatalf("unexpected context %+v", c)
	}

	repo.rows["u2"] = []byte(`not json`)
	if got := r.Handle(ctx, "u2", "cancelar"); got.Status == StatusError {
		t.Fatalf("cancel on unreadable session failed: %+v", got)
	}
	if _, err := sessions.Get(ctx, "u2"); err != nil {
		t.Fatalf("u2 should be readable after one turn, got %v", err)
	}
}

type panickingStore struct {
	*store.MemoryStore
}

func (panickingStore) QueryRange(context.Context, domain.Date, domain.Date) ([]domain.Event, error) {
	panic("boom")
}

func TestPanicIsRecovered(t *testing.T) {
	r := NewRouter(Options{
		Sessions: session.NewMemoryStore(),
		Events:   panickingStore{store.NewMemory()},
		Parser:   dateparse.Fixed(domain.Date{Year: 2025, Month: time.March, Day: 6}),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	got := r.Handle(context.Background(), "u1", "consultar hoy")
	if got.Status != StatusError || !strings.Contains(got.Message, msgInternalError) {
		t.Fatalf("unexpected reply %+v", got)
	}
	// The per-user lock must have been released.
	done := make(chan struct{})
	go func() {
		r.Handle(context.Background(), "u1", "hola")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock not released after panic")
	}
}

func TestConcurrentTurnsSameUser(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.router.Handle(context.Background(), "u1", "consultar hoy")
		}()
	}
	wg.Wait()
	if h.pendingAction(t, "u1") != session.ActionNone {
		t.Fatal("completed queries should leave the session idle")
	}
}
