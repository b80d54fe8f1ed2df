package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/johpaz/smart-calendar-assistant/internal/calendar"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

// eventRequest is the body of POST /api/events. Either end_time or
// duration_hours (default 1) sets the end.
type eventRequest struct {
	Name          string        `json:"name"`
	Date          *domain.Date  `json:"date"`
	Start         *domain.Clock `json:"start_time"`
	End           *domain.Clock `json:"end_time"`
	DurationHours int           `json:"duration_hours"`
}

type eventsResponse struct {
	Start  domain.Date    `json:"start"`
	End    domain.Date    `json:"end"`
	Events []domain.Event `json:"events"`
}

type conflictResponse struct {
	Error    string       `json:"error"`
	Conflict domain.Event `json:"conflict"`
}

// ImportResponse summarizes POST /api/events/import.
type ImportResponse struct {
	Created   []domain.Event     `json:"created"`
	Conflicts int                `json:"conflicts"`
	Invalid   int                `json:"invalid"`
	Skipped   []calendar.Skipped `json:"skipped,omitempty"`
}

// ListEvents handles GET /api/events?start=&end= or ?date=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeFromQuery(w, r)
	if !ok {
		return
	}
	events, err := h.events.QueryRange(r.Context(), start, end)
	if err != nil {
		h.storeError(w, "query events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	JSON(w, http.StatusOK, eventsResponse{Start: start, End: end, Events: events})
}

// SearchEvents handles GET /api/events/search?name=.
func (h *Handler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	events, err := h.events.SearchByName(r.Context(), name)
	if err != nil {
		h.storeError(w, "search events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	JSON(w, http.StatusOK, map[string]any{"events": events})
}

// GetEvent handles GET /api/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ev, err := h.events.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, "get event", err)
		return
	}
	JSON(w, http.StatusOK, ev)
}

// CreateEvent handles POST /api/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Date == nil || req.Start == nil {
		Error(w, http.StatusBadRequest, "date and start_time are required")
		return
	}
	end := req.Start.AddHours(max(req.DurationHours, 1))
	if req.End != nil {
		end = *req.End
	}

	created, err := h.events.Create(r.Context(), domain.NewEvent{
		Name:  req.Name,
		Date:  *req.Date,
		Start: *req.Start,
		End:   end,
	})
	if err != nil {
		h.storeError(w, "create event", err)
		return
	}
	slog.Info("Event created", "event_id", created.ID, "date", created.Date, "start", created.Start)
	JSON(w, http.StatusCreated, created)
}

// UpdateEvent handles PUT /api/events/{id} with a partial body.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var patch domain.EventPatch
	if !h.decodeBody(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		Error(w, http.StatusBadRequest, "no fields to update")
		return
	}

	updated, err := h.events.Update(r.Context(), id, patch)
	if err != nil {
		h.storeError(w, "update event", err)
		return
	}
	slog.Info("Event updated", "event_id", id)
	JSON(w, http.StatusOK, updated)
}

// DeleteEvent handles DELETE /api/events/{id}.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.events.Delete(r.Context(), id); err != nil {
		h.storeError(w, "delete event", err)
		return
	}
	slog.Info("Event deleted", "event_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ExportEvents handles GET /api/events.ics?start=&end=.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeFromQuery(w, r)
	if !ok {
		return
	}
	events, err := h.events.QueryRange(r.Context(), start, end)
	if err != nil {
		h.storeError(w, "query events", err)
		return
	}

	var buf bytes.Buffer
	if err := calendar.Export(&buf, events, calendar.ExportOptions{Location: h.loc}); err != nil {
		if errors.Is(err, calendar.ErrNoEvents) {
			Error(w, http.StatusNotFound, "no events in range")
			return
		}
		slog.Error("Failed to export calendar", "error", err)
		Error(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="agenda.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("Failed to write calendar", "error", err)
	}
}

// ImportEvents handles POST /api/events/import with an iCalendar body.
// Entries that overlap existing events are counted and left out.
func (h *Handler) ImportEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		Error(w, http.StatusRequestEntityTooLarge, "calendar too large")
		return
	}
	parsed, err := calendar.Import(bytes.NewReader(body), calendar.ImportOptions{Location: h.loc})
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid calendar")
		return
	}

	resp := ImportResponse{Created: []domain.Event{}, Skipped: parsed.Skipped}
	for _, ne := range parsed.Events {
		created, err := h.events.Create(r.Context(), ne)
		switch {
		case errors.Is(err, domain.ErrConflict):
			resp.Conflicts++
		case errors.Is(err, domain.ErrInvalidEvent):
			resp.Invalid++
		case err != nil:
			h.storeError(w, "import event", err)
			return
		default:
			resp.Created = append(resp.Created, created)
		}
	}
	slog.Info("Calendar imported",
		"created", len(resp.Created),
		"conflicts", resp.Conflicts,
		"invalid", resp.Invalid,
		"skipped", len(resp.Skipped))
	JSON(w, http.StatusOK, resp)
}

// storeError maps store errors to status codes.
func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		JSON(w, http.StatusConflict, conflictResponse{Error: err.Error(), Conflict: conflict.Existing})
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, "event not found")
	case errors.Is(err, domain.ErrInvalidEvent), errors.Is(err, domain.ErrInvalidRange):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Event store failure", "op", op, "error", err)
		Error(w, http.StatusInternalServerError, "event store unavailable")
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid event id")
		return 0, false
	}
	return id, true
}

// rangeFromQuery reads ?date= or ?start=&end= (end defaults to start).
func rangeFromQuery(w http.ResponseWriter, r *http.Request) (domain.Date, domain.Date, bool) {
	q := r.URL.Query()
	startText := q.Get("start")
	if d := q.Get("date"); d != "" {
		startText = d
	}
	if startText == "" {
		Error(w, http.StatusBadRequest, "start or date is required")
		return domain.Date{}, domain.Date{}, false
	}
	start, err := domain.ParseDate(startText)
	if err != nil {
		Error(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
		return domain.Date{}, domain.Date{}, false
	}
	end := start
	if e := q.Get("end"); e != "" && q.Get("date") == "" {
		if end, err = domain.ParseDate(e); err != nil {
			Error(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return domain.Date{}, domain.Date{}, false
		}
	}
	if err := domain.ValidateRange(start, end); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return domain.Date{}, domain.Date{}, false
	}
	return start, end, true
}
