// Package api provides HTTP handlers for the agenda API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/johpaz/smart-calendar-assistant/internal/assistant"
	"github.com/johpaz/smart-calendar-assistant/internal/dialogue"
	"github.com/johpaz/smart-calendar-assistant/internal/store"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// defaultMaxAudioSize bounds uploaded audio clips (10MB).
const defaultMaxAudioSize = 10 << 20

// Deps are the collaborators a Handler serves requests with.
type Deps struct {
	Router    *dialogue.Router
	Events    store.EventStore
	Assistant assistant.Client
	// Limiter throttles chat turns per user. Nil disables limiting.
	Limiter         *RateLimiter
	ConversationLog ConversationLogger

	MaxRequestBodySize int64
	MaxAudioSize       int64
	AllowedOrigins     []string
	IsDev              bool
	// Location wall-clock event times belong to in ICS import and export.
	Location *time.Location
}

// Handler serves the chat, event and health endpoints.
type Handler struct {
	router    *dialogue.Router
	events    store.EventStore
	assistant assistant.Client
	limiter   *RateLimiter
	log       ConversationLogger

	maxBody        int64
	maxAudio       int64
	allowedOrigins []string
	isDev          bool
	loc            *time.Location
}

// NewHandler creates a new Handler, filling defaults for optional deps.
func NewHandler(d Deps) *Handler {
	if d.Assistant == nil {
		d.Assistant = assistant.Unavailable{}
	}
	if d.ConversationLog == nil {
		d.ConversationLog = noopConversationLogger{}
	}
	if d.MaxRequestBodySize <= 0 {
		d.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if d.MaxAudioSize <= 0 {
		d.MaxAudioSize = defaultMaxAudioSize
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return &Handler{
		router:         d.Router,
		events:         d.Events,
		assistant:      d.Assistant,
		limiter:        d.Limiter,
		log:            d.ConversationLog,
		maxBody:        d.MaxRequestBodySize,
		maxAudio:       d.MaxAudioSize,
		allowedOrigins: d.AllowedOrigins,
		isDev:          d.IsDev,
		loc:            d.Location,
	}
}

// RegisterRoutes registers every API route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/chat", h.HandleChat)
		r.Post("/transcribe", h.HandleTranscribe)

		r.Get("/events", h.ListEvents)
		r.Post("/events", h.CreateEvent)
		r.Get("/events.ics", h.ExportEvents)
		r.Post("/events/import", h.ImportEvents)
		r.Get("/events/search", h.SearchEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Put("/events/{id}", h.UpdateEvent)
		r.Delete("/events/{id}", h.DeleteEvent)
	})
	r.Get("/ws/chat", h.ServeChatSocket)
}

// Close releases handler resources.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a size-limited JSON body into v and writes the error
// response itself when it fails.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
