package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/johpaz/smart-calendar-assistant/internal/assistant"
)

const healthTimeout = 3 * time.Second

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Assistant string `json:"assistant"`
}

// Health reports store reachability and assistant availability. Only a
// failing store makes the service unhealthy; without the assistant the
// calendar flows keep working.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok", Assistant: "ok"}
	status := http.StatusOK

	if err := h.events.Ping(ctx); err != nil {
		slog.Warn("Health check: store unreachable", "error", err)
		resp.Status = "degraded"
		resp.Store = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if _, disabled := h.assistant.(assistant.Unavailable); disabled {
		resp.Assistant = "disabled"
	} else if err := h.assistant.Health(ctx); err != nil {
		slog.Warn("Health check: assistant unavailable", "error", err)
		resp.Assistant = "unavailable"
	}

	JSON(w, status, resp)
}
