package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/johpaz/smart-calendar-assistant/internal/assistant"
	"github.com/johpaz/smart-calendar-assistant/internal/dialogue"
	"github.com/johpaz/smart-calendar-assistant/internal/identity"
)

// ChatRequest is the body of POST /api/chat and of websocket frames.
type ChatRequest struct {
	Message string `json:"message"`
}

// TranscribeResponse is returned by POST /api/transcribe.
type TranscribeResponse struct {
	Status     dialogue.Status `json:"status"`
	Transcript string          `json:"transcript"`
	Response   *dialogue.Reply `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
}

const msgTranscriptionFailed = "No pude transcribir el audio. Por favor intenta nuevamente o escribe tu mensaje."

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req ChatRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	reply := h.turn(r.Context(), userID, "chat_http", req.Message)
	JSON(w, http.StatusOK, reply)
}

// HandleTranscribe handles POST /api/transcribe: a multipart "audio" file is
// transcribed and the transcript goes through the chat pipeline.
func (h *Handler) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if r.ContentLength > h.maxAudio {
		Error(w, http.StatusRequestEntityTooLarge, "audio file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudio)
	file, header, err := r.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		Error(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(audio) == 0 {
		Error(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	started := time.Now()
	transcript, err := h.assistant.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		slog.Error("Audio transcription failed",
			"user_id", userID,
			"filename", header.Filename,
			"bytes", len(audio),
			"error", err)
		status := http.StatusBadGateway
		if _, disabled := h.assistant.(assistant.Unavailable); disabled {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, TranscribeResponse{Status: dialogue.StatusError, Error: msgTranscriptionFailed})
		return
	}
	slog.Info("Audio transcribed",
		"user_id", userID,
		"bytes", len(audio),
		"duration", time.Since(started))

	reply := h.turn(r.Context(), userID, "transcribe", transcript)
	JSON(w, http.StatusOK, TranscribeResponse{
		Status:     reply.Status,
		Transcript: transcript,
		Response:   &reply,
	})
}

// turn runs one message through the router and records it in the
// conversation log.
func (h *Handler) turn(ctx context.Context, userID, channel, message string) dialogue.Reply {
	reqID := chiMiddleware.GetReqID(ctx)
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_user_message",
		ContentRaw: message,
		Meta:       map[string]any{"request_id": reqID},
	})

	reply := h.router.Handle(ctx, userID, message)

	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Message,
		Status:     string(reply.Status),
		Meta:       map[string]any{"request_id": reqID, "events": len(reply.Events)},
	})
	return reply
}
