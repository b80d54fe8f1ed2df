// Package assistant talks to the hosted language-model service used for
// free-form conversation and speech transcription.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

// ErrUnavailable wraps every failure to reach or use the assistant service.
var ErrUnavailable = errors.New("assistant unavailable")

const personaTemplate = `Eres un asistente de agenda inteligente y conversacional llamado Agente Sofía. Tu personalidad es amable, profesional y orientada al servicio al cliente.
Funciones principales:
1. Saludar al usuario de forma cálida 😊 (solo una vez por conversación, a menos que se reinicie el contexto).
2. Ayudar en la gestión de la agenda, programando reuniones y verificando conflictos de horario.
3. Responder preguntas generales y brindar asistencia al cliente.

Normas:
- Emplea emojis apropiados para transmitir calidez y profesionalismo.
- Sé conciso pero amigable en tus respuestas.
- Incluye tu nombre (Agente Sofía) en las respuestas cuando corresponda.
- Si el usuario quiere consultar la agenda y no especifica un rango de fechas, pídele un rango (ej. "del 10 al 15 de marzo").
- Interpreta términos como "hoy", "mañana" o rangos como "del 10 al 15 de marzo" basándote en la fecha actual (%s).
- Si no hay eventos en el rango consultado, responde amablemente y ofrece agendar uno.`

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// Persona returns the system prompt sent with every fallback request, anchored
// to the reference date relative words are resolved against.
func Persona(ref domain.Date) string {
	return fmt.Sprintf(personaTemplate, fmt.Sprintf("%d de %s de %d", ref.Day, monthNames[ref.Month-1], ref.Year))
}

// FallbackRequest is a message the dialogue layer could not classify.
type FallbackRequest struct {
	Persona string
	UserID  string
	Message string
}

// Responder produces a conversational reply.
type Responder interface {
	Respond(ctx context.Context, req FallbackRequest) (string, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Client is the full assistant surface used by the server.
type Client interface {
	Responder
	Transcriber
	Health(ctx context.Context) error
	Close()
}

// Unavailable is the Client used when no assistant address is configured.
type Unavailable struct{}

// Respond always fails.
func (Unavailable) Respond(context.Context, FallbackRequest) (string, error) {
	return "", ErrUnavailable
}

// Transcribe always fails.
func (Unavailable) Transcribe(context.Context, []byte, string) (string, error) {
	return "", ErrUnavailable
}

// Health always fails.
func (Unavailable) Health(context.Context) error { return ErrUnavailable }

// Close is a no-op.
func (Unavailable) Close() {}

var (
	_ Client = Unavailable{}
	_ Client = (*GrpcClient)(nil)
)
