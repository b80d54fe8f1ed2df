package dialogue

import (
	"fmt"
	"strings"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/session"
)

// Greeting is prepended to the first reply of a conversation.
const Greeting = "¡Hola! Soy Agente Sofía 😊. "

const (
	msgEmptyMessage     = "El mensaje no puede estar vacío."
	msgInternalError    = "Error temporal en el sistema. Por favor intenta nuevamente."
	msgFallbackFailed   = "Estoy teniendo dificultades para responder. Por favor intenta nuevamente."
	msgTooManyAttempts  = "Demasiados intentos fallidos. Por favor, comienza de nuevo."
	msgStoreUnavailable = "No pude acceder a la agenda en este momento. Por favor intenta nuevamente."
	msgCancelled        = "Operación cancelada. ¿En qué más te puedo ayudar?"

	msgAskQueryRange = "¿Para qué fechas deseas consultar la agenda? Dime un rango como \"del 10 al 15 de marzo\" o una fecha como \"hoy\"."
	msgQueryFailed   = "Error al consultar la agenda. Por favor intenta nuevamente."

	msgAskName        = "📝 Por favor, ingresa el nombre del evento:"
	msgAskDate        = "📅 ¿Para qué fecha será el evento? (Ej: \"15 de marzo\" o \"mañana\")"
	msgAskStart       = "⏰ ¿A qué hora comienza el evento? (Ej: \"a las 14:00\" o \"a las 2 pm\")"
	msgAskDuration    = "⏳ ¿Cuál es la duración del evento? (Ej: \"1 hora\" o \"2 horas\")"
	msgBadName        = "El nombre del evento es requerido y debe tener como máximo 100 caracteres."
	msgBadDate        = "No entendí la fecha. Por favor, ingresa una fecha válida."
	msgBadStart       = "No entendí la hora de inicio. Por favor, ingresa un horario válido."
	msgBadEnd         = "No entendí la hora de finalización. Por favor, ingresa un horario válido."
	msgCreateConflict = "La fecha y hora tienen conflicto, selecciona otro horario."
	msgCreateHint     = "Entendido. Si deseas modificar o cancelar el agendamiento, indícame. Responde \"sí\" para confirmar o \"no\" para cancelar."
	msgCreateCancel   = "❌ Agendamiento cancelado."
	msgCreateInvalid  = "Los datos del evento no son válidos. Por favor, comienza de nuevo."

	msgAskEditName   = "✏️ Por favor, ingresa el nombre del evento que deseas editar."
	msgAskDeleteName = "✏️ Por favor, ingresa el nombre del evento que deseas borrar."
	msgBadID         = "❌ ID inválido. Por favor, ingresa un número de la lista."
	msgYesOrNo       = "Por favor, responde \"sí\" o \"no\"."
	msgUpdated       = "✅ Evento actualizado exitosamente."
	msgUpdateFailed  = "❌ Error al actualizar el evento."
	msgUpdateCancel  = "❌ Edición cancelada."
	msgBadInterval   = "La hora de inicio debe ser anterior a la hora final. Edición cancelada."
	msgDeleted       = "✅ Evento borrado exitosamente."
	msgDeleteFailed  = "❌ Error al borrar el evento."
	msgDeleteCancel  = "❌ Borrado cancelado."
)

func warn(msg string) string {
	return "⚠️ " + msg
}

var fieldLabels = map[session.Field]string{
	session.FieldName:  "nombre",
	session.FieldDate:  "fecha",
	session.FieldStart: "hora_inicio",
	session.FieldEnd:   "hora_fin",
}

func fieldValue(e domain.Event, f session.Field) string {
	switch f {
	case session.FieldName:
		return e.Name
	case session.FieldDate:
		return e.Date.String()
	case session.FieldStart:
		return e.Start.String()
	case session.FieldEnd:
		return e.End.String()
	}
	return ""
}

func patchValue(p domain.EventPatch, f session.Field) (string, bool) {
	switch f {
	case session.FieldName:
		if p.Name != nil {
			return *p.Name, true
		}
	case session.FieldDate:
		if p.Date != nil {
			return p.Date.String(), true
		}
	case session.FieldStart:
		if p.Start != nil {
			return p.Start.String(), true
		}
	case session.FieldEnd:
		if p.End != nil {
			return p.End.String(), true
		}
	}
	return "", false
}

func createConfirmation(f *session.CreateFlow) string {
	return fmt.Sprintf("Vas a agendar el evento %q para el %s a las %s con duración de %d hora(s). ¿Confirmas? (Responde \"sí\" para confirmar)",
		f.Name, f.Date, f.Start, f.DurationHours)
}

func createDone(e domain.Event, hours int) string {
	return fmt.Sprintf("¡Listo! Se ha agendado el evento %q para el %s a las %s con duración de %d hora(s).",
		e.Name, e.Date, e.Start, hours)
}

func queryEmpty(start, end domain.Date) string {
	return fmt.Sprintf("📅 No tienes eventos programados en el rango de %s a %s. ¿Deseas agendar uno nuevo?", start, end)
}

func queryFound(start, end domain.Date) string {
	return fmt.Sprintf("📅 Estos son tus eventos programados entre %s y %s:", start, end)
}

func reversedRange(start, end domain.Date) string {
	return fmt.Sprintf("La fecha final (%s) es anterior a la inicial (%s). Indica un rango válido, por ejemplo \"del 10 al 15 de marzo\".", end, start)
}

func notFoundByName(name string) string {
	return fmt.Sprintf("No se encontraron eventos con el nombre %q", name)
}

func candidateList(events []domain.Event, action string) string {
	var b strings.Builder
	b.WriteString("📋 Eventos encontrados:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "🆔 %d | 📌 %s | 🗓 %s | ⏰ %s-%s\n", e.ID, e.Name, e.Date, e.Start, e.End)
	}
	fmt.Fprintf(&b, "✏️ Ingresa el ID del evento a %s:", action)
	return b.String()
}

func describeEvent(e domain.Event) string {
	return fmt.Sprintf("📌 %s\n🗓 %s\n⏰ %s - %s", e.Name, e.Date, e.Start, e.End)
}

func askChangeField(e domain.Event, f session.Field) string {
	return fmt.Sprintf("¿Deseas cambiar el campo %q (actual: %q)? Responde \"sí\" o \"no\".", fieldLabels[f], fieldValue(e, f))
}

func askFieldValue(e domain.Event, f session.Field) string {
	current := fieldValue(e, f)
	switch f {
	case session.FieldName:
		return fmt.Sprintf("✏️ Por favor, ingresa el nuevo nombre (actual: %q)\nEscribe \"mantener\" para conservarlo.", current)
	case session.FieldDate:
		return fmt.Sprintf("📅 Por favor, ingresa la nueva fecha (actual: %s)\nFormato: \"dd de mes\" o \"mañana\".", current)
	case session.FieldStart:
		return fmt.Sprintf("⏰ Por favor, ingresa la nueva hora de inicio (actual: %s)\nFormato: \"hh:mm\".", current)
	default:
		return fmt.Sprintf("⏰ Por favor, ingresa la nueva hora final (actual: %s)\nFormato: \"hh:mm\".", current)
	}
}

func updateSummary(e domain.Event, changes domain.EventPatch) string {
	var lines []string
	for _, f := range session.FieldOrder {
		v, ok := patchValue(changes, f)
		if !ok || v == fieldValue(e, f) {
			continue
		}
		lines = append(lines, fmt.Sprintf("➡️ %s: %s → %s", strings.ToUpper(fieldLabels[f]), fieldValue(e, f), v))
	}
	if len(lines) == 0 {
		lines = append(lines, "Sin cambios.")
	}
	return fmt.Sprintf("Vas a editar el evento %q con los siguientes cambios:\n%s\n¿Confirmas?", e.Name, strings.Join(lines, "\n"))
}

func deleteConfirmation(e domain.Event) string {
	return fmt.Sprintf("Vas a borrar el evento %q programado para el %s de %s a %s. ¿Confirmas? (Responde \"sí\" para confirmar)",
		e.Name, e.Date, e.Start, e.End)
}
