package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redmadres/danabot/internal/flow"
	"github.com/redmadres/danabot/internal/models"
)

// specialtyQuestion is reused to render and resolve the specialty keyboard
// when a collaborator edits that field.
func specialtyQuestion() flow.Question {
	for _, q := range flow.CollaboratorForm.Questions {
		if q.Field == models.FieldSpecialty {
			return q
		}
	}
	return flow.Question{Field: models.FieldSpecialty}
}

func (r *Router) collaboratorButton(ctx context.Context, s *models.Session, e models.ButtonPress) bool {
	if r.formButton(ctx, s, e) {
		return true
	}
	if s.Role != models.RoleCollaborator {
		return false
	}

	switch {
	case e.Data == CallbackCollaboratorData:
		r.showCollaboratorData(ctx, s, false)
	case e.Data == CallbackCollaboratorEdit:
		r.showCollaboratorData(ctx, s, true)
	case e.Data == CallbackCollaboratorDelete:
		r.send(ctx, s, "¿Seguro que quieres eliminar tu cuenta de profesional? Dejarás de poder atender solicitudes.",
			models.Keyboard{
				{{Text: "Sí, eliminar mi cuenta", Data: CallbackCollaboratorDeleteConfirm}},
				{{Text: "Cancelar", Data: CallbackMainMenu}},
			})
	case e.Data == CallbackCollaboratorDeleteConfirm:
		r.deleteCollaborator(ctx, s, e.Sender)
	case e.Data == CallbackMainMenu:
		s.CurrentEditingField = ""
		r.showCollaboratorMenu(ctx, s)
	case strings.HasPrefix(e.Data, CallbackEditPrefix):
		field := strings.TrimPrefix(e.Data, CallbackEditPrefix)
		if !models.IsCollaboratorField(field) {
			slog.Warn("Router.collaboratorButton unknown edit field", "conversationID", s.ConversationID, "field", field)
			r.showCollaboratorData(ctx, s, true)
			return true
		}
		s.CurrentEditingField = field
		if field == models.FieldSpecialty {
			q := specialtyQuestion()
			r.send(ctx, s, q.Prompt, q.Keyboard())
			return true
		}
		r.send(ctx, s, fmt.Sprintf("Escribe el nuevo valor para «%s».", models.FieldLabels[field]), nil)
	case strings.HasPrefix(e.Data, flow.CallbackAnswerPrefix) && s.CurrentEditingField == models.FieldSpecialty:
		label := specialtyQuestion().Resolve(strings.TrimPrefix(e.Data, flow.CallbackAnswerPrefix))
		r.applyCollaboratorEdit(ctx, s, label)
	default:
		return false
	}
	return true
}

func (r *Router) collaboratorText(ctx context.Context, s *models.Session, e models.TextMessage) bool {
	if r.formText(ctx, s, e) {
		return true
	}
	if s.Role != models.RoleCollaborator {
		return false
	}
	switch s.CurrentEditingField {
	case "":
		r.showCollaboratorMenu(ctx, s)
	case models.FieldSpecialty:
		q := specialtyQuestion()
		r.send(ctx, s, "Por favor, selecciona una opción pulsando en uno de los botones.", q.Keyboard())
	default:
		r.applyCollaboratorEdit(ctx, s, e.Text)
	}
	return true
}

func (r *Router) applyCollaboratorEdit(ctx context.Context, s *models.Session, text string) {
	field := s.CurrentEditingField
	value := strings.TrimSpace(text)
	if value == "" {
		r.send(ctx, s, fmt.Sprintf("Escribe el nuevo valor para «%s».", models.FieldLabels[field]), nil)
		return
	}
	s.CurrentEditingField = ""
	if err := r.repo.UpdateCollaboratorField(s.ConversationID, field, value); err != nil {
		slog.Error("Router.applyCollaboratorEdit failed", "conversationID", s.ConversationID, "field", field, "error", err)
		r.send(ctx, s, "No hemos podido actualizar tus datos. Inténtalo de nuevo más tarde.", nil)
		r.showCollaboratorMenu(ctx, s)
		return
	}
	slog.Info("Router.applyCollaboratorEdit updated", "conversationID", s.ConversationID, "field", field)
	r.send(ctx, s, fmt.Sprintf("Dato actualizado. %s: %s", models.FieldLabels[field], value), nil)
	r.showCollaboratorData(ctx, s, true)
}

func (r *Router) showCollaboratorData(ctx context.Context, s *models.Session, editing bool) {
	c, err := r.repo.GetCollaborator(s.ConversationID)
	if err != nil {
		slog.Error("Router.showCollaboratorData lookup failed", "conversationID", s.ConversationID, "error", err)
	}
	if c == nil {
		r.send(ctx, s, "Lo siento, no he encontrado tus datos.", nil)
		r.showCollaboratorMenu(ctx, s)
		return
	}
	if !editing {
		r.send(ctx, s, recordText("Tus datos de profesional:", models.CollaboratorFields, c.Value),
			models.Keyboard{{{Text: "⬅️ Volver", Data: CallbackMainMenu}}})
		return
	}
	r.send(ctx, s, recordText("¿Qué dato quieres modificar?", models.CollaboratorFields, c.Value),
		editKeyboard(models.CollaboratorFields))
}

func (r *Router) deleteCollaborator(ctx context.Context, s *models.Session, sender models.Sender) {
	if err := r.repo.DeleteCollaborator(s.ConversationID); err != nil {
		slog.Error("Router.deleteCollaborator failed", "conversationID", s.ConversationID, "error", err)
		r.send(ctx, s, "No hemos podido eliminar tu cuenta. Inténtalo de nuevo más tarde.", nil)
		r.showCollaboratorMenu(ctx, s)
		return
	}
	slog.Info("Router.deleteCollaborator deleted", "conversationID", s.ConversationID)
	if err := r.sessions.Reset(s); err != nil {
		slog.Warn("Router.deleteCollaborator session reset failed", "conversationID", s.ConversationID, "error", err)
	}
	s.Role = models.RoleAwaitingChoice
	r.send(ctx, s, "Tu cuenta de profesional ha sido eliminada. Gracias por tu ayuda.", nil)
	r.showRoleChoice(ctx, s, sender)
}
