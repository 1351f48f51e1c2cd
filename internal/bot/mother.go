package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redmadres/danabot/internal/dispatch"
	"github.com/redmadres/danabot/internal/models"
)

func (r *Router) motherButton(ctx context.Context, s *models.Session, e models.ButtonPress) bool {
	if r.formButton(ctx, s, e) {
		return true
	}
	if s.Role != models.RoleMother {
		return false
	}

	switch {
	case e.Data == CallbackMotherRequestHelp:
		r.startForm(ctx, s, e.Sender, models.FormHelpRequest)
	case e.Data == CallbackMotherData:
		r.showMotherData(ctx, s)
	case e.Data == CallbackMotherRequests:
		r.showMotherRequests(ctx, s)
	case e.Data == CallbackMainMenu:
		s.CurrentEditingField = ""
		r.showMotherMenu(ctx, s)
	case strings.HasPrefix(e.Data, CallbackEditPrefix):
		field := strings.TrimPrefix(e.Data, CallbackEditPrefix)
		if !models.IsMotherField(field) {
			slog.Warn("Router.motherButton unknown edit field", "conversationID", s.ConversationID, "field", field)
			r.showMotherData(ctx, s)
			return true
		}
		s.CurrentEditingField = field
		r.send(ctx, s, fmt.Sprintf("Escribe el nuevo valor para «%s».", models.FieldLabels[field]), nil)
	default:
		return false
	}
	return true
}

func (r *Router) motherText(ctx context.Context, s *models.Session, e models.TextMessage) bool {
	if r.formText(ctx, s, e) {
		return true
	}
	if s.Role != models.RoleMother {
		return false
	}
	if s.CurrentEditingField != "" {
		r.applyMotherEdit(ctx, s, e.Text)
		return true
	}
	r.showMotherMenu(ctx, s)
	return true
}

func (r *Router) applyMotherEdit(ctx context.Context, s *models.Session, text string) {
	field := s.CurrentEditingField
	value := strings.TrimSpace(text)
	if value == "" {
		r.send(ctx, s, fmt.Sprintf("Escribe el nuevo valor para «%s».", models.FieldLabels[field]), nil)
		return
	}
	s.CurrentEditingField = ""
	if err := r.repo.UpdateMotherField(s.ConversationID, field, value); err != nil {
		slog.Error("Router.applyMotherEdit failed", "conversationID", s.ConversationID, "field", field, "error", err)
		r.send(ctx, s, "No hemos podido actualizar tus datos. Inténtalo de nuevo más tarde.", nil)
		r.showMotherMenu(ctx, s)
		return
	}
	slog.Info("Router.applyMotherEdit updated", "conversationID", s.ConversationID, "field", field)
	r.send(ctx, s, fmt.Sprintf("Dato actualizado. %s: %s", models.FieldLabels[field], value), nil)
	r.showMotherData(ctx, s)
}

func (r *Router) showMotherData(ctx context.Context, s *models.Session) {
	m, err := r.repo.GetMother(s.ConversationID)
	if err != nil {
		slog.Error("Router.showMotherData lookup failed", "conversationID", s.ConversationID, "error", err)
	}
	if m == nil {
		r.send(ctx, s, "Lo siento, no he encontrado tus datos.", nil)
		r.showMotherMenu(ctx, s)
		return
	}
	r.send(ctx, s, recordText("Aquí puedes ver y modificar tus datos personales:", models.MotherFields, m.Value),
		editKeyboard(models.MotherFields))
}

func (r *Router) showMotherRequests(ctx context.Context, s *models.Session) {
	reqs, err := r.repo.ListHelpRequestsByRequester(s.ConversationID)
	if err != nil {
		slog.Error("Router.showMotherRequests lookup failed", "conversationID", s.ConversationID, "error", err)
		r.send(ctx, s, "No hemos podido recuperar tus solicitudes. Inténtalo de nuevo más tarde.", nil)
		r.showMotherMenu(ctx, s)
		return
	}
	if len(reqs) == 0 {
		r.send(ctx, s, "Todavía no has enviado ninguna solicitud de ayuda.", nil)
		r.showMotherMenu(ctx, s)
		return
	}
	lines := make([]string, 0, len(reqs)+1)
	lines = append(lines, "Tus solicitudes de ayuda:")
	for _, req := range reqs {
		lines = append(lines, dispatch.RequestLine(req))
	}
	r.send(ctx, s, strings.Join(lines, "\n"), models.Keyboard{{{Text: "⬅️ Volver", Data: CallbackMainMenu}}})
}
