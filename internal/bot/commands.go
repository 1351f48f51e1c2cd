package bot

import (
	"context"
	"log/slog"

	"github.com/redmadres/danabot/internal/dispatch"
	"github.com/redmadres/danabot/internal/flow"
	"github.com/redmadres/danabot/internal/models"
)

// Slash commands.
const (
	CommandStart   = "start"
	CommandHelp    = "ayuda"
	CommandCancel  = "cancelar"
	CommandRestart = "rehacer"
)

func (r *Router) handleCommand(ctx context.Context, s *models.Session, e models.Command) {
	slog.Debug("Router.handleCommand", "conversationID", s.ConversationID, "command", e.Name)
	switch e.Name {
	case CommandStart:
		if s.FormActive() {
			slog.Info("Router.handleCommand start drops active form", "conversationID", s.ConversationID, "form", s.ActiveForm)
			s.ClearForm()
		}
		s.CurrentEditingField = ""
		r.showMenu(ctx, s, e.Sender)

	case CommandHelp:
		if s.Role != models.RoleMother {
			r.send(ctx, s, "Este comando solo está disponible para madres registradas. Usa /start para registrarte.", nil)
			return
		}
		r.startForm(ctx, s, e.Sender, models.FormHelpRequest)

	case CommandCancel:
		editing := s.CurrentEditingField != ""
		s.CurrentEditingField = ""
		if !r.engine.Cancel(ctx, s) {
			if editing {
				r.send(ctx, s, "Edición cancelada.", nil)
			} else {
				r.send(ctx, s, "No hay ningún formulario en curso.", nil)
			}
		}
		r.showMenu(ctx, s, e.Sender)

	case CommandRestart:
		out, err := r.engine.Restart(ctx, s, e.Sender)
		if err != nil {
			slog.Error("Router.handleCommand restart failed", "conversationID", s.ConversationID, "error", err)
		}
		if out == flow.OutcomeIgnored {
			r.send(ctx, s, "No hay ningún formulario en curso.", nil)
		}

	default:
		r.send(ctx, s, "Comando no reconocido. Usa /start para ver el menú.", nil)
	}
}

// genericButton handles role selection, claim buttons pressed in private
// chats and stale buttons. It reports whether the callback was answered.
func (r *Router) genericButton(ctx context.Context, s *models.Session, e models.ButtonPress) bool {
	if _, ok := dispatch.ParseClaimData(e.Data); ok {
		return r.handleClaim(ctx, e)
	}

	choosing := s.Role == models.RoleUnset || s.Role == models.RoleAwaitingChoice
	switch {
	case e.Data == CallbackRoleMother && choosing:
		if r.exists(r.repo.MotherExists, e.Sender.ID) {
			s.Role = models.RoleMother
			r.send(ctx, s, "Ya estás registrada.", nil)
			r.showMotherMenu(ctx, s)
			return false
		}
		r.send(ctx, s, "Vamos a registrar tus datos. Puedes escribir /cancelar en cualquier momento.", nil)
		r.startForm(ctx, s, e.Sender, models.FormMother)

	case e.Data == CallbackRoleCollaborator && choosing:
		if r.exists(r.repo.CollaboratorExists, e.Sender.ID) {
			s.Role = models.RoleCollaborator
			r.send(ctx, s, "He visto que ya estás dado de alta como profesional.", nil)
			r.showCollaboratorMenu(ctx, s)
			return false
		}
		r.send(ctx, s, "Gracias por ofrecer tu ayuda. Vamos a registrar tus datos profesionales.", nil)
		r.startForm(ctx, s, e.Sender, models.FormCollaborator)

	default:
		slog.Debug("Router.genericButton stale or unknown button", "conversationID", s.ConversationID, "data", e.Data, "role", s.Role)
		r.showMenu(ctx, s, e.Sender)
	}
	return false
}

func (r *Router) genericText(ctx context.Context, s *models.Session, e models.TextMessage) {
	r.showMenu(ctx, s, e.Sender)
}

func (r *Router) exists(check func(int64) (bool, error), id int64) bool {
	ok, err := check(id)
	if err != nil {
		slog.Error("Router existence check failed", "id", id, "error", err)
		return false
	}
	return ok
}
