package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/roles"
)

func (r *Router) adminButton(ctx context.Context, s *models.Session, e models.ButtonPress) bool {
	switch {
	case strings.HasPrefix(e.Data, CallbackAdminListPrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(e.Data, CallbackAdminListPrefix))
		if err != nil {
			page = 1
		}
		r.listCollaborators(ctx, s, page)
	case strings.HasPrefix(e.Data, CallbackAdminBlockPrefix):
		r.setBlocked(ctx, s, strings.TrimPrefix(e.Data, CallbackAdminBlockPrefix), true)
	case strings.HasPrefix(e.Data, CallbackAdminUnblockPrefix):
		r.setBlocked(ctx, s, strings.TrimPrefix(e.Data, CallbackAdminUnblockPrefix), false)
	case e.Data == CallbackAdminMenu || e.Data == CallbackMainMenu:
		r.showAdminMenu(ctx, s)
	default:
		return false
	}
	return true
}

// adminText has no free-text flows; any text brings the menu back.
func (r *Router) adminText(ctx context.Context, s *models.Session, e models.TextMessage) bool {
	r.showAdminMenu(ctx, s)
	return true
}

// listCollaborators renders one page of the collaborator list with
// block/unblock toggles and Previous/Next controls where adjacent pages exist.
func (r *Router) listCollaborators(ctx context.Context, s *models.Session, page int) {
	total, err := r.repo.CountCollaborators()
	if err != nil {
		slog.Error("Router.listCollaborators count failed", "error", err)
		r.send(ctx, s, "Hubo un error al obtener la lista de colaboradores.", adminMenuKeyboard())
		return
	}
	p := roles.Paginate(total, page, roles.PageSize)
	list, err := r.repo.ListCollaborators(p.Offset, p.Limit)
	if err != nil {
		slog.Error("Router.listCollaborators query failed", "page", p.Number, "error", err)
		r.send(ctx, s, "Hubo un error al obtener la lista de colaboradores.", adminMenuKeyboard())
		return
	}
	back := []models.Button{{Text: "Atrás al Menú Principal", Data: CallbackAdminMenu}}
	if len(list) == 0 {
		text := "No hay colaboradores registrados."
		if total > 0 {
			text = fmt.Sprintf("No hay colaboradores en la página %d.", p.Number)
		}
		r.send(ctx, s, text, models.Keyboard{back})
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Lista de colaboradores (Página %d):\n\n", p.Number)
	kb := make(models.Keyboard, 0, len(list)+2)
	for _, c := range list {
		fmt.Fprintf(&b, "- %s", c.FullName)
		if c.Username != "" {
			fmt.Fprintf(&b, " (@%s)", c.Username)
		}
		fmt.Fprintf(&b, " · %s", c.Specialty)
		if c.Blocked {
			b.WriteString(" 🚫 bloqueado")
		}
		b.WriteString("\n")

		id := strconv.FormatInt(c.TelegramID, 10)
		suffix := "_" + strconv.Itoa(p.Number)
		if c.Blocked {
			kb = append(kb, []models.Button{{Text: "✅ Desbloquear " + c.FullName, Data: CallbackAdminUnblockPrefix + id + suffix}})
		} else {
			kb = append(kb, []models.Button{{Text: "🚫 Bloquear " + c.FullName, Data: CallbackAdminBlockPrefix + id + suffix}})
		}
	}

	var nav []models.Button
	if p.HasPrev {
		nav = append(nav, models.Button{Text: "Página Anterior", Data: CallbackAdminListPrefix + strconv.Itoa(p.Number-1)})
	}
	if p.HasNext {
		nav = append(nav, models.Button{Text: "Página Siguiente", Data: CallbackAdminListPrefix + strconv.Itoa(p.Number+1)})
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}
	kb = append(kb, back)
	r.send(ctx, s, strings.TrimRight(b.String(), "\n"), kb)
}

// setBlocked parses "<telegram id>_<page>", toggles the flag and re-renders
// the page the admin was looking at.
func (r *Router) setBlocked(ctx context.Context, s *models.Session, arg string, blocked bool) {
	idPart, pagePart, _ := strings.Cut(arg, "_")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		slog.Warn("Router.setBlocked bad callback", "arg", arg)
		r.showAdminMenu(ctx, s)
		return
	}
	page, err := strconv.Atoi(pagePart)
	if err != nil {
		page = 1
	}
	if err := r.repo.SetCollaboratorBlocked(id, blocked); err != nil {
		slog.Error("Router.setBlocked failed", "collaboratorID", id, "blocked", blocked, "error", err)
		r.send(ctx, s, "No se ha podido actualizar el colaborador.", nil)
	} else {
		slog.Info("Router.setBlocked", "adminID", s.ConversationID, "collaboratorID", id, "blocked", blocked)
		if blocked {
			r.send(ctx, s, "Colaborador bloqueado.", nil)
		} else {
			r.send(ctx, s, "Colaborador desbloqueado.", nil)
		}
	}
	r.listCollaborators(ctx, s, page)
}
