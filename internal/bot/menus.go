package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/redmadres/danabot/internal/models"
)

// Callback data of the menu buttons.
const (
	CallbackRoleMother       = "role_mother"
	CallbackRoleCollaborator = "role_collaborator"
	CallbackMainMenu         = "main_menu"
	CallbackEditPrefix       = "edit_"

	CallbackMotherRequestHelp = "mother_pedir_ayuda"
	CallbackMotherData        = "mother_mis_datos"
	CallbackMotherRequests    = "mother_mis_solicitudes"

	CallbackCollaboratorData          = "collaborator_mis_datos"
	CallbackCollaboratorEdit          = "collaborator_edit_data"
	CallbackCollaboratorDelete        = "collaborator_delete_account"
	CallbackCollaboratorDeleteConfirm = "collaborator_delete_confirm"

	CallbackAdminMenu          = "menu_principal"
	CallbackAdminListPrefix    = "ver_colaboradores_page_"
	CallbackAdminBlockPrefix   = "block_"
	CallbackAdminUnblockPrefix = "unblock_"
)

func roleChoiceKeyboard() models.Keyboard {
	return models.Keyboard{
		{{Text: "🤱 Soy madre y necesito ayuda", Data: CallbackRoleMother}},
		{{Text: "🩺 Soy profesional y quiero colaborar", Data: CallbackRoleCollaborator}},
	}
}

func motherMenuKeyboard() models.Keyboard {
	return models.Keyboard{
		{{Text: "Pedir Ayuda", Data: CallbackMotherRequestHelp}},
		{{Text: "Mis Datos", Data: CallbackMotherData}},
		{{Text: "Mis Solicitudes", Data: CallbackMotherRequests}},
	}
}

func collaboratorMenuKeyboard() models.Keyboard {
	return models.Keyboard{
		{{Text: "Mis Datos", Data: CallbackCollaboratorData}},
		{{Text: "Editar mis datos", Data: CallbackCollaboratorEdit}},
		{{Text: "Eliminar cuenta", Data: CallbackCollaboratorDelete}},
	}
}

func adminMenuKeyboard() models.Keyboard {
	return models.Keyboard{{{Text: "Ver colaboradores", Data: CallbackAdminListPrefix + "1"}}}
}

// editKeyboard offers one edit button per field plus a way back.
func editKeyboard(fields []string) models.Keyboard {
	kb := make(models.Keyboard, 0, len(fields)+1)
	for _, f := range fields {
		kb = append(kb, []models.Button{{Text: "✏️ " + models.FieldLabels[f], Data: CallbackEditPrefix + f}})
	}
	return append(kb, []models.Button{{Text: "⬅️ Volver", Data: CallbackMainMenu}})
}

// recordText renders a record with one labelled line per field.
func recordText(title string, fields []string, value func(string) string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, f := range fields {
		v := value(f)
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "%s: %s\n", models.FieldLabels[f], v)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) showRoleChoice(ctx context.Context, s *models.Session, sender models.Sender) {
	greeting := "¡Hola!"
	if sender.FirstName != "" {
		greeting = fmt.Sprintf("¡Hola, %s!", sender.FirstName)
	}
	r.send(ctx, s, greeting+" Este bot pone en contacto a madres afectadas por la DANA con "+
		"profesionales que ofrecen su ayuda.\n\n¿Cómo quieres participar?", roleChoiceKeyboard())
}

func (r *Router) showMotherMenu(ctx context.Context, s *models.Session) {
	r.send(ctx, s, "¿Qué deseas hacer?", motherMenuKeyboard())
}

func (r *Router) showCollaboratorMenu(ctx context.Context, s *models.Session) {
	r.send(ctx, s, "¿Qué deseas hacer?", collaboratorMenuKeyboard())
}

func (r *Router) showAdminMenu(ctx context.Context, s *models.Session) {
	r.send(ctx, s, "Este es el menú de administración. ¿Qué quieres hacer?", adminMenuKeyboard())
}

// showMenu sends the main menu of the session's role.
func (r *Router) showMenu(ctx context.Context, s *models.Session, sender models.Sender) {
	switch s.Role {
	case models.RoleAdministrator:
		r.showAdminMenu(ctx, s)
	case models.RoleMother:
		r.showMotherMenu(ctx, s)
	case models.RoleCollaborator:
		r.showCollaboratorMenu(ctx, s)
	default:
		r.showRoleChoice(ctx, s, sender)
	}
}
