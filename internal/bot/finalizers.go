package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redmadres/danabot/internal/models"
)

func (r *Router) reply(ctx context.Context, conversationID int64, text string, kb models.Keyboard) {
	if _, err := r.msg.SendMessage(ctx, models.Destination{ChatID: conversationID}, text, kb); err != nil {
		slog.Error("Router.reply failed", "conversationID", conversationID, "error", err)
	}
}

// finalizeMother persists a mother record from the registration answers.
// A record that already exists counts as success.
func (r *Router) finalizeMother(ctx context.Context, conversationID int64, sender models.Sender, answers []string) error {
	if len(answers) < len(models.MotherFields) {
		return fmt.Errorf("%w: %w", models.ErrValidation, models.ErrIncompleteAnswers)
	}
	now := time.Now()
	m := models.Mother{
		TelegramID:  sender.ID,
		Username:    sender.Username,
		FullName:    answers[0],
		Phone:       answers[1],
		Address:     answers[2],
		Town:        answers[3],
		PostalCode:  answers[4],
		Description: answers[5],
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := r.repo.CreateMother(m)
	if err != nil {
		return err
	}
	if !created {
		slog.Info("Router.finalizeMother record already existed", "conversationID", conversationID)
	}
	r.reply(ctx, conversationID, "Formulario completado. Ahora puedes solicitar ayuda con el comando /ayuda o desde el menú.", nil)
	r.reply(ctx, conversationID, "¿Qué deseas hacer?", motherMenuKeyboard())
	return nil
}

// finalizeCollaborator persists the collaborator and sends a single-use
// invite link to the professional group. A failed invite does not undo the
// registration.
func (r *Router) finalizeCollaborator(ctx context.Context, conversationID int64, sender models.Sender, answers []string) error {
	if len(answers) < len(models.CollaboratorFields) {
		return fmt.Errorf("%w: %w", models.ErrValidation, models.ErrIncompleteAnswers)
	}
	if sender.Username == "" {
		return fmt.Errorf("%w: %w", models.ErrValidation, models.ErrMissingHandle)
	}
	now := time.Now()
	c := models.Collaborator{
		TelegramID:    sender.ID,
		Username:      sender.Username,
		FullName:      answers[0],
		Phone:         answers[1],
		Profession:    answers[2],
		Experience:    answers[3],
		Specialty:     answers[4],
		LicenseNumber: answers[5],
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := r.repo.CreateCollaborator(c)
	if err != nil {
		return err
	}
	if !created {
		slog.Info("Router.finalizeCollaborator record already existed", "conversationID", conversationID)
	}
	r.reply(ctx, conversationID, "Formulario de colaborador completado. Gracias por ofrecer tu ayuda.", nil)

	if r.opts.ProfessionalGroup != 0 {
		link, err := r.msg.CreateInviteLink(ctx, r.opts.ProfessionalGroup, 1)
		if err != nil {
			slog.Error("Router.finalizeCollaborator invite failed", "conversationID", conversationID, "groupID", r.opts.ProfessionalGroup, "error", err)
			r.reply(ctx, conversationID, "Ha habido un error al añadirte al grupo. Por favor, contacta con el administrador.", nil)
		} else {
			r.reply(ctx, conversationID, "Por favor, únete al grupo de colaboradores para poder colaborar con el resto de profesionales: "+link, nil)
		}
	}
	r.reply(ctx, conversationID, "¿Qué deseas hacer?", collaboratorMenuKeyboard())
	return nil
}

// finalizeHelpRequest creates and broadcasts the request. Validation
// failures are reported to the mother and the form is not retried.
func (r *Router) finalizeHelpRequest(ctx context.Context, conversationID int64, sender models.Sender, answers []string) error {
	if r.workflow == nil {
		return fmt.Errorf("%w: help request workflow not configured", models.ErrServiceUnavailable)
	}
	req, err := r.workflow.CreateAndBroadcast(ctx, sender.ID, answers)
	switch {
	case errors.Is(err, models.ErrNotFound):
		slog.Warn("Router.finalizeHelpRequest requester not registered", "conversationID", conversationID)
		r.reply(ctx, conversationID, "Lo siento, no he encontrado tu registro. Usa /start para registrarte de nuevo.", nil)
		return nil
	case err != nil:
		return err
	}

	if len(req.BroadcastHandles) == 0 {
		r.reply(ctx, conversationID, fmt.Sprintf("Tu solicitud #%d se ha registrado, pero todavía no hemos podido "+
			"hacerla llegar a ningún profesional. El equipo la revisará.", req.ID), nil)
	} else {
		r.reply(ctx, conversationID, fmt.Sprintf("Tu solicitud #%d se ha enviado a los profesionales de %s. "+
			"Te avisaremos en cuanto alguien la atienda.", req.ID, req.Specialty), nil)
	}
	r.reply(ctx, conversationID, "¿Qué deseas hacer?", motherMenuKeyboard())
	return nil
}
