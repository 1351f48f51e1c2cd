package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redmadres/danabot/internal/dispatch"
	"github.com/redmadres/danabot/internal/models"
)

// handleClaim runs the claim workflow for a claim button and answers the
// callback with the result. It reports whether the callback was answered.
func (r *Router) handleClaim(ctx context.Context, e models.ButtonPress) bool {
	id, ok := dispatch.ParseClaimData(e.Data)
	if !ok {
		return false
	}
	if r.workflow == nil {
		slog.Error("Router.handleClaim: no workflow configured", "requestID", id)
		r.ack(ctx, e.CallbackID, "El servicio no está disponible en este momento.", true)
		return true
	}

	res, err := r.workflow.Claim(ctx, id, e.Sender)
	slog.Info("Router.handleClaim", "requestID", id, "claimantID", e.Sender.ID, "outcome", res.Outcome, "error", err)

	text, alert := claimAck(res)
	r.ack(ctx, e.CallbackID, text, alert)
	return true
}

// claimAck builds the callback answer for a claim result. Partial failures
// after an accepted claim are reported as an alert.
func claimAck(res dispatch.ClaimResult) (string, bool) {
	switch res.Outcome {
	case dispatch.ClaimAccepted:
		var notes []string
		if res.NotifyErr != nil {
			notes = append(notes, "No hemos podido enviar todos los datos de contacto. "+
				"Abre un chat privado con el bot y pulsa /start.")
		}
		if res.RetractErr != nil {
			notes = append(notes, "Algunos avisos de la solicitud no se han podido retirar de los grupos.")
		}
		if len(notes) == 0 {
			return "Has aceptado la solicitud. Te he enviado los datos de contacto por privado.", false
		}
		return "Solicitud asignada. " + strings.Join(notes, " "), true
	case dispatch.ClaimAlreadyTaken:
		return "Esta solicitud ya ha sido atendida por otro profesional.", true
	case dispatch.ClaimUnauthorized:
		return "Solo los profesionales registrados pueden atender solicitudes.", true
	case dispatch.ClaimBlocked:
		return "Tu cuenta está bloqueada y no puedes atender solicitudes.", true
	case dispatch.ClaimNotFound:
		return "Esta solicitud ya no existe.", true
	}
	return "No se ha podido procesar la solicitud. Inténtalo de nuevo.", true
}
