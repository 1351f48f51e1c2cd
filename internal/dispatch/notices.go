package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redmadres/danabot/internal/models"
)

// CallbackClaimPrefix prefixes the claim button data: claim_<request id>.
const CallbackClaimPrefix = "claim_"

// timeLayout renders submission times for Spanish readers.
const timeLayout = "02/01/2006 15:04"

// ClaimData returns the callback data of the claim button for a request.
func ClaimData(requestID int64) string {
	return CallbackClaimPrefix + strconv.FormatInt(requestID, 10)
}

// ParseClaimData extracts the request ID from claim button data.
func ParseClaimData(data string) (int64, bool) {
	if !strings.HasPrefix(data, CallbackClaimPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(data, CallbackClaimPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ContactLink returns a t.me link for a username. Users without one get a
// tg://user?id= link, which Telegram clients open as a private chat.
func ContactLink(username string, telegramID int64) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username != "" {
		return "https://t.me/" + username
	}
	if telegramID == 0 {
		return ""
	}
	return "tg://user?id=" + strconv.FormatInt(telegramID, 10)
}

// BroadcastNotice is the text posted to professional destinations.
func BroadcastNotice(req models.HelpRequest, requester models.Mother) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆘 Nueva solicitud de ayuda #%d\n\n", req.ID)
	fmt.Fprintf(&b, "Solicitante: %s\n", requester.FullName)
	fmt.Fprintf(&b, "Urgencia: %s %s\n", req.Urgency.Marker(), req.Urgency.Label())
	fmt.Fprintf(&b, "Especialidad: %s\n", req.Specialty)
	fmt.Fprintf(&b, "Motivo: %s", req.Description)
	return b.String()
}

// ClaimKeyboard is the single "Atender" button attached to broadcast notices.
func ClaimKeyboard(requestID int64) models.Keyboard {
	return models.Keyboard{{{Text: "✋ Atender", Data: ClaimData(requestID)}}}
}

// ClaimantIntroduction is sent to the collaborator who claimed the request.
func ClaimantIntroduction(req models.HelpRequest, requester models.Mother) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Has aceptado la solicitud #%d. Gracias por tu ayuda.\n\n", req.ID)
	fmt.Fprintf(&b, "Madre: %s\n", requester.FullName)
	if link := ContactLink(requester.Username, requester.TelegramID); link != "" {
		fmt.Fprintf(&b, "Escríbele directamente: %s\n", link)
	}
	if requester.Phone != "" {
		fmt.Fprintf(&b, "Teléfono: %s\n", requester.Phone)
	}
	fmt.Fprintf(&b, "Urgencia: %s %s\n", req.Urgency.Marker(), req.Urgency.Label())
	fmt.Fprintf(&b, "Motivo: %s\n", req.Description)
	fmt.Fprintf(&b, "Enviada: %s", req.CreatedAt.Format(timeLayout))
	return b.String()
}

// RequesterNotice tells the mother who will attend her request.
func RequesterNotice(req models.HelpRequest, claimant models.Collaborator) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tu solicitud de ayuda #%d ha sido atendida por %s", req.ID, claimant.FullName)
	if claimant.Profession != "" {
		fmt.Fprintf(&b, " (%s)", claimant.Profession)
	}
	b.WriteString(".\n")
	if link := ContactLink(claimant.Username, claimant.TelegramID); link != "" {
		fmt.Fprintf(&b, "Puedes escribirle directamente: %s\n", link)
	}
	b.WriteString("Se pondrá en contacto contigo lo antes posible.")
	return b.String()
}

// RequestLine summarizes a request for the mother's request list.
func RequestLine(req models.HelpRequest) string {
	status := "⏳ Pendiente"
	if req.Status == models.RequestClaimed {
		status = "✅ Atendida"
	}
	return fmt.Sprintf("#%d %s %s · %s · %s (%s)", req.ID, req.Urgency.Marker(), req.Specialty,
		truncate(req.Description, 40), status, req.CreatedAt.Format(timeLayout))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

