package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/redmadres/danabot/internal/messaging"
	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/telegram"
)

// telegramSecretHeader carries the secret_token registered with setWebhook.
const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.WebhookSecret == "" {
		return false
	}
	got := r.URL.Query().Get("secret")
	if got == "" {
		got = r.Header.Get(telegramSecretHeader)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) == 1
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !s.authorized(r) {
		slog.Warn("Server.webhookHandler: secret mismatch", "remote", r.RemoteAddr)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Forbidden"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to read body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request body"))
		return
	}
	ev, err := telegram.ParseUpdate(body)
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to decode update", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid update"))
		return
	}
	if ev == nil {
		slog.Debug("Server.webhookHandler: update ignored")
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ignored", nil))
		return
	}

	if err := s.msg.Deliver(ev); err != nil {
		// 503 makes Telegram redeliver; duplicates are dropped by update id.
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrServiceUnavailable) || errors.Is(err, messaging.ErrServiceStopped) {
			status = http.StatusServiceUnavailable
		}
		slog.Error("Server.webhookHandler: failed to queue event", "updateID", ev.Meta().UpdateID, "error", err)
		writeJSONResponse(w, status, models.Error("Event queue unavailable"))
		return
	}
	slog.Debug("Server.webhookHandler: event queued", "updateID", ev.Meta().UpdateID, "conversationID", ev.Meta().ConversationID)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
