package flow

import (
	"log/slog"
	"time"

	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/store"
)

// SessionManager loads a conversation's session once per event and saves it
// once when handling finishes.
type SessionManager struct {
	store store.SessionStore
}

// NewSessionManager creates a SessionManager backed by a SessionStore.
func NewSessionManager(st store.SessionStore) *SessionManager {
	slog.Debug("Creating SessionManager")
	return &SessionManager{store: st}
}

// Load returns the stored session, or a fresh default one when none exists.
// A read error also yields a fresh session so handling can continue.
func (m *SessionManager) Load(conversationID int64) *models.Session {
	s, err := m.store.ReadSession(conversationID)
	if err != nil {
		slog.Error("SessionManager Load error, using default session", "error", err, "conversationID", conversationID)
		return models.NewSession(conversationID)
	}
	if s == nil {
		slog.Debug("SessionManager Load not found", "conversationID", conversationID)
		return models.NewSession(conversationID)
	}
	return s
}

// Save writes the session back. Last writer wins.
func (m *SessionManager) Save(s *models.Session) error {
	s.UpdatedAt = time.Now()
	if err := m.store.WriteSession(*s); err != nil {
		slog.Error("SessionManager Save error", "error", err, "conversationID", s.ConversationID)
		return err
	}
	slog.Debug("SessionManager Save succeeded", "conversationID", s.ConversationID, "role", s.Role, "form", s.ActiveForm, "phase", s.Phase)
	return nil
}

// Reset removes the stored session and reinitializes s in place, so the
// conversation starts over from first contact.
func (m *SessionManager) Reset(s *models.Session) error {
	id := s.ConversationID
	*s = *models.NewSession(id)
	if err := m.store.DeleteSession(id); err != nil {
		slog.Error("SessionManager Reset error", "error", err, "conversationID", id)
		return err
	}
	slog.Debug("SessionManager Reset succeeded", "conversationID", id)
	return nil
}
