// Package models defines conversation session structures for danabot.
package models

import "time"

// Role is the population a conversation belongs to.
type Role string

const (
	// RoleUnset is the role of a conversation that has not chosen yet.
	RoleUnset Role = "unset"
	// RoleAwaitingChoice means the role selection menu has been shown.
	RoleAwaitingChoice Role = "awaiting_role"
	// RoleMother is a mother requesting aid.
	RoleMother Role = "mother"
	// RoleCollaborator is a professional offering help.
	RoleCollaborator Role = "collaborator"
	// RoleAdministrator is an allow-listed operator.
	RoleAdministrator Role = "administrator"
)

// FormKind identifies which form, if any, is in progress.
type FormKind string

const (
	FormNone         FormKind = "none"
	FormMother       FormKind = "mother"
	FormCollaborator FormKind = "collaborator"
	FormHelpRequest  FormKind = "help_request"
)

// FormPhase describes where an active form is paused.
type FormPhase string

const (
	// PhaseAsking waits for the answer to CurrentQuestionIndex.
	PhaseAsking FormPhase = "asking"
	// PhaseConfirming waits for the user to confirm or redo the summary.
	PhaseConfirming FormPhase = "confirming"
	// PhaseFinalizing holds a complete answer set whose persistence was deferred.
	PhaseFinalizing FormPhase = "finalizing"
)

// Session is the per-conversation state blob. It is read once when an event
// arrives and written once when handling finishes.
type Session struct {
	ConversationID       int64     `json:"conversation_id"`
	Role                 Role      `json:"role"`
	ActiveForm           FormKind  `json:"active_form"`
	Phase                FormPhase `json:"phase,omitempty"`
	CurrentQuestionIndex *int      `json:"current_question_index,omitempty"`
	CollectedAnswers     []string  `json:"collected_answers"`
	CurrentEditingField  string    `json:"current_editing_field,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewSession returns the default state for a conversation seen for the first time.
func NewSession(conversationID int64) *Session {
	return &Session{
		ConversationID:   conversationID,
		Role:             RoleUnset,
		ActiveForm:       FormNone,
		CollectedAnswers: []string{},
	}
}

// FormActive reports whether any form is in progress.
func (s *Session) FormActive() bool {
	return s.ActiveForm != "" && s.ActiveForm != FormNone
}

// QuestionIndex returns the current question index and whether one is set.
func (s *Session) QuestionIndex() (int, bool) {
	if s.CurrentQuestionIndex == nil {
		return 0, false
	}
	return *s.CurrentQuestionIndex, true
}

// SetQuestionIndex records idx as the current question.
func (s *Session) SetQuestionIndex(idx int) {
	s.CurrentQuestionIndex = &idx
}

// ClearForm drops any in-progress form and its answers.
func (s *Session) ClearForm() {
	s.ActiveForm = FormNone
	s.Phase = ""
	s.CurrentQuestionIndex = nil
	s.CollectedAnswers = []string{}
}

// Normalize repairs fields a decoded blob may leave empty.
func (s *Session) Normalize() {
	if s.Role == "" {
		s.Role = RoleUnset
	}
	if s.ActiveForm == "" {
		s.ActiveForm = FormNone
	}
	if s.CollectedAnswers == nil {
		s.CollectedAnswers = []string{}
	}
}
