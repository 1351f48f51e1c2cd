// Package models defines person and help request records for danabot.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Mother is a person requesting disaster-relief aid.
type Mother struct {
	TelegramID  int64     `json:"telegram_id"`
	Username    string    `json:"username,omitempty"`
	FullName    string    `json:"full_name"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	Town        string    `json:"town"`
	PostalCode  string    `json:"postal_code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Field names of the form questions. Mother and collaborator fields double as
// column names for the editing flow.
const (
	FieldFullName      = "full_name"
	FieldPhone         = "phone"
	FieldAddress       = "address"
	FieldTown          = "town"
	FieldPostalCode    = "postal_code"
	FieldDescription   = "description"
	FieldProfession    = "profession"
	FieldExperience    = "experience"
	FieldSpecialty     = "specialty"
	FieldLicenseNumber = "license_number"
	FieldUrgency       = "urgency"
	FieldReason        = "reason"
)

// MotherFields lists the editable mother fields.
var MotherFields = []string{FieldFullName, FieldPhone, FieldAddress, FieldTown, FieldPostalCode, FieldDescription}

// CollaboratorFields lists the editable collaborator fields.
var CollaboratorFields = []string{FieldFullName, FieldPhone, FieldProfession, FieldExperience, FieldSpecialty, FieldLicenseNumber}

// FieldLabels holds the user-facing name of each field.
var FieldLabels = map[string]string{
	FieldFullName:      "Nombre",
	FieldPhone:         "Teléfono",
	FieldAddress:       "Dirección",
	FieldTown:          "Pueblo afectado",
	FieldPostalCode:    "Código postal",
	FieldDescription:   "Descripción de la situación",
	FieldProfession:    "Profesión",
	FieldExperience:    "Formación y experiencia",
	FieldSpecialty:     "Especialidad",
	FieldLicenseNumber: "Número de colegiado",
	FieldUrgency:       "Nivel de urgencia",
	FieldReason:        "Motivo de consulta",
}

// IsMotherField reports whether field is an editable mother field.
func IsMotherField(field string) bool {
	return containsField(MotherFields, field)
}

// IsCollaboratorField reports whether field is an editable collaborator field.
func IsCollaboratorField(field string) bool {
	return containsField(CollaboratorFields, field)
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// Value returns the value of a mother field.
func (m *Mother) Value(field string) string {
	switch field {
	case FieldFullName:
		return m.FullName
	case FieldPhone:
		return m.Phone
	case FieldAddress:
		return m.Address
	case FieldTown:
		return m.Town
	case FieldPostalCode:
		return m.PostalCode
	case FieldDescription:
		return m.Description
	}
	return ""
}

// Collaborator is a professional offering help.
type Collaborator struct {
	TelegramID    int64     `json:"telegram_id"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone"`
	Profession    string    `json:"profession"`
	Experience    string    `json:"experience"`
	Specialty     string    `json:"specialty"`
	LicenseNumber string    `json:"license_number,omitempty"`
	Blocked       bool      `json:"blocked"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Value returns the value of a collaborator field.
func (c *Collaborator) Value(field string) string {
	switch field {
	case FieldFullName:
		return c.FullName
	case FieldPhone:
		return c.Phone
	case FieldProfession:
		return c.Profession
	case FieldExperience:
		return c.Experience
	case FieldSpecialty:
		return c.Specialty
	case FieldLicenseNumber:
		return c.LicenseNumber
	}
	return ""
}

// Urgency is the severity a mother assigns to a help request.
type Urgency string

const (
	UrgencyHigh   Urgency = "High"
	UrgencyMedium Urgency = "Medium"
	UrgencyLow    Urgency = "Low"
)

// ParseUrgency maps a form answer to an Urgency.
func ParseUrgency(answer string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "alto", "alta", "high":
		return UrgencyHigh, nil
	case "medio", "media", "medium":
		return UrgencyMedium, nil
	case "bajo", "baja", "low":
		return UrgencyLow, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUrgency, answer)
}

// Marker returns the visual severity indicator for the urgency.
func (u Urgency) Marker() string {
	switch u {
	case UrgencyHigh:
		return "🔴"
	case UrgencyMedium:
		return "🟠"
	case UrgencyLow:
		return "🟢"
	}
	return "⚪"
}

// Label returns the user-facing name of the urgency.
func (u Urgency) Label() string {
	switch u {
	case UrgencyHigh:
		return "Alto"
	case UrgencyMedium:
		return "Medio"
	case UrgencyLow:
		return "Bajo"
	}
	return string(u)
}

// RequestStatus is the lifecycle state of a help request.
type RequestStatus string

const (
	RequestPending RequestStatus = "pending"
	RequestClaimed RequestStatus = "claimed"
)

// Destination is a chat, optionally narrowed to a forum topic, that receives broadcasts.
type Destination struct {
	ChatID   int64 `json:"chat_id" yaml:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
}

// BroadcastHandle references a delivered broadcast notice so it can be retracted.
type BroadcastHandle struct {
	Destination Destination `json:"destination"`
	MessageID   int         `json:"message_id"`
}

// HelpRequest is a mother's request for professional help.
type HelpRequest struct {
	ID               int64             `json:"id"`
	RequesterID      int64             `json:"requester_id"`
	Urgency          Urgency           `json:"urgency"`
	Specialty        string            `json:"specialty"`
	Description      string            `json:"description"`
	Status           RequestStatus     `json:"status"`
	BroadcastHandles []BroadcastHandle `json:"broadcast_handles,omitempty"`
	ClaimedBy        *int64            `json:"claimed_by,omitempty"`
	ClaimedAt        *time.Time        `json:"claimed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Validate checks the fields required before a help request is persisted.
func (h *HelpRequest) Validate() error {
	if h.RequesterID == 0 {
		return ErrInvalidIdentity
	}
	switch h.Urgency {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
	default:
		return ErrInvalidUrgency
	}
	if strings.TrimSpace(h.Description) == "" {
		return ErrEmptyDescription
	}
	return nil
}
