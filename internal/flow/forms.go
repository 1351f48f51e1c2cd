// Package flow implements the sequential form engine and the form catalog.
package flow

import (
	"github.com/redmadres/danabot/internal/models"
)

// Choice is one button of an enumerated-choice question.
type Choice struct {
	Token string // carried in the callback data
	Label string // stored as the answer
}

// Question is one step of a form. A question with Choices expects a button
// press; any other question expects free text.
type Question struct {
	Field  string
	Prompt string

	Choices []Choice
	// Fallback is stored when a pressed token matches no choice.
	Fallback string
	// Columns is the number of buttons per keyboard row, default 1.
	Columns int

	// Optional questions accept "-" or "no" as an empty answer.
	Optional bool
}

// IsChoice reports whether the question expects a button press.
func (q Question) IsChoice() bool {
	return len(q.Choices) > 0
}

// Resolve maps a callback token to the stored label.
func (q Question) Resolve(token string) string {
	for _, c := range q.Choices {
		if c.Token == token {
			return c.Label
		}
	}
	return q.Fallback
}

// Keyboard renders the question's choices as callback buttons.
func (q Question) Keyboard() models.Keyboard {
	cols := q.Columns
	if cols < 1 {
		cols = 1
	}
	var kb models.Keyboard
	for i := 0; i < len(q.Choices); i += cols {
		end := i + cols
		if end > len(q.Choices) {
			end = len(q.Choices)
		}
		row := make([]models.Button, 0, cols)
		for _, c := range q.Choices[i:end] {
			row = append(row, models.Button{Text: c.Label, Data: CallbackAnswerPrefix + c.Token})
		}
		kb = append(kb, row)
	}
	return kb
}

// Form is an ordered question list plus completion policy.
type Form struct {
	Kind      models.FormKind
	Questions []Question
	// Confirm shows a summary and waits for confirmation before finalizing.
	Confirm bool
	// RequireHandle defers finalization until the sender has a username.
	RequireHandle bool
	// Role is assigned to the session once the form is finalized. Empty keeps the current role.
	Role models.Role
}

// Len returns the number of questions.
func (f *Form) Len() int {
	return len(f.Questions)
}

func specialtyChoices() []Choice {
	out := make([]Choice, 0, len(models.Specialties))
	for _, s := range models.Specialties {
		out = append(out, Choice{Token: s.Key, Label: s.Label})
	}
	return out
}

// MotherForm registers a mother.
var MotherForm = &Form{
	Kind: models.FormMother,
	Questions: []Question{
		{Field: models.FieldFullName, Prompt: "Dime tu nombre y apellidos"},
		{Field: models.FieldPhone, Prompt: "Escribe tu teléfono de contacto"},
		{Field: models.FieldAddress, Prompt: "Escribe tu dirección"},
		{Field: models.FieldTown, Prompt: "¿En qué pueblo afectado por la DANA te encuentras?"},
		{Field: models.FieldPostalCode, Prompt: "Escribe el código postal"},
		{Field: models.FieldDescription, Prompt: "Describe qué daños te ha causado la DANA y cuál es tu situación actual."},
	},
	Confirm: true,
	Role:    models.RoleMother,
}

// CollaboratorForm registers a professional. The username is required so
// mothers can contact the collaborator directly after a claim.
var CollaboratorForm = &Form{
	Kind: models.FormCollaborator,
	Questions: []Question{
		{Field: models.FieldFullName, Prompt: "Escribe tu nombre completo"},
		{Field: models.FieldPhone, Prompt: "Escribe tu teléfono de contacto"},
		{Field: models.FieldProfession, Prompt: "¿Cuál es tu profesión?"},
		{Field: models.FieldExperience, Prompt: "¿Cuál es tu formación y experiencia en el área maternoinfantil?"},
		{
			Field:    models.FieldSpecialty,
			Prompt:   "Elige el tipo de ayuda que puedes ofrecer (especialidad)",
			Choices:  specialtyChoices(),
			Fallback: models.SpecialtyOther.Label,
			Columns:  2,
		},
		{Field: models.FieldLicenseNumber, Prompt: "Escribe tu número de colegiado (escribe \"-\" si no tienes)", Optional: true},
	},
	Confirm:       true,
	RequireHandle: true,
	Role:          models.RoleCollaborator,
}

// HelpRequestForm collects a mother's request for professional help.
var HelpRequestForm = &Form{
	Kind: models.FormHelpRequest,
	Questions: []Question{
		{
			Field:  models.FieldUrgency,
			Prompt: "¿Cuál es el nivel de urgencia?",
			Choices: []Choice{
				{Token: "HIGH", Label: models.UrgencyHigh.Label()},
				{Token: "MEDIUM", Label: models.UrgencyMedium.Label()},
				{Token: "LOW", Label: models.UrgencyLow.Label()},
			},
			Fallback: models.UrgencyMedium.Label(),
			Columns:  3,
		},
		{
			Field:    models.FieldSpecialty,
			Prompt:   "¿Qué tipo de especialista necesitas?",
			Choices:  specialtyChoices(),
			Fallback: models.SpecialtyOther.Label,
			Columns:  2,
		},
		{Field: models.FieldReason, Prompt: "Describe brevemente el motivo de tu consulta"},
	},
}

// Forms indexes the catalog by kind.
var Forms = map[models.FormKind]*Form{
	models.FormMother:       MotherForm,
	models.FormCollaborator: CollaboratorForm,
	models.FormHelpRequest:  HelpRequestForm,
}

// FormFor returns the form of the given kind.
func FormFor(kind models.FormKind) (*Form, bool) {
	f, ok := Forms[kind]
	return f, ok
}
