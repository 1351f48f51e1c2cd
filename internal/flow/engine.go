package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redmadres/danabot/internal/messaging"
	"github.com/redmadres/danabot/internal/models"
)

// Callback data understood by the engine.
const (
	CallbackAnswerPrefix = "answer_"
	CallbackConfirm      = "confirm_form"
	CallbackRedo         = "redo_form"
	CallbackRetry        = "retry_username"
)

// Outcome reports what a form operation left the conversation waiting for.
type Outcome int

const (
	// OutcomeIgnored means the input did not apply to the session.
	OutcomeIgnored Outcome = iota
	// OutcomeAsked means a question was emitted.
	OutcomeAsked
	// OutcomeReprompted means the input was rejected and the prompt repeated.
	OutcomeReprompted
	// OutcomeConfirming means the summary is waiting for confirmation.
	OutcomeConfirming
	// OutcomeDeferred means finalization is waiting for a retry.
	OutcomeDeferred
	// OutcomeCompleted means the form was finalized and cleared.
	OutcomeCompleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAsked:
		return "asked"
	case OutcomeReprompted:
		return "reprompted"
	case OutcomeConfirming:
		return "confirming"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeCompleted:
		return "completed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Finalizer persists a completed answer set. answers is index-aligned with
// the form's questions. Finalizers send their own completion messages.
type Finalizer interface {
	Finalize(ctx context.Context, conversationID int64, sender models.Sender, answers []string) error
}

// FinalizerFunc adapts a function to Finalizer.
type FinalizerFunc func(ctx context.Context, conversationID int64, sender models.Sender, answers []string) error

func (f FinalizerFunc) Finalize(ctx context.Context, conversationID int64, sender models.Sender, answers []string) error {
	return f(ctx, conversationID, sender, answers)
}

// Engine drives the linear question-and-answer state machine. It mutates the
// session passed in; callers persist it afterwards.
type Engine struct {
	msg        messaging.Service
	forms      map[models.FormKind]*Form
	finalizers map[models.FormKind]Finalizer
}

// NewEngine creates an engine over the default form catalog.
func NewEngine(msg messaging.Service) *Engine {
	return &Engine{
		msg:        msg,
		forms:      Forms,
		finalizers: make(map[models.FormKind]Finalizer),
	}
}

// RegisterFinalizer sets the finalizer for a form kind.
func (e *Engine) RegisterFinalizer(kind models.FormKind, f Finalizer) {
	e.finalizers[kind] = f
}

func (e *Engine) send(ctx context.Context, s *models.Session, text string, kb models.Keyboard) {
	if _, err := e.msg.SendMessage(ctx, models.Destination{ChatID: s.ConversationID}, text, kb); err != nil {
		slog.Error("Engine.send failed", "conversationID", s.ConversationID, "error", err)
	}
}

// Start clears any in-progress form and asks the first question of kind.
func (e *Engine) Start(ctx context.Context, s *models.Session, sender models.Sender, kind models.FormKind) (Outcome, error) {
	if _, ok := e.forms[kind]; !ok {
		return OutcomeIgnored, fmt.Errorf("%w: unknown form %q", models.ErrValidation, kind)
	}
	slog.Debug("Engine.Start", "conversationID", s.ConversationID, "form", kind)
	s.ClearForm()
	s.ActiveForm = kind
	return e.AskNext(ctx, s, sender, 0)
}

// AskNext emits question idx of the active form, or the confirmation summary
// (or finalization) once every question has been answered.
func (e *Engine) AskNext(ctx context.Context, s *models.Session, sender models.Sender, idx int) (Outcome, error) {
	form, ok := e.forms[s.ActiveForm]
	if !ok {
		return OutcomeIgnored, nil
	}
	if idx < form.Len() {
		s.Phase = models.PhaseAsking
		s.SetQuestionIndex(idx)
		q := form.Questions[idx]
		if q.IsChoice() {
			e.send(ctx, s, q.Prompt, q.Keyboard())
		} else {
			e.send(ctx, s, q.Prompt, nil)
		}
		return OutcomeAsked, nil
	}

	s.CurrentQuestionIndex = nil
	if form.Confirm {
		s.Phase = models.PhaseConfirming
		e.sendSummary(ctx, s, form)
		return OutcomeConfirming, nil
	}
	return e.finalize(ctx, s, sender, form)
}

// SubmitAnswer records free text for the current question. Text sent while a
// choice question is pending only repeats the choice keyboard.
func (e *Engine) SubmitAnswer(ctx context.Context, s *models.Session, sender models.Sender, text string) (Outcome, error) {
	form, ok := e.forms[s.ActiveForm]
	if !ok {
		return OutcomeIgnored, nil
	}
	switch s.Phase {
	case models.PhaseConfirming:
		e.sendSummary(ctx, s, form)
		return OutcomeReprompted, nil
	case models.PhaseFinalizing:
		e.sendRetry(ctx, s, "Pulsa «Reintentar» cuando quieras continuar.")
		return OutcomeReprompted, nil
	}

	idx, ok := s.QuestionIndex()
	if !ok || idx >= form.Len() || len(s.CollectedAnswers) != idx {
		slog.Warn("Engine.SubmitAnswer inconsistent session, restarting form", "conversationID", s.ConversationID, "form", s.ActiveForm, "answers", len(s.CollectedAnswers))
		return e.Restart(ctx, s, sender)
	}

	q := form.Questions[idx]
	if q.IsChoice() {
		e.send(ctx, s, "Por favor, selecciona una opción pulsando en uno de los botones.", q.Keyboard())
		return OutcomeReprompted, nil
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		e.send(ctx, s, q.Prompt, nil)
		return OutcomeReprompted, nil
	}
	if q.Optional && (answer == "-" || strings.EqualFold(answer, "no")) {
		answer = ""
	}
	s.CollectedAnswers = append(s.CollectedAnswers, answer)
	return e.AskNext(ctx, s, sender, idx+1)
}

// SubmitChoice records the canonical label for token. Unknown tokens store the
// question's fallback value.
func (e *Engine) SubmitChoice(ctx context.Context, s *models.Session, sender models.Sender, token string) (Outcome, error) {
	form, ok := e.forms[s.ActiveForm]
	if !ok || s.Phase != models.PhaseAsking {
		return OutcomeIgnored, nil
	}
	idx, ok := s.QuestionIndex()
	if !ok || idx >= form.Len() || len(s.CollectedAnswers) != idx {
		return e.Restart(ctx, s, sender)
	}
	q := form.Questions[idx]
	if !q.IsChoice() {
		e.send(ctx, s, q.Prompt, nil)
		return OutcomeReprompted, nil
	}

	label := q.Resolve(token)
	slog.Debug("Engine.SubmitChoice", "conversationID", s.ConversationID, "field", q.Field, "token", token, "label", label)
	s.CollectedAnswers = append(s.CollectedAnswers, label)
	e.send(ctx, s, fmt.Sprintf("%s: %s", models.FieldLabels[q.Field], label), nil)
	return e.AskNext(ctx, s, sender, idx+1)
}

// Restart clears the collected answers and asks question 0 again.
func (e *Engine) Restart(ctx context.Context, s *models.Session, sender models.Sender) (Outcome, error) {
	if !s.FormActive() {
		return OutcomeIgnored, nil
	}
	slog.Debug("Engine.Restart", "conversationID", s.ConversationID, "form", s.ActiveForm)
	s.CollectedAnswers = []string{}
	s.SetQuestionIndex(0)
	return e.AskNext(ctx, s, sender, 0)
}

// Confirm finalizes a form whose summary is awaiting confirmation.
func (e *Engine) Confirm(ctx context.Context, s *models.Session, sender models.Sender) (Outcome, error) {
	form, ok := e.forms[s.ActiveForm]
	if !ok || s.Phase != models.PhaseConfirming {
		return OutcomeIgnored, nil
	}
	return e.finalize(ctx, s, sender, form)
}

// RetryFinalize repeats a finalization that was deferred.
func (e *Engine) RetryFinalize(ctx context.Context, s *models.Session, sender models.Sender) (Outcome, error) {
	form, ok := e.forms[s.ActiveForm]
	if !ok || s.Phase != models.PhaseFinalizing {
		return OutcomeIgnored, nil
	}
	return e.finalize(ctx, s, sender, form)
}

// Cancel drops the active form without saving anything. It reports whether a
// form was active.
func (e *Engine) Cancel(ctx context.Context, s *models.Session) bool {
	if !s.FormActive() {
		return false
	}
	slog.Debug("Engine.Cancel", "conversationID", s.ConversationID, "form", s.ActiveForm)
	s.ClearForm()
	e.send(ctx, s, "Formulario cancelado. No se ha guardado nada.", nil)
	return true
}

// HandleButton routes engine callback data. It returns OutcomeIgnored for
// data that is not an engine callback.
func (e *Engine) HandleButton(ctx context.Context, s *models.Session, sender models.Sender, data string) (Outcome, error) {
	if !s.FormActive() {
		return OutcomeIgnored, nil
	}
	switch {
	case strings.HasPrefix(data, CallbackAnswerPrefix):
		return e.SubmitChoice(ctx, s, sender, strings.TrimPrefix(data, CallbackAnswerPrefix))
	case data == CallbackConfirm:
		return e.Confirm(ctx, s, sender)
	case data == CallbackRedo:
		return e.Restart(ctx, s, sender)
	case data == CallbackRetry:
		return e.RetryFinalize(ctx, s, sender)
	}
	return OutcomeIgnored, nil
}

// Summary renders the collected answers with their field labels.
func Summary(form *Form, answers []string) string {
	var b strings.Builder
	for i, q := range form.Questions {
		value := ""
		if i < len(answers) {
			value = answers[i]
		}
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%s: %s\n", models.FieldLabels[q.Field], value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Engine) sendSummary(ctx context.Context, s *models.Session, form *Form) {
	text := "Revisa tus respuestas:\n\n" + Summary(form, s.CollectedAnswers) + "\n\n¿Son correctas?"
	e.send(ctx, s, text, models.Keyboard{{
		{Text: "✅ Confirmar", Data: CallbackConfirm},
		{Text: "🔄 Rehacer", Data: CallbackRedo},
	}})
}

func (e *Engine) sendRetry(ctx context.Context, s *models.Session, text string) {
	e.send(ctx, s, text, models.Keyboard{{{Text: "Reintentar", Data: CallbackRetry}}})
}

func (e *Engine) finalize(ctx context.Context, s *models.Session, sender models.Sender, form *Form) (Outcome, error) {
	if len(s.CollectedAnswers) != form.Len() {
		slog.Warn("Engine.finalize incomplete answers, restarting", "conversationID", s.ConversationID, "form", form.Kind, "answers", len(s.CollectedAnswers))
		e.send(ctx, s, "Faltan respuestas. Vamos a empezar de nuevo.", nil)
		return e.Restart(ctx, s, sender)
	}

	s.CurrentQuestionIndex = nil
	if form.RequireHandle && sender.Username == "" {
		s.Phase = models.PhaseFinalizing
		slog.Info("Engine.finalize deferred: missing username", "conversationID", s.ConversationID, "form", form.Kind)
		e.sendRetry(ctx, s, "No he podido conseguir tu nombre de usuario de Telegram. "+
			"Por favor, establece un usuario en los ajustes de Telegram y pulsa «Reintentar».")
		return OutcomeDeferred, nil
	}

	fin, ok := e.finalizers[form.Kind]
	if !ok {
		return OutcomeIgnored, fmt.Errorf("no finalizer registered for form %q", form.Kind)
	}
	if err := fin.Finalize(ctx, s.ConversationID, sender, s.CollectedAnswers); err != nil {
		s.Phase = models.PhaseFinalizing
		slog.Error("Engine.finalize failed", "conversationID", s.ConversationID, "form", form.Kind, "error", err)
		e.sendRetry(ctx, s, "No hemos podido guardar tus datos. Pulsa «Reintentar» para intentarlo de nuevo.")
		return OutcomeDeferred, nil
	}

	if form.Role != "" {
		s.Role = form.Role
	}
	s.ClearForm()
	slog.Info("Engine.finalize completed", "conversationID", s.ConversationID, "form", form.Kind, "role", s.Role)
	return OutcomeCompleted, nil
}
