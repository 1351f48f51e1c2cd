// Package bot routes inbound chat events to the form engine, the role menus
// and the claim workflow.
package bot

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/redmadres/danabot/internal/dispatch"
	"github.com/redmadres/danabot/internal/flow"
	"github.com/redmadres/danabot/internal/messaging"
	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/roles"
	"github.com/redmadres/danabot/internal/store"
)

// Opts holds configuration options for the Router.
type Opts struct {
	ProfessionalGroup int64 // group new collaborators are invited to; 0 disables invites
}

// Option defines a configuration option for the Router.
type Option func(*Opts)

// WithProfessionalGroup sets the shared professional group.
func WithProfessionalGroup(chatID int64) Option {
	return func(o *Opts) { o.ProfessionalGroup = chatID }
}

// Router handles one inbound event at a time: it loads the session, resolves
// the role, hands the event to the first branch that claims it and saves the
// session.
type Router struct {
	msg      messaging.Service
	repo     store.Repository
	dedup    store.DedupRepo
	sessions *flow.SessionManager
	engine   *flow.Engine
	roles    *roles.Registry
	workflow *dispatch.Workflow
	opts     Opts
}

// NewRouter wires a Router and registers the form finalizers.
func NewRouter(st store.Store, msg messaging.Service, reg *roles.Registry, wf *dispatch.Workflow, opts ...Option) *Router {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Router{
		msg:      msg,
		repo:     st,
		dedup:    st,
		sessions: flow.NewSessionManager(st),
		engine:   flow.NewEngine(msg),
		roles:    reg,
		workflow: wf,
		opts:     cfg,
	}
	r.engine.RegisterFinalizer(models.FormMother, flow.FinalizerFunc(r.finalizeMother))
	r.engine.RegisterFinalizer(models.FormCollaborator, flow.FinalizerFunc(r.finalizeCollaborator))
	r.engine.RegisterFinalizer(models.FormHelpRequest, flow.FinalizerFunc(r.finalizeHelpRequest))
	return r
}

// Run consumes events from the messaging service until ctx is done or the
// event channel is closed.
func (r *Router) Run(ctx context.Context) error {
	slog.Info("Router.Run started")
	events := r.msg.Events()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Router.Run stopping", "reason", ctx.Err())
			return nil
		case ev, ok := <-events:
			if !ok {
				slog.Info("Router.Run event channel closed")
				return nil
			}
			if err := r.HandleEvent(ctx, ev); err != nil {
				slog.Error("Router.Run event failed", "error", err)
			}
		}
	}
}

// HandleEvent processes a single inbound event to completion. Redelivered
// updates are dropped. The only error returned is a failure to persist the
// session.
func (r *Router) HandleEvent(ctx context.Context, ev models.Event) error {
	meta := ev.Meta()
	log := slog.With("correlationID", uuid.NewString(), "updateID", meta.UpdateID,
		"conversationID", meta.ConversationID, "senderID", meta.Sender.ID)

	if meta.UpdateID != 0 {
		fresh, err := r.dedup.RecordInbound(meta.UpdateID, meta.ConversationID)
		if err != nil {
			log.Error("Router.HandleEvent dedup record failed, processing anyway", "error", err)
		} else if !fresh {
			log.Info("Router.HandleEvent duplicate update dropped")
			return nil
		}
		defer func() {
			if err := r.dedup.MarkProcessed(meta.UpdateID); err != nil {
				log.Warn("Router.HandleEvent mark processed failed", "error", err)
			}
		}()
	}

	if !meta.Private() {
		if bp, ok := ev.(models.ButtonPress); ok {
			if !r.handleClaim(ctx, bp) {
				r.ack(ctx, bp.CallbackID, "", false)
			}
		}
		log.Debug("Router.HandleEvent group event done", "chatType", meta.ChatType)
		return nil
	}

	s := r.sessions.Load(meta.ConversationID)
	role := r.roles.Resolve(s, meta.Sender.ID)
	log.Debug("Router.HandleEvent", "role", role, "form", s.ActiveForm, "phase", s.Phase)

	switch e := ev.(type) {
	case models.Command:
		r.handleCommand(ctx, s, e)
	case models.ButtonPress:
		if !r.handleButton(ctx, s, e) {
			r.ack(ctx, e.CallbackID, "", false)
		}
	case models.TextMessage:
		r.handleText(ctx, s, e)
	default:
		log.Warn("Router.HandleEvent unsupported event", "type", ev)
	}

	return r.sessions.Save(s)
}

// handleButton applies the branch priority: administrator, mother,
// collaborator, generic. It reports whether the callback was already answered.
func (r *Router) handleButton(ctx context.Context, s *models.Session, e models.ButtonPress) bool {
	switch {
	case s.Role == models.RoleAdministrator:
		if r.adminButton(ctx, s, e) {
			return false
		}
	case s.Role == models.RoleMother || s.ActiveForm == models.FormMother:
		if r.motherButton(ctx, s, e) {
			return false
		}
	case s.Role == models.RoleCollaborator || s.ActiveForm == models.FormCollaborator:
		if r.collaboratorButton(ctx, s, e) {
			return false
		}
	}
	return r.genericButton(ctx, s, e)
}

// handleText applies the same priority as handleButton to free text.
func (r *Router) handleText(ctx context.Context, s *models.Session, e models.TextMessage) {
	switch {
	case s.Role == models.RoleAdministrator:
		if r.adminText(ctx, s, e) {
			return
		}
	case s.Role == models.RoleMother || s.ActiveForm == models.FormMother:
		if r.motherText(ctx, s, e) {
			return
		}
	case s.Role == models.RoleCollaborator || s.ActiveForm == models.FormCollaborator:
		if r.collaboratorText(ctx, s, e) {
			return
		}
	}
	r.genericText(ctx, s, e)
}

func (r *Router) send(ctx context.Context, s *models.Session, text string, kb models.Keyboard) {
	if _, err := r.msg.SendMessage(ctx, models.Destination{ChatID: s.ConversationID}, text, kb); err != nil {
		slog.Error("Router.send failed", "conversationID", s.ConversationID, "error", err)
	}
}

func (r *Router) ack(ctx context.Context, callbackID, text string, alert bool) {
	if err := r.msg.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		slog.Warn("Router.ack failed", "callbackID", callbackID, "error", err)
	}
}

// startForm begins a form from question 0, dropping any half-finished edit.
func (r *Router) startForm(ctx context.Context, s *models.Session, sender models.Sender, kind models.FormKind) {
	s.CurrentEditingField = ""
	if _, err := r.engine.Start(ctx, s, sender, kind); err != nil {
		slog.Error("Router.startForm failed", "conversationID", s.ConversationID, "form", kind, "error", err)
	}
}

// formButton hands engine callbacks to the engine. It reports whether the
// engine consumed the data.
func (r *Router) formButton(ctx context.Context, s *models.Session, e models.ButtonPress) bool {
	if !s.FormActive() {
		return false
	}
	out, err := r.engine.HandleButton(ctx, s, e.Sender, e.Data)
	if err != nil {
		slog.Error("Router.formButton engine error", "conversationID", s.ConversationID, "form", s.ActiveForm, "error", err)
	}
	return out != flow.OutcomeIgnored
}

func (r *Router) formText(ctx context.Context, s *models.Session, e models.TextMessage) bool {
	if !s.FormActive() {
		return false
	}
	if _, err := r.engine.SubmitAnswer(ctx, s, e.Sender, e.Text); err != nil {
		slog.Error("Router.formText engine error", "conversationID", s.ConversationID, "form", s.ActiveForm, "error", err)
	}
	return true
}
