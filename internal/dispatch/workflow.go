package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redmadres/danabot/internal/messaging"
	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/store"
)

// Escalator is notified of newly created High urgency requests.
type Escalator interface {
	Escalate(ctx context.Context, req models.HelpRequest, requester models.Mother) error
}

// Opts holds configuration options for the Workflow.
type Opts struct {
	Routes            *Routes
	Escalator         Escalator
	ProfessionalGroup int64 // group blocked claimants are removed from; 0 disables removal
	Clock             func() time.Time
}

// Option defines a configuration option for the Workflow.
type Option func(*Opts)

// WithRoutes sets the specialty routing table.
func WithRoutes(r *Routes) Option {
	return func(o *Opts) { o.Routes = r }
}

// WithEscalator sets the escalator for High urgency requests.
func WithEscalator(e Escalator) Option {
	return func(o *Opts) { o.Escalator = e }
}

// WithProfessionalGroup sets the shared professional group.
func WithProfessionalGroup(chatID int64) Option {
	return func(o *Opts) { o.ProfessionalGroup = chatID }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Workflow creates, broadcasts and claims help requests.
type Workflow struct {
	repo store.Repository
	msg  messaging.Service
	opts Opts
}

// NewWorkflow creates a Workflow.
func NewWorkflow(repo store.Repository, msg messaging.Service, opts ...Option) *Workflow {
	cfg := Opts{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Routes == nil {
		slog.Warn("dispatch.NewWorkflow: no routes configured, requests will not be broadcast")
		cfg.Routes = &Routes{}
	}
	return &Workflow{repo: repo, msg: msg, opts: cfg}
}

// CreateAndBroadcast validates a completed help-request answer set
// [urgency, specialty, description], persists a pending request and posts the
// notice to every destination of its specialty. Delivery failures to single
// destinations are logged and skipped.
func (w *Workflow) CreateAndBroadcast(ctx context.Context, requesterID int64, answers []string) (*models.HelpRequest, error) {
	if len(answers) < 3 {
		return nil, fmt.Errorf("%w: %w: got %d answers", models.ErrValidation, models.ErrIncompleteAnswers, len(answers))
	}
	urgency, err := models.ParseUrgency(answers[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	specialty := strings.TrimSpace(answers[1])
	if specialty == "" {
		specialty = models.SpecialtyOther.Label
	}

	mother, err := w.repo.GetMother(requesterID)
	if err != nil {
		slog.Error("Workflow.CreateAndBroadcast requester lookup failed", "requesterID", requesterID, "error", err)
		return nil, fmt.Errorf("%w: requester %d: %v", models.ErrNotFound, requesterID, err)
	}
	if mother == nil {
		return nil, fmt.Errorf("%w: requester %d", models.ErrNotFound, requesterID)
	}

	req := models.HelpRequest{
		RequesterID: requesterID,
		Urgency:     urgency,
		Specialty:   specialty,
		Description: strings.TrimSpace(answers[2]),
		Status:      models.RequestPending,
		CreatedAt:   w.opts.Clock(),
	}
	id, err := w.repo.CreateHelpRequest(req)
	if err != nil {
		slog.Error("Workflow.CreateAndBroadcast persist failed", "requesterID", requesterID, "error", err)
		return nil, err
	}
	req.ID = id
	slog.Info("Workflow.CreateAndBroadcast created request", "id", id, "requesterID", requesterID, "urgency", urgency, "specialty", specialty)

	notice := BroadcastNotice(req, *mother)
	dests := w.opts.Routes.Destinations(specialty)
	for _, dest := range dests {
		msgID, err := w.msg.SendMessage(ctx, dest, notice, ClaimKeyboard(id))
		if err != nil {
			slog.Error("Workflow.CreateAndBroadcast delivery failed", "id", id, "chatID", dest.ChatID, "threadID", dest.ThreadID, "error", err)
			continue
		}
		handle := models.BroadcastHandle{Destination: dest, MessageID: msgID}
		if err := w.repo.AddBroadcastHandle(id, handle); err != nil {
			slog.Error("Workflow.CreateAndBroadcast handle not recorded", "id", id, "chatID", dest.ChatID, "messageID", msgID, "error", err)
			continue
		}
		req.BroadcastHandles = append(req.BroadcastHandles, handle)
	}
	if len(dests) == 0 {
		slog.Warn("Workflow.CreateAndBroadcast no destinations", "id", id, "specialty", specialty)
	}

	if urgency == models.UrgencyHigh && w.opts.Escalator != nil {
		if err := w.opts.Escalator.Escalate(ctx, req, *mother); err != nil {
			slog.Error("Workflow.CreateAndBroadcast escalation failed", "id", id, "error", err)
		}
	}
	return &req, nil
}

// ClaimOutcome classifies the result of a claim attempt.
type ClaimOutcome int

const (
	ClaimAccepted ClaimOutcome = iota
	ClaimNotFound
	ClaimUnauthorized
	ClaimBlocked
	ClaimAlreadyTaken
	ClaimFailed
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAccepted:
		return "accepted"
	case ClaimNotFound:
		return "not_found"
	case ClaimUnauthorized:
		return "unauthorized"
	case ClaimBlocked:
		return "blocked"
	case ClaimAlreadyTaken:
		return "already_taken"
	case ClaimFailed:
		return "failed"
	}
	return fmt.Sprintf("claim_outcome(%d)", int(o))
}

// ClaimResult reports each phase of a claim separately. NotifyErr and
// RetractErr never undo an accepted claim.
type ClaimResult struct {
	Request    *models.HelpRequest
	Outcome    ClaimOutcome
	NotifyErr  error
	RetractErr error
}

// Claim runs the claim workflow for claimant on request requestID. The error
// wraps models.ErrNotFound, ErrUnauthorized, ErrBlocked or ErrConflict when
// the claim is rejected.
func (w *Workflow) Claim(ctx context.Context, requestID int64, claimant models.Sender) (ClaimResult, error) {
	res := ClaimResult{Outcome: ClaimNotFound}

	req, err := w.repo.GetHelpRequest(requestID)
	if err != nil {
		slog.Error("Workflow.Claim request lookup failed", "requestID", requestID, "error", err)
		return res, fmt.Errorf("%w: request %d: %v", models.ErrNotFound, requestID, err)
	}
	if req == nil {
		return res, fmt.Errorf("%w: request %d", models.ErrNotFound, requestID)
	}
	res.Request = req

	mother, err := w.repo.GetMother(req.RequesterID)
	if err != nil || mother == nil {
		slog.Error("Workflow.Claim requester missing", "requestID", requestID, "requesterID", req.RequesterID, "error", err)
		return res, fmt.Errorf("%w: requester %d", models.ErrNotFound, req.RequesterID)
	}

	collab, err := w.repo.GetCollaborator(claimant.ID)
	if err != nil {
		slog.Error("Workflow.Claim claimant lookup failed", "claimantID", claimant.ID, "error", err)
	}
	if collab == nil {
		res.Outcome = ClaimUnauthorized
		slog.Warn("Workflow.Claim denied: not a collaborator", "requestID", requestID, "claimantID", claimant.ID)
		return res, fmt.Errorf("%w: %d is not a registered collaborator", models.ErrUnauthorized, claimant.ID)
	}
	if collab.Blocked {
		res.Outcome = ClaimBlocked
		slog.Warn("Workflow.Claim denied: collaborator blocked", "requestID", requestID, "claimantID", claimant.ID)
		w.removeFromGroup(ctx, claimant.ID)
		return res, fmt.Errorf("%w: %w: collaborator %d", models.ErrUnauthorized, models.ErrBlocked, claimant.ID)
	}

	if req.Status == models.RequestClaimed {
		res.Outcome = ClaimAlreadyTaken
		return res, fmt.Errorf("%w: request %d", models.ErrConflict, requestID)
	}
	at := w.opts.Clock()
	if err := w.repo.ClaimHelpRequest(requestID, claimant.ID, at); err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			res.Outcome = ClaimAlreadyTaken
		case errors.Is(err, models.ErrNotFound):
			res.Outcome = ClaimNotFound
		default:
			res.Outcome = ClaimFailed
			slog.Error("Workflow.Claim update failed", "requestID", requestID, "claimantID", claimant.ID, "error", err)
		}
		return res, err
	}
	req.Status = models.RequestClaimed
	req.ClaimedBy = &claimant.ID
	req.ClaimedAt = &at
	res.Outcome = ClaimAccepted
	slog.Info("Workflow.Claim accepted", "requestID", requestID, "claimantID", claimant.ID)

	res.NotifyErr = w.notify(ctx, *req, *mother, *collab)
	res.RetractErr = w.retract(ctx, requestID)
	return res, nil
}

func (w *Workflow) notify(ctx context.Context, req models.HelpRequest, mother models.Mother, collab models.Collaborator) error {
	var errs []error
	if _, err := w.msg.SendMessage(ctx, models.Destination{ChatID: collab.TelegramID}, ClaimantIntroduction(req, mother), nil); err != nil {
		slog.Error("Workflow.notify claimant failed", "requestID", req.ID, "claimantID", collab.TelegramID, "error", err)
		errs = append(errs, fmt.Errorf("notify claimant: %w", err))
	}
	if _, err := w.msg.SendMessage(ctx, models.Destination{ChatID: mother.TelegramID}, RequesterNotice(req, collab), nil); err != nil {
		slog.Error("Workflow.notify requester failed", "requestID", req.ID, "requesterID", mother.TelegramID, "error", err)
		errs = append(errs, fmt.Errorf("notify requester: %w", err))
	}
	return errors.Join(errs...)
}

// retract deletes every recorded broadcast of the request. Handles are taken
// from the store first, so a second claim attempt never sees them again.
func (w *Workflow) retract(ctx context.Context, requestID int64) error {
	handles, err := w.repo.TakeBroadcastHandles(requestID)
	if err != nil {
		slog.Error("Workflow.retract handles unavailable", "requestID", requestID, "error", err)
		return fmt.Errorf("load broadcast handles: %w", err)
	}
	var errs []error
	for _, h := range handles {
		if err := w.msg.DeleteMessage(ctx, h.Destination.ChatID, h.MessageID); err != nil {
			slog.Warn("Workflow.retract delete failed", "requestID", requestID, "chatID", h.Destination.ChatID, "messageID", h.MessageID, "error", err)
			errs = append(errs, err)
		}
	}
	slog.Debug("Workflow.retract done", "requestID", requestID, "handles", len(handles), "failures", len(errs))
	return errors.Join(errs...)
}

func (w *Workflow) removeFromGroup(ctx context.Context, userID int64) {
	if w.opts.ProfessionalGroup == 0 {
		return
	}
	if err := w.msg.BanMember(ctx, w.opts.ProfessionalGroup, userID); err != nil {
		slog.Error("Workflow.removeFromGroup failed", "groupID", w.opts.ProfessionalGroup, "userID", userID, "error", err)
	}
}
