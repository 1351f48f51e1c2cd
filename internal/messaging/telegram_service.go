package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/telegram"
)

// TelegramService implements Service on top of a telegram.Sender.
type TelegramService struct {
	client  telegram.Sender // real Client or MockClient
	limiter *rate.Limiter
	events  chan models.Event
	mu      sync.RWMutex
	stopped bool
}

var _ Service = (*TelegramService)(nil)

// NewTelegramService wraps client with an outbound limit of perSecond calls.
// A non-positive perSecond uses DefaultSendRate.
func NewTelegramService(client telegram.Sender, perSecond float64) *TelegramService {
	if perSecond <= 0 {
		perSecond = DefaultSendRate
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &TelegramService{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		events:  make(chan models.Event, DefaultChannelBufferSize),
	}
}

func (s *TelegramService) ValidateDestination(dest models.Destination) error {
	if dest.ChatID == 0 {
		return fmt.Errorf("%w: destination chat id cannot be zero", models.ErrValidation)
	}
	if dest.ThreadID < 0 {
		return fmt.Errorf("%w: invalid thread id %d", models.ErrValidation, dest.ThreadID)
	}
	return nil
}

// Start is a no-op; updates arrive through the webhook.
func (s *TelegramService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channel. Deliver holds the read lock, so no send races the close.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.events)
	return nil
}

// before checks the stopped flag and waits for the rate limiter.
func (s *TelegramService) before(ctx context.Context) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", models.ErrTransport, err)
	}
	return nil
}

func (s *TelegramService) SendMessage(ctx context.Context, dest models.Destination, text string, keyboard models.Keyboard) (int, error) {
	if err := s.ValidateDestination(dest); err != nil {
		slog.Error("TelegramService SendMessage validation error", "error", err, "chatID", dest.ChatID)
		return 0, err
	}
	if err := s.before(ctx); err != nil {
		return 0, err
	}
	return s.client.SendMessage(ctx, dest, text, keyboard)
}

func (s *TelegramService) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := s.before(ctx); err != nil {
		return err
	}
	return s.client.DeleteMessage(ctx, chatID, messageID)
}

func (s *TelegramService) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if callbackID == "" {
		return nil
	}
	if err := s.before(ctx); err != nil {
		return err
	}
	return s.client.AnswerCallback(ctx, callbackID, text, alert)
}

func (s *TelegramService) CreateInviteLink(ctx context.Context, chatID int64, memberLimit int) (string, error) {
	if err := s.before(ctx); err != nil {
		return "", err
	}
	return s.client.CreateInviteLink(ctx, chatID, memberLimit)
}

func (s *TelegramService) BanMember(ctx context.Context, chatID, userID int64) error {
	if err := s.before(ctx); err != nil {
		return err
	}
	return s.client.BanMember(ctx, chatID, userID)
}

func (s *TelegramService) Events() <-chan models.Event {
	return s.events
}

// Deliver safely pushes an inbound event into the events channel.
func (s *TelegramService) Deliver(ev models.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TelegramService dropping inbound event (service stopped)", "conversationID", ev.Meta().ConversationID)
		return ErrServiceStopped
	}

	select {
	case s.events <- ev:
		slog.Debug("TelegramService queued inbound event", "updateID", ev.Meta().UpdateID, "conversationID", ev.Meta().ConversationID)
		return nil
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TelegramService events channel blocked, dropping event", "updateID", ev.Meta().UpdateID)
		return fmt.Errorf("%w: inbound queue full", models.ErrServiceUnavailable)
	}
}
