package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/redmadres/danabot/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the inbound event channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
	// DefaultSendRate is the outbound call budget per second. Telegram allows
	// roughly 30 messages per second per bot.
	DefaultSendRate = 25
)

var (
	// ErrServiceStopped is returned by calls made after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
)

// Service defines the message delivery abstraction used by the bot.
// Outbound calls go to the chat platform; inbound events are pushed with
// Deliver and consumed from Events.
type Service interface {
	// ValidateDestination rejects destinations that cannot be addressed.
	ValidateDestination(dest models.Destination) error

	// SendMessage sends text, with an optional inline keyboard, and returns the message ID.
	SendMessage(ctx context.Context, dest models.Destination, text string, keyboard models.Keyboard) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	CreateInviteLink(ctx context.Context, chatID int64, memberLimit int) (string, error)
	BanMember(ctx context.Context, chatID, userID int64) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and closes the event channel.
	Stop() error

	// Deliver queues an inbound event. It fails when the service is stopped
	// or the queue stays full past DefaultChannelTimeout.
	Deliver(ev models.Event) error

	// Events returns the channel of inbound events.
	Events() <-chan models.Event
}
