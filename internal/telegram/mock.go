package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/redmadres/danabot/internal/models"
)

type SentMessage struct {
	Dest      models.Destination
	Text      string
	Keyboard  models.Keyboard
	MessageID int
}

type DeletedMessage struct {
	ChatID    int64
	MessageID int
}

type CallbackAnswer struct {
	CallbackID string
	Text       string
	Alert      bool
}

type Ban struct {
	ChatID int64
	UserID int64
}

// MockClient records outbound calls. The Fail* fields inject errors.
type MockClient struct {
	mu sync.Mutex

	SentMessages []SentMessage
	Deleted      []DeletedMessage
	Answers      []CallbackAnswer
	Invites      []int64
	Bans         []Ban

	FailSendTo map[int64]error
	FailDelete error
	FailAnswer error
	FailInvite error
	FailBan    error

	nextID int
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{FailSendTo: map[int64]error{}, nextID: 1000}
}

func (m *MockClient) SendMessage(ctx context.Context, dest models.Destination, text string, keyboard models.Keyboard) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailSendTo[dest.ChatID]; err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	m.nextID++
	m.SentMessages = append(m.SentMessages, SentMessage{Dest: dest, Text: text, Keyboard: keyboard, MessageID: m.nextID})
	return m.nextID, nil
}

func (m *MockClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, m.FailDelete)
	}
	m.Deleted = append(m.Deleted, DeletedMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

func (m *MockClient) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAnswer != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, m.FailAnswer)
	}
	m.Answers = append(m.Answers, CallbackAnswer{CallbackID: callbackID, Text: text, Alert: alert})
	return nil
}

func (m *MockClient) CreateInviteLink(ctx context.Context, chatID int64, memberLimit int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInvite != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransport, m.FailInvite)
	}
	m.Invites = append(m.Invites, chatID)
	return fmt.Sprintf("https://t.me/+mock%d", len(m.Invites)), nil
}

func (m *MockClient) BanMember(ctx context.Context, chatID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBan != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, m.FailBan)
	}
	m.Bans = append(m.Bans, Ban{ChatID: chatID, UserID: userID})
	return nil
}

// MessagesTo returns the messages sent to chatID, in order.
func (m *MockClient) MessagesTo(chatID int64) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, s := range m.SentMessages {
		if s.Dest.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// LastMessageTo returns the most recent message sent to chatID.
func (m *MockClient) LastMessageTo(chatID int64) (SentMessage, bool) {
	msgs := m.MessagesTo(chatID)
	if len(msgs) == 0 {
		return SentMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

// Reset clears recorded calls but keeps the failure settings.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = nil
	m.Deleted = nil
	m.Answers = nil
	m.Invites = nil
	m.Bans = nil
}

// Snapshot copies the recorded calls for inspection.
func (m *MockClient) Snapshot() (sent []SentMessage, deleted []DeletedMessage, answers []CallbackAnswer, bans []Ban) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sent = append(sent, m.SentMessages...)
	deleted = append(deleted, m.Deleted...)
	answers = append(answers, m.Answers...)
	bans = append(bans, m.Bans...)
	return
}
