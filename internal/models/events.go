package models

// ChatType distinguishes private conversations from groups.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// Sender identifies the external user behind an event.
type Sender struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Envelope carries the routing data common to every inbound event.
type Envelope struct {
	UpdateID       int64    `json:"update_id"`
	ConversationID int64    `json:"conversation_id"`
	ChatType       ChatType `json:"chat_type"`
	Sender         Sender   `json:"sender"`
}

// Event is an inbound event. The set of implementations is closed:
// Command, ButtonPress and TextMessage.
type Event interface {
	Meta() Envelope
	isEvent()
}

// Command is a slash command such as /start.
type Command struct {
	Envelope
	Name string
	Args string
}

// ButtonPress is an inline keyboard callback.
type ButtonPress struct {
	Envelope
	CallbackID string
	Data       string
	// MessageID is the message that carried the keyboard, zero if unknown.
	MessageID int
}

// TextMessage is free text typed by the user.
type TextMessage struct {
	Envelope
	Text string
}

func (c Command) Meta() Envelope     { return c.Envelope }
func (b ButtonPress) Meta() Envelope { return b.Envelope }
func (t TextMessage) Meta() Envelope { return t.Envelope }

func (Command) isEvent()     {}
func (ButtonPress) isEvent() {}
func (TextMessage) isEvent() {}

// Private reports whether the event came from a one-to-one chat.
func (e Envelope) Private() bool {
	return e.ChatType == ChatPrivate
}

// Button is an inline keyboard button carrying opaque callback data.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

