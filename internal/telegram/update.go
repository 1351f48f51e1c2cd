package telegram

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redmadres/danabot/internal/models"
)

// Update is the subset of a Bot API update that danabot consumes.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type Message struct {
	MessageID       int    `json:"message_id"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
	From            *User  `json:"from,omitempty"`
	Chat            Chat   `json:"chat"`
	Text            string `json:"text,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ParseUpdate decodes a webhook body into an event. It returns (nil, nil) for
// well-formed updates danabot does not act on, such as stickers or edits.
func ParseUpdate(body []byte) (models.Event, error) {
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: invalid update body: %v", models.ErrValidation, err)
	}
	return u.Event(), nil
}

// Event converts the update into an inbound event, or nil when there is nothing to handle.
func (u Update) Event() models.Event {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		env := models.Envelope{
			UpdateID:       u.UpdateID,
			ConversationID: cq.From.ID,
			ChatType:       models.ChatPrivate,
			Sender:         toSender(cq.From),
		}
		msgID := 0
		if cq.Message != nil {
			env.ConversationID = cq.Message.Chat.ID
			env.ChatType = models.ChatType(cq.Message.Chat.Type)
			msgID = cq.Message.MessageID
		}
		return models.ButtonPress{Envelope: env, CallbackID: cq.ID, Data: cq.Data, MessageID: msgID}

	case u.Message != nil && u.Message.From != nil && u.Message.Text != "":
		m := u.Message
		env := models.Envelope{
			UpdateID:       u.UpdateID,
			ConversationID: m.Chat.ID,
			ChatType:       models.ChatType(m.Chat.Type),
			Sender:         toSender(*m.From),
		}
		if name, args, ok := parseCommand(m.Text); ok {
			return models.Command{Envelope: env, Name: name, Args: args}
		}
		return models.TextMessage{Envelope: env, Text: m.Text}
	}
	return nil
}

func toSender(u User) models.Sender {
	return models.Sender{ID: u.ID, Username: u.Username, FirstName: u.FirstName}
}

// parseCommand splits "/start@danabot foo" into ("start", "foo").
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}
