// Package telegram wraps the Telegram Bot API for danabot.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/redmadres/danabot/internal/models"
)

// Sender is the outbound surface of the Bot API used by danabot.
type Sender interface {
	// SendMessage delivers text to dest and returns the message ID Telegram assigned.
	SendMessage(ctx context.Context, dest models.Destination, text string, keyboard models.Keyboard) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	// CreateInviteLink returns a link to chatID limited to memberLimit joins (0 means unlimited).
	CreateInviteLink(ctx context.Context, chatID int64, memberLimit int) (string, error)
	BanMember(ctx context.Context, chatID, userID int64) error
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token     string
	ServerURL string // override for tests or a local Bot API server
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token issued by BotFather.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithServerURL points the client at a different Bot API server.
func WithServerURL(url string) Option {
	return func(o *Opts) { o.ServerURL = url }
}

// Client wraps the go-telegram Bot API client.
type Client struct {
	bot *bot.Bot
}

var _ Sender = (*Client)(nil)

// NewClient builds a Client. Updates arrive through the webhook, so the
// client never polls.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	slog.Debug("Telegram client config loaded", "Token_set", cfg.Token != "", "ServerURL", cfg.ServerURL)
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}

	botOpts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(cfg.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Client{bot: b}, nil
}

func toMarkup(keyboard models.Keyboard) tgmodels.ReplyMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]tgmodels.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgmodels.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgmodels.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// SendMessage sends a text message, with an inline keyboard when one is given.
func (c *Client) SendMessage(ctx context.Context, dest models.Destination, text string, keyboard models.Keyboard) (int, error) {
	params := &bot.SendMessageParams{
		ChatID:          dest.ChatID,
		MessageThreadID: dest.ThreadID,
		Text:            text,
	}
	if markup := toMarkup(keyboard); markup != nil {
		params.ReplyMarkup = markup
	}
	msg, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		slog.Error("Telegram SendMessage failed", "chatID", dest.ChatID, "threadID", dest.ThreadID, "error", err)
		return 0, fmt.Errorf("%w: send to %d: %v", models.ErrTransport, dest.ChatID, err)
	}
	slog.Debug("Telegram message sent", "chatID", dest.ChatID, "messageID", msg.ID)
	return msg.ID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	if err != nil {
		slog.Error("Telegram DeleteMessage failed", "chatID", chatID, "messageID", messageID, "error", err)
		return fmt.Errorf("%w: delete %d/%d: %v", models.ErrTransport, chatID, messageID, err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	_, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		slog.Error("Telegram AnswerCallback failed", "callbackID", callbackID, "error", err)
		return fmt.Errorf("%w: answer callback: %v", models.ErrTransport, err)
	}
	return nil
}

func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, memberLimit int) (string, error) {
	link, err := c.bot.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
		ChatID:      chatID,
		MemberLimit: memberLimit,
	})
	if err != nil {
		slog.Error("Telegram CreateInviteLink failed", "chatID", chatID, "error", err)
		return "", fmt.Errorf("%w: invite link for %d: %v", models.ErrTransport, chatID, err)
	}
	return link.InviteLink, nil
}

func (c *Client) BanMember(ctx context.Context, chatID, userID int64) error {
	_, err := c.bot.BanChatMember(ctx, &bot.BanChatMemberParams{ChatID: chatID, UserID: userID})
	if err != nil {
		slog.Error("Telegram BanMember failed", "chatID", chatID, "userID", userID, "error", err)
		return fmt.Errorf("%w: ban %d from %d: %v", models.ErrTransport, userID, chatID, err)
	}
	slog.Info("Telegram member banned", "chatID", chatID, "userID", userID)
	return nil
}
