// Package escalation pages on-call volunteers by SMS when a High urgency help
// request is created.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/redmadres/danabot/internal/models"
)

// SMSSender delivers a single text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Opts holds configuration options for the Twilio SMS client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio SMS client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Client wraps the Twilio REST API for SMS.
type Client struct {
	client     *twilio.RestClient
	fromNumber string
}

var _ SMSSender = (*Client)(nil)

// NewClient creates a Twilio client. Unset options fall back to
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("escalation.NewClient config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: account SID and auth token must be provided", models.ErrValidation)
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("%w: from number must be provided", models.ErrValidation)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, fromNumber: cfg.FromNumber}, nil
}

// SendSMS sends body to the given number.
func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Client.SendSMS failed", "to", to, "error", err)
		return fmt.Errorf("%w: failed to send sms to %s: %v", models.ErrTransport, to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Client.SendSMS sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// Notifier sends an SMS about each escalated request to every recipient.
type Notifier struct {
	sender     SMSSender
	recipients []string
}

// NewNotifier creates a Notifier. Blank recipients are dropped.
func NewNotifier(sender SMSSender, recipients []string) *Notifier {
	var clean []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return &Notifier{sender: sender, recipients: clean}
}

// Escalate pages every recipient. All recipients are attempted; the joined
// error reports the ones that failed.
func (n *Notifier) Escalate(ctx context.Context, req models.HelpRequest, requester models.Mother) error {
	if len(n.recipients) == 0 {
		slog.Warn("Notifier.Escalate: no recipients configured", "requestID", req.ID)
		return nil
	}
	body := Message(req, requester)
	var errs []error
	for _, to := range n.recipients {
		if err := n.sender.SendSMS(ctx, to, body); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Info("Notifier.Escalate done", "requestID", req.ID, "recipients", len(n.recipients), "failures", len(errs))
	return errors.Join(errs...)
}

// Message is the SMS body for an escalated request.
func Message(req models.HelpRequest, requester models.Mother) string {
	msg := fmt.Sprintf("DANA urgente #%d: %s (%s) necesita %s. Motivo: %s",
		req.ID, requester.FullName, requester.Town, req.Specialty, req.Description)
	if requester.Phone != "" {
		msg += ". Tel: " + requester.Phone
	}
	return msg
}

// MockSender records messages instead of sending them.
type MockSender struct {
	Sent []SentSMS
	Fail map[string]error
}

// SentSMS is a message recorded by MockSender.
type SentSMS struct {
	To   string
	Body string
}

func NewMockSender() *MockSender {
	return &MockSender{Fail: map[string]error{}}
}

func (m *MockSender) SendSMS(ctx context.Context, to, body string) error {
	if err := m.Fail[to]; err != nil {
		return err
	}
	m.Sent = append(m.Sent, SentSMS{To: to, Body: body})
	return nil
}
