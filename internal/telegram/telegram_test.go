package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/redmadres/danabot/internal/models"
)

func TestParseUpdateCommand(t *testing.T) {
	body := `{"update_id":10,"message":{"message_id":1,"from":{"id":55,"first_name":"Ana","username":"ana"},"chat":{"id":55,"type":"private"},"text":"/start@danabot_bot hola"}}`
	ev, err := ParseUpdate([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmd, ok := ev.(models.Command)
	if !ok {
		t.Fatalf("expected Command, got %T", ev)
	}
	if cmd.Name != "start" || cmd.Args != "hola" {
		t.Errorf("unexpected command: %+v", cmd)
	}
	if cmd.UpdateID != 10 || cmd.ConversationID != 55 || !cmd.Private() || cmd.Sender.Username != "ana" {
		t.Errorf("unexpected envelope: %+v", cmd.Envelope)
	}
}

func TestParseUpdateText(t *testing.T) {
	body := `{"update_id":11,"message":{"message_id":2,"from":{"id":55,"first_name":"Ana"},"chat":{"id":55,"type":"private"},"text":"Lucía Pérez"}}`
	ev, err := ParseUpdate([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, ok := ev.(models.TextMessage)
	if !ok || msg.Text != "Lucía Pérez" {
		t.Fatalf("expected TextMessage, got %#v", ev)
	}
}

func TestParseUpdateCallbackFromGroup(t *testing.T) {
	body := `{"update_id":12,"callback_query":{"id":"cb1","from":{"id":77,"first_name":"Pro","username":"pro"},"message":{"message_id":900,"chat":{"id":-1001,"type":"supergroup"}},"data":"claim_5"}}`
	ev, err := ParseUpdate([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	press, ok := ev.(models.ButtonPress)
	if !ok {
		t.Fatalf("expected ButtonPress, got %T", ev)
	}
	if press.Data != "claim_5" || press.CallbackID != "cb1" || press.MessageID != 900 {
		t.Errorf("unexpected press: %+v", press)
	}
	if press.ConversationID != -1001 || press.Private() || press.Sender.ID != 77 {
		t.Errorf("unexpected envelope: %+v", press.Envelope)
	}
}

func TestParseUpdateIgnoresUnsupported(t *testing.T) {
	body := `{"update_id":13,"edited_message":{"message_id":3,"chat":{"id":1,"type":"private"},"text":"x"}}`
	ev, err := ParseUpdate([]byte(body))
	if err != nil || ev != nil {
		t.Errorf("expected (nil, nil), got %v, %v", ev, err)
	}
}

func TestParseUpdateInvalidJSON(t *testing.T) {
	if _, err := ParseUpdate([]byte(`{not json`)); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		name string
		ok   bool
	}{
		{"/ayuda", "ayuda", true},
		{"/CANCELAR", "cancelar", true},
		{"/", "", false},
		{"hola /start", "", false},
	}
	for _, c := range cases {
		name, _, ok := parseCommand(c.in)
		if ok != c.ok || name != c.name {
			t.Errorf("parseCommand(%q) = %q, %v; want %q, %v", c.in, name, ok, c.name, c.ok)
		}
	}
}

func TestMockClientRecordsAndFails(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	id, err := mock.SendMessage(ctx, models.Destination{ChatID: 1}, "hola", nil)
	if err != nil || id == 0 {
		t.Fatalf("unexpected send result: %d, %v", id, err)
	}
	if last, ok := mock.LastMessageTo(1); !ok || last.Text != "hola" || last.MessageID != id {
		t.Errorf("unexpected last message: %+v", last)
	}

	mock.FailSendTo[2] = errors.New("chat not found")
	if _, err := mock.SendMessage(ctx, models.Destination{ChatID: 2}, "x", nil); !errors.Is(err, models.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}
