package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseUrgency(t *testing.T) {
	cases := map[string]Urgency{
		"Alto":  UrgencyHigh,
		" alta": UrgencyHigh,
		"Medio": UrgencyMedium,
		"bajo":  UrgencyLow,
		"Low":   UrgencyLow,
	}
	for in, want := range cases {
		got, err := ParseUrgency(in)
		if err != nil {
			t.Fatalf("ParseUrgency(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseUrgency(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseUrgency("urgentísimo"); !errors.Is(err, ErrInvalidUrgency) {
		t.Errorf("expected ErrInvalidUrgency, got %v", err)
	}
}

func TestUrgencyMarkersAreDistinct(t *testing.T) {
	seen := map[string]Urgency{}
	for _, u := range []Urgency{UrgencyHigh, UrgencyMedium, UrgencyLow} {
		m := u.Marker()
		if prev, ok := seen[m]; ok {
			t.Errorf("urgency %s shares marker %q with %s", u, m, prev)
		}
		seen[m] = u
	}
}

func TestSessionClearForm(t *testing.T) {
	s := NewSession(42)
	s.ActiveForm = FormMother
	s.Phase = PhaseAsking
	s.SetQuestionIndex(2)
	s.CollectedAnswers = []string{"a", "b"}

	s.ClearForm()

	if s.FormActive() {
		t.Error("form should not be active after ClearForm")
	}
	if _, ok := s.QuestionIndex(); ok {
		t.Error("question index should be unset after ClearForm")
	}
	if len(s.CollectedAnswers) != 0 {
		t.Errorf("expected no answers, got %v", s.CollectedAnswers)
	}
}

func TestSessionNormalizeDecodedBlob(t *testing.T) {
	var s Session
	if err := json.Unmarshal([]byte(`{"conversation_id":7}`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	s.Normalize()
	if s.Role != RoleUnset || s.ActiveForm != FormNone || s.CollectedAnswers == nil {
		t.Errorf("normalize left zero values: %+v", s)
	}
}

func TestHelpRequestValidate(t *testing.T) {
	h := HelpRequest{RequesterID: 1, Urgency: UrgencyHigh, Specialty: "Pediatría", Description: "Fiebre alta"}
	if err := h.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.Description = "  "
	if err := h.Validate(); !errors.Is(err, ErrEmptyDescription) {
		t.Errorf("expected ErrEmptyDescription, got %v", err)
	}
	h.Description = "x"
	h.Urgency = "Critical"
	if err := h.Validate(); !errors.Is(err, ErrInvalidUrgency) {
		t.Errorf("expected ErrInvalidUrgency, got %v", err)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := Error("bad secret")
	if resp.Status != string(APIStatusError) || resp.Message != "bad secret" {
		t.Errorf("unexpected error response: %+v", resp)
	}
	ok := SuccessWithMessage("done", map[string]int{"n": 1})
	if ok.Status != string(APIStatusOK) || ok.Result == nil {
		t.Errorf("unexpected success response: %+v", ok)
	}
}
