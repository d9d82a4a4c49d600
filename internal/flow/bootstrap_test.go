package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/prompts"
)

// A brand new user's first greeting is static: no generator involvement at all.
func TestStartSessionNewUserNoGeneratorCalls(t *testing.T) {
	gen := &scriptGenerator{err: errors.New("api down")}
	r, sessions, _ := newTestResponder(t, gen)

	greeting, err := r.StartSession(context.Background(), "s1", models.UserProfile{
		UserID:        "u1",
		PreferredName: "Ada",
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	want := "Hi Ada! I'm Jennifer, your AI therapist. What would you like to talk about?"
	if greeting != want {
		t.Errorf("greeting = %q, want %q", greeting, want)
	}
	if len(gen.calls) != 0 {
		t.Errorf("expected zero generator calls, got %d", len(gen.calls))
	}

	state, err := sessions.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(state.History) != 1 || state.History[0].Role != models.RoleAssistant || state.History[0].Content != want {
		t.Errorf("history should start with the greeting, got %+v", state.History)
	}
	if state.CrisisAcknowledged {
		t.Error("fresh session should not have the crisis flag set")
	}
}

func TestStartSessionMalePersonaGreeting(t *testing.T) {
	r, _, _ := newTestResponder(t, &scriptGenerator{})
	greeting, err := r.StartSession(context.Background(), "s1", models.UserProfile{
		UserID:        "u1",
		PreferredName: "Ben",
		Preferences:   models.Preferences{Gender: "male"},
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !strings.Contains(greeting, "James") {
		t.Errorf("male preference should greet as James, got %q", greeting)
	}
}

func TestStartSessionReturningUserGeneratesOpener(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"Welcome back, Ada. Last time we talked about work stress. How has your week been?"}}
	r, sessions, _ := newTestResponder(t, gen)

	greeting, err := r.StartSession(context.Background(), "s1", models.UserProfile{
		UserID:           "u1",
		PreferredName:    "Ada",
		HistorySummaries: []string{"Discussed stress from a product deadline."},
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if greeting != gen.outputs[0] {
		t.Errorf("greeting = %q", greeting)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("expected exactly one generator call, got %d", len(gen.calls))
	}
	if len(gen.calls[0].msgs) != 0 {
		t.Error("opener call should carry no conversation messages")
	}
	sys := gen.calls[0].system
	if !strings.Contains(sys, "Discussed stress from a product deadline.") {
		t.Error("opener instruction should include the prior summary")
	}
	if !strings.Contains(sys, prompts.OpenerWithHistory("Ada")) {
		t.Error("opener instruction should end with the returning-user opener")
	}

	state, err := sessions.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// The stored system prompt drives later turns and must not include the
	// one-off opener instruction.
	if strings.Contains(state.SystemPrompt, prompts.OpenerWithHistory("Ada")) {
		t.Error("session system prompt should not retain the opener instruction")
	}
}

func TestStartSessionOpenerFailureLeavesNoSession(t *testing.T) {
	gen := &scriptGenerator{err: errors.New("api down")}
	r, sessions, _ := newTestResponder(t, gen)

	_, err := r.StartSession(context.Background(), "s1", models.UserProfile{
		UserID:           "u1",
		PreferredName:    "Ada",
		HistorySummaries: []string{"prior session"},
	})
	if err == nil {
		t.Fatal("expected error when opener generation fails")
	}
	if _, err := sessions.Snapshot("s1"); err == nil {
		t.Error("failed bootstrap should not register a session")
	}
}

func TestStartSessionRequiresSessionID(t *testing.T) {
	r, _, _ := newTestResponder(t, &scriptGenerator{})
	if _, err := r.StartSession(context.Background(), "", models.UserProfile{UserID: "u1"}); !errors.Is(err, models.ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestPreferredNameFallbacks(t *testing.T) {
	cases := []struct {
		profile models.UserProfile
		want    string
	}{
		{models.UserProfile{PreferredName: "Ada", FullName: "Ada Lovelace"}, "Ada"},
		{models.UserProfile{FullName: "Ada Lovelace"}, "Ada Lovelace"},
		{models.UserProfile{PreferredName: "  "}, "there"},
		{models.UserProfile{}, "there"},
	}
	for _, c := range cases {
		if got := preferredName(c.profile); got != c.want {
			t.Errorf("preferredName(%+v) = %q, want %q", c.profile, got, c.want)
		}
	}
}
