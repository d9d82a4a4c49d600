package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/prompts"
	"github.com/talk2me-ai/talk2me/internal/session"
	"github.com/talk2me-ai/talk2me/internal/store"
)

// scriptedCall records one generator invocation.
type scriptedCall struct {
	system string
	msgs   []models.Message
}

// scriptGenerator returns canned outputs in order and records every call.
type scriptGenerator struct {
	outputs []string
	err     error // returned once outputs are exhausted
	calls   []scriptedCall
}

func (g *scriptGenerator) Complete(_ context.Context, systemPrompt string, msgs []models.Message) (string, error) {
	g.calls = append(g.calls, scriptedCall{system: systemPrompt, msgs: msgs})
	if len(g.calls) > len(g.outputs) {
		if g.err != nil {
			return "", g.err
		}
		return "", fmt.Errorf("unexpected generator call %d (system %q)", len(g.calls), systemPrompt)
	}
	return g.outputs[len(g.calls)-1], nil
}

func newTestResponder(t *testing.T, gen Generator) (*Responder, *session.Store, *store.InMemoryStore) {
	t.Helper()
	sessions := session.NewStore()
	st := store.NewInMemoryStore()
	return NewResponder(gen, sessions, st, DefaultConfig()), sessions, st
}

func seedSession(t *testing.T, sessions *session.Store, sessionID string, turns ...string) {
	t.Helper()
	if err := sessions.Create(sessionID, "base system prompt", "female", "Hi! What would you like to talk about?"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i, content := range turns {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if err := sessions.Append(sessionID, models.Message{Role: role, Content: content}); err != nil {
			t.Fatalf("append turn %d: %v", i, err)
		}
	}
}

func TestGenerateResponseOrdinaryTurn(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"1", "That sounds hard. What do you think triggered it?"}}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1", "I've been anxious about work lately.")

	reply, err := r.GenerateResponse(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if reply.EndConversation {
		t.Error("ordinary turn should not end the conversation")
	}
	if reply.Text != "That sounds hard. What do you think triggered it?" {
		t.Errorf("unexpected reply text %q", reply.Text)
	}
	if len(gen.calls) != 2 {
		t.Fatalf("expected 2 generator calls, got %d", len(gen.calls))
	}
	if gen.calls[0].system != prompts.ClassifyIntent() {
		t.Error("first call should be the intent classifier")
	}
	if gen.calls[1].system != "base system prompt" {
		t.Errorf("reply call should use the session system prompt, got %q", gen.calls[1].system)
	}
}

// The first crisis turn must return the static safety message without any
// generative call, even when the completion API is failing.
func TestGenerateResponseFirstCrisisIsStatic(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"2"}, err: errors.New("api down")}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1", "I don't see the point in going on.")

	reply, err := r.GenerateResponse(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if reply.Text != prompts.CrisisMessage {
		t.Errorf("expected static crisis message, got %q", reply.Text)
	}
	if reply.EndConversation {
		t.Error("crisis reply must not end the conversation")
	}
	if len(gen.calls) != 1 {
		t.Errorf("expected only the classification call, got %d calls", len(gen.calls))
	}

	state, err := sessions.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !state.CrisisAcknowledged {
		t.Error("crisis flag should be set after the static message")
	}
}

func TestGenerateResponseRepeatCrisisGeneratesFollowUp(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"2", "I hear how much pain you're in. Please reach out to the resources I mentioned."}}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1", "I still feel like ending it.")
	if _, err := sessions.MarkCrisisAcknowledged("s1"); err != nil {
		t.Fatalf("mark crisis: %v", err)
	}

	reply, err := r.GenerateResponse(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if reply.Text == prompts.CrisisMessage {
		t.Error("repeat crisis should not resend the static message")
	}
	if len(gen.calls) != 2 {
		t.Fatalf("expected 2 generator calls, got %d", len(gen.calls))
	}
	if gen.calls[1].system != prompts.CrisisFollowUp() {
		t.Error("second call should use the crisis follow-up instruction")
	}
}

func TestGenerateResponseOffTopicRedirect(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"3", "I think we're getting off track. How have you been feeling?"}}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1", "Can you solve this calculus problem?")

	reply, err := r.GenerateResponse(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if reply.EndConversation {
		t.Error("redirect should not end the conversation")
	}
	if len(gen.calls) != 2 {
		t.Fatalf("expected 2 generator calls, got %d", len(gen.calls))
	}
	sys := gen.calls[1].system
	if !strings.HasPrefix(sys, prompts.PersonaMini("female")) || !strings.HasSuffix(sys, prompts.RobustRedirect()) {
		t.Error("redirect instruction should be the mini persona followed by the redirect text")
	}
	if len(gen.calls[1].msgs) != DefaultShortContext {
		t.Errorf("redirect should see the short window, got %d messages", len(gen.calls[1].msgs))
	}
}

func TestGenerateResponseRedirectUsesMalePersona(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"3", "Let's get back on track."}}
	r, sessions, _ := newTestResponder(t, gen)
	if err := sessions.Create("s1", "base", "male", "Hi!"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := sessions.Append("s1", models.Message{Role: models.RoleUser, Content: "What do you think about Elon Musk?"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := r.GenerateResponse(context.Background(), "s1", ""); err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if !strings.Contains(gen.calls[1].system, "James") {
		t.Error("male persona should redirect as James")
	}
}

// The end-of-conversation check is gated on conversation length: short
// conversations never issue it.
func TestGenerateResponseEndCheckGatedOnLength(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"1", "Tell me more about that."}}
	r, sessions, _ := newTestResponder(t, gen)
	// 1 greeting + 7 turns = 8 messages, below the threshold of 10.
	seedSession(t, sessions, "s1",
		"u1", "a1", "u2", "a2", "u3", "a3", "Thanks, I feel better now.")

	if _, err := r.GenerateResponse(context.Background(), "s1", ""); err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if len(gen.calls) != 2 {
		t.Fatalf("expected classify + reply only, got %d calls", len(gen.calls))
	}
	for _, c := range gen.calls {
		if c.system == prompts.IdentifyEnd() {
			t.Error("end check must not run below the length threshold")
		}
	}
}

func TestGenerateResponseEndDetectedClosesConversation(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"1", "1", "We've covered a lot today. Let's check in again in a week."}}
	r, sessions, _ := newTestResponder(t, gen)
	// 1 greeting + 9 turns = 10 messages, at the threshold.
	seedSession(t, sessions, "s1",
		"u1", "a1", "u2", "a2", "u3", "a3", "u4", "a4", "Thanks, that really helps. I'll think about it.")

	reply, err := r.GenerateResponse(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if !reply.EndConversation {
		t.Error("reply should signal end of conversation")
	}
	if len(gen.calls) != 3 {
		t.Fatalf("expected classify + end-check + closing, got %d calls", len(gen.calls))
	}
	if gen.calls[1].system != prompts.IdentifyEnd() {
		t.Error("second call should be the end check")
	}
	if gen.calls[2].system != prompts.CloseConversation() {
		t.Error("third call should be the closing instruction")
	}
	if len(gen.calls[2].msgs) == DefaultShortContext {
		t.Error("closing message should see the long window, not the short one")
	}
}

func TestGenerateResponseLongEndCheckNegative(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"1", "0", "What do you think is behind that feeling?"}}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1",
		"u1", "a1", "u2", "a2", "u3", "a3", "u4", "a4", "I just wish it were easier.")

	reply, err := r.GenerateResponse(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if reply.EndConversation {
		t.Error("negative end check should not end the conversation")
	}
	if len(gen.calls) != 3 {
		t.Fatalf("expected classify + end-check + reply, got %d calls", len(gen.calls))
	}
	if gen.calls[2].system != "base system prompt" {
		t.Error("after a negative end check the ordinary reply should run")
	}
}

// An ambiguous classifier output falls back to the ordinary branch instead of
// failing the turn.
func TestGenerateResponseAmbiguousIntentFallsBack(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"I'm not sure how to categorize that.", "Tell me more."}}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1", "hmm")

	reply, err := r.GenerateResponse(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if reply.Text != "Tell me more." {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestGenerateResponseShortWindowForClassification(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"1", "reply"}}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1",
		"u1", "a1", "u2", "a2", "u3", "a3", "u4")

	if _, err := r.GenerateResponse(context.Background(), "s1", ""); err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if got := len(gen.calls[0].msgs); got != DefaultShortContext {
		t.Errorf("classifier window = %d, want %d", got, DefaultShortContext)
	}
	// 8 messages total, below the long window cap, so the reply sees all of them.
	if got := len(gen.calls[1].msgs); got != 8 {
		t.Errorf("reply window = %d, want 8", got)
	}
}

func TestGenerateResponseRequiresTrailingUserMessage(t *testing.T) {
	gen := &scriptGenerator{}
	r, sessions, _ := newTestResponder(t, gen)
	// Fresh session: only the assistant greeting.
	if err := sessions.Create("s1", "base", "female", "Hi!"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.GenerateResponse(context.Background(), "s1", ""); !errors.Is(err, ErrNoUserTurn) {
		t.Errorf("expected ErrNoUserTurn, got %v", err)
	}
	if len(gen.calls) != 0 {
		t.Error("no generator calls expected for an invalid turn")
	}
}

func TestGenerateResponseUnknownSession(t *testing.T) {
	r, _, _ := newTestResponder(t, &scriptGenerator{})
	if _, err := r.GenerateResponse(context.Background(), "ghost", ""); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGenerateResponseClassifierFailure(t *testing.T) {
	gen := &scriptGenerator{err: errors.New("api down")}
	r, sessions, _ := newTestResponder(t, gen)
	seedSession(t, sessions, "s1", "hello")

	if _, err := r.GenerateResponse(context.Background(), "s1", ""); err == nil {
		t.Fatal("expected error when classification fails")
	}
}

func TestNewResponderDefaultsZeroConfig(t *testing.T) {
	r := NewResponder(&scriptGenerator{}, session.NewStore(), store.NewInMemoryStore(), Config{})
	if r.cfg.ShortContext != DefaultShortContext ||
		r.cfg.LongContext != DefaultLongContext ||
		r.cfg.MinConversationLen != DefaultMinConversationLen {
		t.Errorf("zero config should take defaults, got %+v", r.cfg)
	}
}
