package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/prompts"
	"github.com/talk2me-ai/talk2me/internal/session"
)

func TestPersistSessionSavesRecordAndSummary(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"  The user discussed work anxiety and agreed to try breathing exercises.  "}}
	r, sessions, st := newTestResponder(t, gen)
	if err := st.SaveUser(models.UserProfile{UserID: "u1", PreferredName: "Ada"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	seedSession(t, sessions, "s1", "I'm anxious about work.", "Tell me more.", "Deadlines mostly.")

	summary, err := r.PersistSession(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("PersistSession: %v", err)
	}
	want := "The user discussed work anxiety and agreed to try breathing exercises."
	if summary != want {
		t.Errorf("summary = %q, want %q", summary, want)
	}
	if gen.calls[0].system != prompts.Summarize() {
		t.Error("summarization should use the summarize instruction")
	}
	if len(gen.calls[0].msgs) != 4 {
		t.Errorf("summarization should see the full history, got %d messages", len(gen.calls[0].msgs))
	}

	recs := st.SessionRecords("u1")
	if len(recs) != 1 {
		t.Fatalf("expected 1 session record, got %d", len(recs))
	}
	if recs[0].Summary != want || len(recs[0].Conversation) != 4 {
		t.Errorf("unexpected record %+v", recs[0])
	}

	u, err := st.GetUser("u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(u.HistorySummaries) != 1 || u.HistorySummaries[0] != want {
		t.Errorf("summary not appended to profile: %+v", u.HistorySummaries)
	}

	if _, err := sessions.Snapshot("s1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("live state should be dropped after a successful save")
	}
}

// A failed summarization leaves the live session intact so the save can be
// retried.
func TestPersistSessionSummarizeFailureKeepsState(t *testing.T) {
	gen := &scriptGenerator{err: errors.New("api down")}
	r, sessions, st := newTestResponder(t, gen)
	if err := st.SaveUser(models.UserProfile{UserID: "u1"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	seedSession(t, sessions, "s1", "hello")

	if _, err := r.PersistSession(context.Background(), "s1", "u1"); err == nil {
		t.Fatal("expected error when summarization fails")
	}
	if _, err := sessions.Snapshot("s1"); err != nil {
		t.Errorf("session should survive a failed save: %v", err)
	}
	if recs := st.SessionRecords("u1"); len(recs) != 0 {
		t.Errorf("no record should be written on failure, got %d", len(recs))
	}
}

func TestPersistSessionStoreFailureKeepsState(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"summary"}}
	r, sessions, _ := newTestResponder(t, gen)
	// User never saved: AppendHistorySummary / SaveSessionRecord will fail.
	seedSession(t, sessions, "s1", "hello")

	if _, err := r.PersistSession(context.Background(), "s1", "ghost"); err == nil {
		t.Fatal("expected error when the store rejects the save")
	}
	if _, err := sessions.Snapshot("s1"); err != nil {
		t.Errorf("session should survive a failed save: %v", err)
	}
}

func TestPersistSessionValidation(t *testing.T) {
	r, _, _ := newTestResponder(t, &scriptGenerator{})
	if _, err := r.PersistSession(context.Background(), "s1", ""); !errors.Is(err, models.ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	if _, err := r.PersistSession(context.Background(), "ghost", "u1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	gen := &scriptGenerator{outputs: []string{"I went to the store today. It was raining.\n"}}
	r, _, _ := newTestResponder(t, gen)

	out, err := r.NormalizeText(context.Background(), "i went to the store today it was raining")
	if err != nil {
		t.Fatalf("NormalizeText: %v", err)
	}
	if out != "I went to the store today. It was raining." {
		t.Errorf("unexpected output %q", out)
	}
	if gen.calls[0].system != prompts.Punctuate() {
		t.Error("normalization should use the punctuation instruction")
	}
	if len(gen.calls[0].msgs) != 1 || gen.calls[0].msgs[0].Role != models.RoleUser {
		t.Errorf("normalization should send a single user message, got %+v", gen.calls[0].msgs)
	}
}

func TestNormalizeTextRejectsEmpty(t *testing.T) {
	r, _, _ := newTestResponder(t, &scriptGenerator{})
	if _, err := r.NormalizeText(context.Background(), "   "); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}
