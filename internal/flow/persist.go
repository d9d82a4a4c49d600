package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/prompts"
)

// PersistSession summarizes the session's full history, writes the session
// record and appends the summary to the user's profile, then drops the live
// state. On any failure the live state is left untouched so the save can be
// retried.
func (r *Responder) PersistSession(ctx context.Context, sessionID, userID string) (string, error) {
	if userID == "" {
		return "", models.ErrEmptyUserID
	}
	state, err := r.sessions.Snapshot(sessionID)
	if err != nil {
		return "", err
	}

	summary, err := r.generator.Complete(ctx, prompts.Summarize(), state.History)
	if err != nil {
		return "", fmt.Errorf("session summarization failed: %w", err)
	}
	summary = strings.TrimSpace(summary)

	if err := r.st.SaveSessionRecord(models.SessionRecord{
		UserID:       userID,
		Conversation: state.History,
		Summary:      summary,
	}); err != nil {
		return "", fmt.Errorf("saving session record: %w", err)
	}
	if err := r.st.AppendHistorySummary(userID, summary); err != nil {
		return "", fmt.Errorf("appending history summary: %w", err)
	}

	r.sessions.Delete(sessionID)
	slog.Info("Responder.PersistSession: session persisted",
		"sessionID", sessionID, "userID", userID, "messages", len(state.History))
	return summary, nil
}

// NormalizeText cleans raw speech-to-text output: the generator restores
// punctuation and capitalization without changing the words.
func (r *Responder) NormalizeText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", models.ErrEmptyMessage
	}
	out, err := r.generator.Complete(ctx, prompts.Punctuate(), []models.Message{{Role: models.RoleUser, Content: text}})
	if err != nil {
		return "", fmt.Errorf("punctuation restoration failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}
