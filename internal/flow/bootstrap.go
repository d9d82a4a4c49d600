package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/prompts"
)

// StartSession composes the system prompt for a user, produces the opening
// assistant message, and registers the session. It returns the greeting text.
//
// First-time users get the static greeting with no generator call, so a brand
// new account always sees the same opener regardless of API health. Returning
// users get a generated opener that references their prior session summaries.
func (r *Responder) StartSession(ctx context.Context, sessionID string, profile models.UserProfile) (string, error) {
	if sessionID == "" {
		return "", models.ErrEmptySessionID
	}
	name := preferredName(profile)
	gender := profile.Preferences.Gender
	systemPrompt := prompts.NewBuilder(profile).Build(name)

	var greeting string
	if len(profile.HistorySummaries) == 0 {
		greeting = prompts.Greeting(name, gender)
	} else {
		opener, err := r.generator.Complete(ctx, systemPrompt+prompts.OpenerWithHistory(name), nil)
		if err != nil {
			return "", fmt.Errorf("opening message generation failed: %w", err)
		}
		greeting = opener
	}

	if err := r.sessions.Create(sessionID, systemPrompt, gender, greeting); err != nil {
		return "", err
	}
	slog.Info("Responder.StartSession: session started",
		"sessionID", sessionID, "userID", profile.UserID, "returning", len(profile.HistorySummaries) > 0)
	return greeting, nil
}

// preferredName picks the name the agent addresses the user by, falling back
// through the profile's name fields.
func preferredName(profile models.UserProfile) string {
	if n := strings.TrimSpace(profile.PreferredName); n != "" {
		return n
	}
	if n := strings.TrimSpace(profile.FullName); n != "" {
		return n
	}
	return "there"
}
