package prompts

import (
	"strings"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// Builder assembles the per-session system prompt from ordered fragments:
// persona first, then history injection, then background and behavior
// injections. Fragment order is fixed because models are sensitive to
// instruction order.
type Builder struct {
	gender    string
	summaries []string
	profile   models.Preferences
}

// NewBuilder starts a builder for the given user profile.
func NewBuilder(profile models.UserProfile) *Builder {
	return &Builder{
		gender:    profile.Preferences.Gender,
		summaries: profile.HistorySummaries,
		profile:   profile.Preferences,
	}
}

// Build produces the composed system prompt for the session.
func (b *Builder) Build(preferredName string) string {
	var sb strings.Builder
	sb.WriteString(Persona(b.gender))
	if len(b.summaries) > 0 {
		sb.WriteString(InjectHistory(preferredName, b.summaries))
	}
	if b.profile.Background != "" {
		sb.WriteString(InjectBackground(b.profile.Background))
	}
	if b.profile.Behavior != "" {
		sb.WriteString(InjectBehavior(b.profile.Behavior))
	}
	return sb.String()
}
