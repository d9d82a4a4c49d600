// Package flow implements the response orchestrator: the decision engine that
// classifies each user turn and selects which instruction to send to the text
// generator.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/prompts"
	"github.com/talk2me-ai/talk2me/internal/session"
	"github.com/talk2me-ai/talk2me/internal/store"
)

// Default tuning constants. The exact window lengths varied across early
// revisions of the product, so they are configuration, not hard-coded.
const (
	// DefaultShortContext is the number of trailing messages sent with cheap
	// decision calls (classification, end detection).
	DefaultShortContext = 3
	// DefaultLongContext is the number of trailing messages sent with
	// generative replies.
	DefaultLongContext = 20
	// DefaultMinConversationLen is the history length below which the
	// end-of-conversation check is never issued.
	DefaultMinConversationLen = 10
)

// ErrNoUserTurn is returned when GenerateResponse is called on a history whose
// most recent message is not a user message.
var ErrNoUserTurn = errors.New("last message in history is not a user message")

// Generator produces text from a system instruction and an ordered message
// list. Implemented by genai.Client; mocked in tests.
type Generator interface {
	Complete(ctx context.Context, systemPrompt string, msgs []models.Message) (string, error)
}

// Config tunes the orchestrator's context windows and thresholds.
type Config struct {
	ShortContext       int
	LongContext        int
	MinConversationLen int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		ShortContext:       DefaultShortContext,
		LongContext:        DefaultLongContext,
		MinConversationLen: DefaultMinConversationLen,
	}
}

// Reply is the outcome of one orchestrated turn. EndConversation signals the
// caller to trigger the appointment-suggestion side effect.
type Reply struct {
	Text            string
	EndConversation bool
}

// Responder runs the classify-branch-respond policy over live session state.
type Responder struct {
	generator Generator
	sessions  *session.Store
	st        store.Store
	cfg       Config
}

// NewResponder creates a responder with the given collaborators.
func NewResponder(generator Generator, sessions *session.Store, st store.Store, cfg Config) *Responder {
	if cfg.ShortContext <= 0 {
		cfg.ShortContext = DefaultShortContext
	}
	if cfg.LongContext <= 0 {
		cfg.LongContext = DefaultLongContext
	}
	if cfg.MinConversationLen <= 0 {
		cfg.MinConversationLen = DefaultMinConversationLen
	}
	return &Responder{generator: generator, sessions: sessions, st: st, cfg: cfg}
}

// GenerateResponse produces the assistant reply for the session's most recent
// user message. The reply is not appended to history here; that is the
// caller's responsibility.
//
// The decision sequence is evaluated in strict order, short-circuiting on the
// first match: intent classification, crisis branch, off-topic branch,
// end-of-conversation check, default reply. Classification is re-run every
// turn because user intent can shift turn to turn.
func (r *Responder) GenerateResponse(ctx context.Context, sessionID, systemPrompt string) (Reply, error) {
	state, err := r.sessions.Snapshot(sessionID)
	if err != nil {
		return Reply{}, err
	}
	if len(state.History) == 0 || state.History[len(state.History)-1].Role != models.RoleUser {
		return Reply{}, ErrNoUserTurn
	}
	if systemPrompt == "" {
		systemPrompt = state.SystemPrompt
	}

	shortWindow := tail(state.History, r.cfg.ShortContext)
	longWindow := tail(state.History, r.cfg.LongContext)

	rawIntent, err := r.generator.Complete(ctx, prompts.ClassifyIntent(), shortWindow)
	if err != nil {
		return Reply{}, fmt.Errorf("intent classification failed: %w", err)
	}
	intent, err := ParseIntent(rawIntent)
	if err != nil {
		// Falling back to the ordinary branch beats failing the turn over a
		// rambling classifier; the raw output is logged for diagnosis.
		slog.Warn("Responder.GenerateResponse: ambiguous classifier output, using ordinary branch",
			"sessionID", sessionID, "raw", rawIntent)
	}
	slog.Debug("Responder.GenerateResponse: intent classified", "sessionID", sessionID, "intent", intent.String())

	switch intent {
	case IntentCrisis:
		return r.respondCrisis(ctx, sessionID, longWindow)
	case IntentOffTopic:
		return r.respondOffTopic(ctx, state.Gender, shortWindow)
	}

	if len(state.History) >= r.cfg.MinConversationLen {
		rawEnd, err := r.generator.Complete(ctx, prompts.IdentifyEnd(), shortWindow)
		if err != nil {
			return Reply{}, fmt.Errorf("end-of-conversation check failed: %w", err)
		}
		if shouldEnd(rawEnd) {
			slog.Info("Responder.GenerateResponse: conversation end detected", "sessionID", sessionID)
			closing, err := r.generator.Complete(ctx, prompts.CloseConversation(), longWindow)
			if err != nil {
				return Reply{}, fmt.Errorf("closing message generation failed: %w", err)
			}
			return Reply{Text: closing, EndConversation: true}, nil
		}
	}

	text, err := r.generator.Complete(ctx, systemPrompt, longWindow)
	if err != nil {
		return Reply{}, fmt.Errorf("reply generation failed: %w", err)
	}
	return Reply{Text: text}, nil
}

// respondCrisis handles a crisis-classified turn. The first detection in a
// session returns the static hotline message with no generator call, so this
// path cannot fail from a generator outage. Later detections get a generated,
// context-aware follow-up instead of the same canned text twice.
func (r *Responder) respondCrisis(ctx context.Context, sessionID string, longWindow []models.Message) (Reply, error) {
	first, err := r.sessions.MarkCrisisAcknowledged(sessionID)
	if err != nil {
		return Reply{}, err
	}
	if first {
		slog.Info("Responder.respondCrisis: first crisis detection, sending static safety message", "sessionID", sessionID)
		return Reply{Text: prompts.CrisisMessage}, nil
	}
	text, err := r.generator.Complete(ctx, prompts.CrisisFollowUp(), longWindow)
	if err != nil {
		return Reply{}, fmt.Errorf("crisis follow-up generation failed: %w", err)
	}
	return Reply{Text: text}, nil
}

// respondOffTopic redirects an off-topic or role-break attempt. Only the
// short window is sent, limiting how much history a role-break attempt sees.
func (r *Responder) respondOffTopic(ctx context.Context, gender string, shortWindow []models.Message) (Reply, error) {
	text, err := r.generator.Complete(ctx, prompts.PersonaMini(gender)+prompts.RobustRedirect(), shortWindow)
	if err != nil {
		return Reply{}, fmt.Errorf("redirect generation failed: %w", err)
	}
	return Reply{Text: text}, nil
}

// tail returns the last n messages of history.
func tail(history []models.Message, n int) []models.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
