// Package session holds live conversation state for active sessions.
//
// State lives in process memory for the lifetime of the session: it is created
// at bootstrap, mutated once per turn, and dropped after an explicit save or
// process teardown. There is no expiry.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// ErrSessionNotFound is returned when a session identifier has no live state.
// Chat turns must never auto-create a session: a session without its bootstrap
// greeting would produce an incoherent conversation.
var ErrSessionNotFound = errors.New("session not found")

// entry wraps one session's state. turnMu serializes whole turns for the
// session so concurrent requests cannot interleave, while stateMu guards the
// individual field accesses.
type entry struct {
	turnMu  sync.Mutex
	stateMu sync.Mutex
	state   models.ConversationState
}

// Store is an in-memory map from session identifier to conversation state.
// Session identifiers are caller-supplied opaque strings.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// Create initializes state for a session with the composed system prompt, the
// persona gender, and the bootstrap greeting as the first assistant message.
// An existing session with the same identifier is replaced.
func (s *Store) Create(sessionID, systemPrompt, gender, greeting string) error {
	if sessionID == "" {
		return models.ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &entry{state: models.ConversationState{
		History:      []models.Message{{Role: models.RoleAssistant, Content: greeting}},
		SystemPrompt: systemPrompt,
		Gender:       gender,
	}}
	slog.Debug("session.Store.Create: session initialized", "sessionID", sessionID)
	return nil
}

// Acquire locks the session for one turn and returns the unlock function.
// Turns within a session mutate shared history and must be processed strictly
// in arrival order.
func (s *Store) Acquire(sessionID string) (func(), error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.turnMu.Lock()
	return e.turnMu.Unlock, nil
}

// Snapshot returns a copy of the session state. The returned history slice is
// independent of the stored one.
func (s *Store) Snapshot(sessionID string) (models.ConversationState, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return models.ConversationState{}, err
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	history := make([]models.Message, len(e.state.History))
	copy(history, e.state.History)
	return models.ConversationState{
		History:            history,
		CrisisAcknowledged: e.state.CrisisAcknowledged,
		SystemPrompt:       e.state.SystemPrompt,
		Gender:             e.state.Gender,
	}, nil
}

// Append adds one message to the session history.
func (s *Store) Append(sessionID string, msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state.History = append(e.state.History, msg)
	return nil
}

// DropLast removes the most recent message from the session history. Used to
// roll back a user turn whose reply could not be generated, keeping the
// history in strict user/assistant alternation for the retry.
func (s *Store) DropLast(sessionID string) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if len(e.state.History) == 0 {
		return nil
	}
	e.state.History = e.state.History[:len(e.state.History)-1]
	return nil
}

// MarkCrisisAcknowledged records that the static crisis message has been sent.
// It reports whether this call performed the false->true transition; the flag
// never reverses within a session.
func (s *Store) MarkCrisisAcknowledged(sessionID string) (bool, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state.CrisisAcknowledged {
		return false, nil
	}
	e.state.CrisisAcknowledged = true
	slog.Info("session.Store.MarkCrisisAcknowledged: crisis flag set", "sessionID", sessionID)
	return true, nil
}

// Len returns the number of messages recorded for the session.
func (s *Store) Len(sessionID string) (int, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return 0, err
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return len(e.state.History), nil
}

// Delete removes the session. Deleting an unknown session is a no-op.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	slog.Debug("session.Store.Delete: session removed", "sessionID", sessionID)
}

func (s *Store) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}
