// Package models defines the core data structures for Talk2Me.
//
// It includes chat messages, per-session conversation state, user profiles,
// and the JSON envelopes shared by the API handlers.
package models

import (
	"errors"
	"time"
)

// Role identifies who authored a chat message. Roles are always assigned by
// whoever appends the message, never inferred from content.
type Role string

const (
	// RoleSystem marks instruction messages sent to the generator.
	RoleSystem Role = "system"
	// RoleUser marks messages authored by the user.
	RoleUser Role = "user"
	// RoleAssistant marks messages authored by the agent.
	RoleAssistant Role = "assistant"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a single chat message
	MaxMessageLength = 8192
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user id cannot be empty")
	ErrEmptySessionID     = errors.New("session id cannot be empty")
	ErrEmptyMessage       = errors.New("message cannot be empty")
	ErrMessageTooLong     = errors.New("message exceeds maximum length")
	ErrInvalidRole        = errors.New("invalid message role")
	ErrEmptyAppointmentAt = errors.New("appointment time cannot be empty")
)

// Message is a single turn in a conversation. Ordering is chronological and
// semantically meaningful: the history slice is the context window sent to the
// generator.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Validate checks that the message is well formed before it enters a history.
func (m *Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return ErrInvalidRole
	}
	if m.Content == "" {
		return ErrEmptyMessage
	}
	if len(m.Content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ConversationState holds everything the orchestrator needs about one live
// session. History is append-only; CrisisAcknowledged transitions false->true
// at most once and never reverses; SystemPrompt is composed at bootstrap and
// immutable afterwards.
type ConversationState struct {
	History            []Message `json:"history"`
	CrisisAcknowledged bool      `json:"crisisAcknowledged"`
	SystemPrompt       string    `json:"-"`
	// Gender selects the agent persona for the session ("male" or anything
	// else for the default female persona). Fixed at bootstrap.
	Gender string `json:"-"`
}

// Preferences are the user-tunable agent settings captured on the
// preferences screen.
type Preferences struct {
	Background string `json:"backgroundInfo"`
	Behavior   string `json:"agentPreferences"`
	Gender     string `json:"gender"`
}

// UserProfile is the persistent record for a registered user. The orchestrator
// treats it as read-only input captured once at session bootstrap.
type UserProfile struct {
	UserID           string    `json:"userId"`
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	PreferredName    string    `json:"preferredName"`
	HistorySummaries []string  `json:"historySummaries"`
	Preferences      Preferences
	CreatedAt        time.Time `json:"createdAt"`
}

// Validate checks required profile fields before insertion.
func (u *UserProfile) Validate() error {
	if u.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// SessionRecord is the persisted form of a finished session: the raw turn
// history plus the generated summary.
type SessionRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Conversation []Message `json:"fullConversation"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Appointment is a scheduled follow-up session.
type Appointment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Time      time.Time `json:"appointmentTime"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIResponse is the uniform JSON envelope returned by every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response.
func Success(result interface{}) APIResponse {
	return APIResponse{Success: true, Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Success: true, Message: message, Result: result}
}

// Error creates an error API response.
func Error(message string) APIResponse {
	return APIResponse{Success: false, Error: message}
}
