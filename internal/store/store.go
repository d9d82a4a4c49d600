// Package store provides storage backends for Talk2Me user profiles, saved
// session records, and appointments.
//
// Backends: in-memory (tests and development), SQLite, and PostgreSQL.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// Sentinel errors shared by all backends.
var (
	// ErrUserNotFound is returned when a user id has no stored profile.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when inserting a duplicate user id.
	ErrUserExists = errors.New("user already exists")
)

// Store is the persistence contract the rest of the service depends on.
// Failures never mutate in-memory conversation state; callers report them and
// may retry the operation explicitly.
type Store interface {
	SaveUser(u models.UserProfile) error
	GetUser(userID string) (*models.UserProfile, error)
	UpdateUserPreferences(userID string, p models.Preferences) error
	AppendHistorySummary(userID string, summary string) error
	SaveSessionRecord(rec models.SessionRecord) error
	SaveAppointment(a models.Appointment) error
	FindFutureAppointment(userID string, after time.Time) (*models.Appointment, error)
	ListFutureAppointments(userID string, after time.Time) ([]models.Appointment, error)
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a functional option for store configuration.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps everything in process memory. Used by tests and as the
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu           sync.RWMutex
	users        map[string]models.UserProfile
	sessions     []models.SessionRecord
	appointments []models.Appointment
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]models.UserProfile)}
}

// SaveUser inserts a new user profile.
func (s *InMemoryStore) SaveUser(u models.UserProfile) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.UserID]; ok {
		return ErrUserExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.UserID] = u
	return nil
}

// GetUser retrieves a user profile by id.
func (s *InMemoryStore) GetUser(userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	summaries := make([]string, len(u.HistorySummaries))
	copy(summaries, u.HistorySummaries)
	u.HistorySummaries = summaries
	return &u, nil
}

// UpdateUserPreferences overwrites the user's agent preferences.
func (s *InMemoryStore) UpdateUserPreferences(userID string, p models.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Preferences = p
	s.users[userID] = u
	return nil
}

// AppendHistorySummary appends one session summary to the user's history.
func (s *InMemoryStore) AppendHistorySummary(userID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.HistorySummaries = append(u.HistorySummaries, summary)
	s.users[userID] = u
	return nil
}

// SaveSessionRecord stores a finished session.
func (s *InMemoryStore) SaveSessionRecord(rec models.SessionRecord) error {
	if rec.UserID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.sessions = append(s.sessions, rec)
	return nil
}

// SessionRecords returns all stored session records for a user, oldest first.
// Test helper; the service itself only writes records.
func (s *InMemoryStore) SessionRecords(userID string) []models.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SessionRecord
	for _, rec := range s.sessions {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// SaveAppointment stores an appointment.
func (s *InMemoryStore) SaveAppointment(a models.Appointment) error {
	if a.UserID == "" {
		return models.ErrEmptyUserID
	}
	if a.Time.IsZero() {
		return models.ErrEmptyAppointmentAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.appointments = append(s.appointments, a)
	return nil
}

// FindFutureAppointment returns the user's earliest appointment after the
// given time, or nil when none exists.
func (s *InMemoryStore) FindFutureAppointment(userID string, after time.Time) (*models.Appointment, error) {
	appts, err := s.ListFutureAppointments(userID, after)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, nil
	}
	return &appts[0], nil
}

// ListFutureAppointments returns the user's appointments after the given time,
// soonest first.
func (s *InMemoryStore) ListFutureAppointments(userID string, after time.Time) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		if a.UserID == userID && a.Time.After(after) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
