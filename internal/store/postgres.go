// Package store provides storage backends for Talk2Me.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists users, session records, and appointments in
// PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied")

	return &PostgresStore{db: db}, nil
}

// SaveUser inserts a new user profile.
func (s *PostgresStore) SaveUser(u models.UserProfile) error {
	if err := u.Validate(); err != nil {
		return err
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, email, full_name, preferred_name, history_summary, custom_background, custom_behavior, custom_gender, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.UserID, nilIfEmpty(u.Email), nilIfEmpty(u.FullName), nilIfEmpty(u.PreferredName),
		mustMarshalSummaries(u.HistorySummaries),
		nilIfEmpty(u.Preferences.Background), nilIfEmpty(u.Preferences.Behavior), nilIfEmpty(u.Preferences.Gender),
		createdAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveUser failed", "error", err, "userID", u.UserID)
		return fmt.Errorf("failed to insert user %s: %w", u.UserID, err)
	}
	return nil
}

// GetUser retrieves a user profile by id.
func (s *PostgresStore) GetUser(userID string) (*models.UserProfile, error) {
	row := s.db.QueryRow(
		`SELECT user_id, email, full_name, preferred_name, history_summary, custom_background, custom_behavior, custom_gender, created_at
		 FROM users WHERE user_id = $1`, userID)
	u, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.GetUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}
	return u, nil
}

// UpdateUserPreferences overwrites the user's agent preferences.
func (s *PostgresStore) UpdateUserPreferences(userID string, p models.Preferences) error {
	res, err := s.db.Exec(
		`UPDATE users SET custom_background = $1, custom_behavior = $2, custom_gender = $3 WHERE user_id = $4`,
		nilIfEmpty(p.Background), nilIfEmpty(p.Behavior), nilIfEmpty(p.Gender), userID)
	if err != nil {
		slog.Error("PostgresStore.UpdateUserPreferences failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update preferences for %s: %w", userID, err)
	}
	return requireRowAffected(res, userID)
}

// AppendHistorySummary appends one session summary to the user's history.
func (s *PostgresStore) AppendHistorySummary(userID string, summary string) error {
	u, err := s.GetUser(userID)
	if err != nil {
		return err
	}
	summaries := append(u.HistorySummaries, summary)
	res, err := s.db.Exec(`UPDATE users SET history_summary = $1 WHERE user_id = $2`,
		mustMarshalSummaries(summaries), userID)
	if err != nil {
		slog.Error("PostgresStore.AppendHistorySummary failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to append history summary for %s: %w", userID, err)
	}
	return requireRowAffected(res, userID)
}

// SaveSessionRecord stores a finished session.
func (s *PostgresStore) SaveSessionRecord(rec models.SessionRecord) error {
	if rec.UserID == "" {
		return models.ErrEmptyUserID
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	conversation, err := json.Marshal(rec.Conversation)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, user_id, full_conversation, summary, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserID, string(conversation), nilIfEmpty(rec.Summary), createdAt)
	if err != nil {
		slog.Error("PostgresStore.SaveSessionRecord failed", "error", err, "userID", rec.UserID)
		return fmt.Errorf("failed to insert session record for %s: %w", rec.UserID, err)
	}
	return nil
}

// SaveAppointment stores an appointment.
func (s *PostgresStore) SaveAppointment(a models.Appointment) error {
	if a.UserID == "" {
		return models.ErrEmptyUserID
	}
	if a.Time.IsZero() {
		return models.ErrEmptyAppointmentAt
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO appointments (id, user_id, appointment_time, created_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.UserID, a.Time.UTC(), createdAt)
	if err != nil {
		slog.Error("PostgresStore.SaveAppointment failed", "error", err, "userID", a.UserID)
		return fmt.Errorf("failed to insert appointment for %s: %w", a.UserID, err)
	}
	return nil
}

// FindFutureAppointment returns the user's earliest appointment after the
// given time, or nil when none exists.
func (s *PostgresStore) FindFutureAppointment(userID string, after time.Time) (*models.Appointment, error) {
	appts, err := s.listFutureAppointments(userID, after, 1)
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
func (s *PostgresStore) ListFutureAppointments(userID string, after time.Time) ([]models.Appointment, error) {
	return s.listFutureAppointments(userID, after, 0)
}

func (s *PostgresStore) listFutureAppointments(userID string, after time.Time, limit int) ([]models.Appointment, error) {
	query := `SELECT id, user_id, appointment_time, created_at FROM appointments
		 WHERE user_id = $1 AND appointment_time > $2 ORDER BY appointment_time ASC`
	args := []interface{}{userID, after.UTC()}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore.ListFutureAppointments query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query appointments for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
