// Package store provides storage backends for Talk2Me.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists users, session records, and appointments in a local
// SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: migrations applied")

	return &SQLiteStore{db: db}, nil
}

// SaveUser inserts a new user profile.
func (s *SQLiteStore) SaveUser(u models.UserProfile) error {
	if err := u.Validate(); err != nil {
		return err
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, email, full_name, preferred_name, history_summary, custom_background, custom_behavior, custom_gender, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UserID, nilIfEmpty(u.Email), nilIfEmpty(u.FullName), nilIfEmpty(u.PreferredName),
		mustMarshalSummaries(u.HistorySummaries),
		nilIfEmpty(u.Preferences.Background), nilIfEmpty(u.Preferences.Behavior), nilIfEmpty(u.Preferences.Gender),
		createdAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveUser failed", "error", err, "userID", u.UserID)
		return fmt.Errorf("failed to insert user %s: %w", u.UserID, err)
	}
	slog.Debug("SQLiteStore.SaveUser succeeded", "userID", u.UserID)
	return nil
}

// GetUser retrieves a user profile by id.
func (s *SQLiteStore) GetUser(userID string) (*models.UserProfile, error) {
	row := s.db.QueryRow(
		`SELECT user_id, email, full_name, preferred_name, history_summary, custom_background, custom_behavior, custom_gender, created_at
		 FROM users WHERE user_id = ?`, userID)
	u, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.GetUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}
	return u, nil
}

// UpdateUserPreferences overwrites the user's agent preferences.
func (s *SQLiteStore) UpdateUserPreferences(userID string, p models.Preferences) error {
	res, err := s.db.Exec(
		`UPDATE users SET custom_background = ?, custom_behavior = ?, custom_gender = ? WHERE user_id = ?`,
		nilIfEmpty(p.Background), nilIfEmpty(p.Behavior), nilIfEmpty(p.Gender), userID)
	if err != nil {
		slog.Error("SQLiteStore.UpdateUserPreferences failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update preferences for %s: %w", userID, err)
	}
	return requireRowAffected(res, userID)
}

// AppendHistorySummary appends one session summary to the user's history.
func (s *SQLiteStore) AppendHistorySummary(userID string, summary string) error {
	u, err := s.GetUser(userID)
	if err != nil {
		return err
	}
	summaries := append(u.HistorySummaries, summary)
	res, err := s.db.Exec(`UPDATE users SET history_summary = ? WHERE user_id = ?`,
		mustMarshalSummaries(summaries), userID)
	if err != nil {
		slog.Error("SQLiteStore.AppendHistorySummary failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to append history summary for %s: %w", userID, err)
	}
	return requireRowAffected(res, userID)
}

// SaveSessionRecord stores a finished session.
func (s *SQLiteStore) SaveSessionRecord(rec models.SessionRecord) error {
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
		`INSERT INTO sessions (id, user_id, full_conversation, summary, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(conversation), nilIfEmpty(rec.Summary), createdAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveSessionRecord failed", "error", err, "userID", rec.UserID)
		return fmt.Errorf("failed to insert session record for %s: %w", rec.UserID, err)
	}
	slog.Debug("SQLiteStore.SaveSessionRecord succeeded", "userID", rec.UserID, "id", rec.ID)
	return nil
}

// SaveAppointment stores an appointment.
func (s *SQLiteStore) SaveAppointment(a models.Appointment) error {
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
		`INSERT INTO appointments (id, user_id, appointment_time, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.UserID, a.Time.UTC(), createdAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveAppointment failed", "error", err, "userID", a.UserID)
		return fmt.Errorf("failed to insert appointment for %s: %w", a.UserID, err)
	}
	return nil
}

// FindFutureAppointment returns the user's earliest appointment after the
// given time, or nil when none exists.
func (s *SQLiteStore) FindFutureAppointment(userID string, after time.Time) (*models.Appointment, error) {
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
func (s *SQLiteStore) ListFutureAppointments(userID string, after time.Time) ([]models.Appointment, error) {
	return s.listFutureAppointments(userID, after, 0)
}

func (s *SQLiteStore) listFutureAppointments(userID string, after time.Time, limit int) ([]models.Appointment, error) {
	query := `SELECT id, user_id, appointment_time, created_at FROM appointments
		 WHERE user_id = ? AND appointment_time > ? ORDER BY appointment_time ASC`
	args := []interface{}{userID, after.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore.ListFutureAppointments query failed", "error", err, "userID", userID)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
