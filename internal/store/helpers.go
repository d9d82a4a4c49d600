package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// mustMarshalSummaries encodes history summaries as a JSON array string.
// A nil slice encodes as the empty array, matching the column default.
func mustMarshalSummaries(summaries []string) string {
	if summaries == nil {
		summaries = []string{}
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		// []string cannot fail to marshal; guard against future type changes.
		slog.Error("store: failed to marshal history summaries", "error", err)
		return "[]"
	}
	return string(data)
}

// scanUserRow scans a UserProfile from a single sql.Row.
func scanUserRow(row *sql.Row) (*models.UserProfile, error) {
	var u models.UserProfile
	var email, fullName, preferredName, background, behavior, gender sql.NullString
	var summaryJSON string
	err := row.Scan(&u.UserID, &email, &fullName, &preferredName, &summaryJSON,
		&background, &behavior, &gender, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.FullName = fullName.String
	u.PreferredName = preferredName.String
	u.Preferences = models.Preferences{
		Background: background.String,
		Behavior:   behavior.String,
		Gender:     gender.String,
	}
	if err := json.Unmarshal([]byte(summaryJSON), &u.HistorySummaries); err != nil {
		return nil, fmt.Errorf("failed to decode history summaries for %s: %w", u.UserID, err)
	}
	return &u, nil
}

// scanAppointment scans an Appointment from sql.Rows.
func scanAppointment(rows *sql.Rows) (models.Appointment, error) {
	var a models.Appointment
	var at, createdAt time.Time
	if err := rows.Scan(&a.ID, &a.UserID, &at, &createdAt); err != nil {
		return a, fmt.Errorf("scan appointment failed: %w", err)
	}
	a.Time = at
	a.CreatedAt = createdAt
	return a, nil
}

// requireRowAffected converts a zero-row UPDATE into ErrUserNotFound.
func requireRowAffected(res sql.Result, userID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected for %s: %w", userID, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
