// Package appointment handles follow-up session scheduling: suggesting the
// next check-in time, persisting confirmed appointments, and exporting them as
// calendar invites.
package appointment

import (
	"fmt"
	"log/slog"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/store"
)

// Scheduling constants. Suggestions land a week out during waking hours; the
// agent's closing message tells users to check in "in about a week".
const (
	suggestionLead = 7 * 24 * time.Hour
	sessionLength  = 30 * time.Minute
	lateHour       = 23
	earlyHour      = 6
	fallbackHour   = 20
)

// defaultLocation is the timezone suggestions are computed in.
var defaultLocation = mustLocation("America/Los_Angeles")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("appointment: timezone unavailable, using UTC", "name", name, "error", err)
		return time.UTC
	}
	return loc
}

// Scheduler suggests and records follow-up appointments.
type Scheduler struct {
	st store.Store
}

// NewScheduler creates a scheduler over the given store.
func NewScheduler(st store.Store) *Scheduler {
	return &Scheduler{st: st}
}

// Suggest proposes a follow-up slot one week from now, truncated to the hour,
// with overnight slots moved to 8pm. A user who already has a future
// appointment booked gets no suggestion: the first return value reports
// whether a suggestion was made.
func (s *Scheduler) Suggest(userID string, now time.Time) (bool, time.Time, error) {
	if userID == "" {
		return false, time.Time{}, models.ErrEmptyUserID
	}
	existing, err := s.st.FindFutureAppointment(userID, now)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("looking up appointments: %w", err)
	}
	if existing != nil {
		return false, time.Time{}, nil
	}
	return true, proposeSlot(now), nil
}

// proposeSlot computes the default suggestion: a week out, on the hour, moved
// to 8pm if it would land between 11pm and 6am.
func proposeSlot(now time.Time) time.Time {
	t := now.In(defaultLocation).Add(suggestionLead).Truncate(time.Hour)
	if t.Hour() >= lateHour || t.Hour() < earlyHour {
		t = time.Date(t.Year(), t.Month(), t.Day(), fallbackHour, 0, 0, 0, t.Location())
	}
	return t
}

// Save records a confirmed appointment.
func (s *Scheduler) Save(userID string, at time.Time) (models.Appointment, error) {
	if userID == "" {
		return models.Appointment{}, models.ErrEmptyUserID
	}
	if at.IsZero() {
		return models.Appointment{}, models.ErrEmptyAppointmentAt
	}
	a := models.Appointment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Time:      at,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.st.SaveAppointment(a); err != nil {
		return models.Appointment{}, fmt.Errorf("saving appointment: %w", err)
	}
	slog.Info("Scheduler.Save: appointment saved", "userID", userID, "time", at)
	return a, nil
}

// ListFuture returns the user's upcoming appointments, soonest first.
func (s *Scheduler) ListFuture(userID string, now time.Time) ([]models.Appointment, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	return s.st.ListFutureAppointments(userID, now)
}

// Calendar renders a 30-minute therapy session invite as an iCalendar
// document.
func Calendar(at time.Time, userName string) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//Talk2Me//Therapy Session//EN")

	event := cal.AddEvent(uuid.NewString())
	event.SetCreatedTime(time.Now().UTC())
	event.SetDtStampTime(time.Now().UTC())
	event.SetStartAt(at)
	event.SetEndAt(at.Add(sessionLength))
	event.SetSummary("Talk2Me Therapy Session")
	if userName != "" {
		event.SetDescription(fmt.Sprintf("Check-in session for %s with your Talk2Me therapist.", userName))
	} else {
		event.SetDescription("Check-in session with your Talk2Me therapist.")
	}
	return cal.Serialize()
}
