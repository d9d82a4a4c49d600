package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/talk2me-ai/talk2me/internal/appointment"
	"github.com/talk2me-ai/talk2me/internal/models"
	"github.com/talk2me-ai/talk2me/internal/session"
	"github.com/talk2me-ai/talk2me/internal/store"
)

// newUserRequest is the payload for user registration.
type newUserRequest struct {
	UserID        string             `json:"userId"`
	Email         string             `json:"email"`
	FullName      string             `json:"fullName"`
	PreferredName string             `json:"preferredName"`
	Preferences   models.Preferences `json:"preferences"`
}

// chatRequest is the payload for both chat endpoints. IsVoice marks messages
// transcribed from speech, which get punctuation restored before they enter
// the history.
type chatRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	IsVoice   bool   `json:"isVoice"`
}

// chatResult is the result envelope for chat turns. AudioData marshals as
// base64; it is omitted when synthesis is disabled.
type chatResult struct {
	SessionID            string     `json:"sessionId"`
	Message              string     `json:"message"`
	AudioData            []byte     `json:"audioData,omitempty"`
	EndConversation      bool       `json:"endConversation,omitempty"`
	SuggestedAppointment bool       `json:"suggestedAppointment,omitempty"`
	SuggestedTime        *time.Time `json:"suggestedTime,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

type prefsRequest struct {
	UserID      string             `json:"userId"`
	Preferences models.Preferences `json:"preferences"`
}

type appointmentRequest struct {
	UserID string    `json:"userId"`
	Time   time.Time `json:"time"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("ok"))
}

func (s *Server) newUserHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req newUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	profile := models.UserProfile{
		UserID:        req.UserID,
		Email:         req.Email,
		FullName:      req.FullName,
		PreferredName: req.PreferredName,
		Preferences:   req.Preferences,
	}
	if err := s.st.SaveUser(profile); err != nil {
		switch {
		case errors.Is(err, store.ErrUserExists):
			writeJSONResponse(w, http.StatusConflict, models.Error("User already exists"))
		case errors.Is(err, models.ErrEmptyUserID):
			writeJSONResponse(w, http.StatusBadRequest, models.Error("userId is required"))
		default:
			slog.Error("Server.newUserHandler: failed to save user", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create user"))
		}
		return
	}
	slog.Info("Server.newUserHandler: user created", "userID", req.UserID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("User created", nil))
}

// firstChatHandler bootstraps a session for a user and returns the opening
// message.
func (s *Server) firstChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	if req.SessionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("sessionId is required"))
		return
	}
	profile, err := s.st.GetUser(req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server.firstChatHandler: failed to load user", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load user"))
		return
	}

	greeting, err := s.responder.StartSession(r.Context(), req.SessionID, *profile)
	if err != nil {
		slog.Error("Server.firstChatHandler: failed to start session", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start session"))
		return
	}

	result := chatResult{SessionID: req.SessionID, Message: greeting}
	if req.IsVoice {
		result.AudioData = s.synthesize(r, greeting, profile.Preferences.Gender)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// chatHandler runs one conversation turn. Turns within a session are
// serialized; concurrent requests for the same session queue up.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}

	release, err := s.sessions.Acquire(req.SessionID)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	defer release()

	if req.IsVoice {
		normalized, err := s.responder.NormalizeText(r.Context(), req.Message)
		if err != nil {
			// The raw transcript is still a usable message.
			slog.Warn("Server.chatHandler: transcript normalization failed, using raw text", "error", err, "sessionID", req.SessionID)
		} else {
			req.Message = normalized
		}
	}

	userMsg := models.Message{Role: models.RoleUser, Content: req.Message}
	if err := s.sessions.Append(req.SessionID, userMsg); err != nil {
		s.writeSessionError(w, err)
		return
	}

	reply, err := s.responder.GenerateResponse(r.Context(), req.SessionID, "")
	if err != nil {
		// Drop the user message so a retry does not leave two consecutive
		// user turns in the history.
		if dropErr := s.sessions.DropLast(req.SessionID); dropErr != nil {
			slog.Error("Server.chatHandler: failed to roll back user message", "error", dropErr, "sessionID", req.SessionID)
		}
		slog.Error("Server.chatHandler: failed to generate response", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to generate response"))
		return
	}
	if err := s.sessions.Append(req.SessionID, models.Message{Role: models.RoleAssistant, Content: reply.Text}); err != nil {
		s.writeSessionError(w, err)
		return
	}

	result := chatResult{SessionID: req.SessionID, Message: reply.Text, EndConversation: reply.EndConversation}
	if req.IsVoice {
		if state, err := s.sessions.Snapshot(req.SessionID); err == nil {
			result.AudioData = s.synthesize(r, reply.Text, state.Gender)
		}
	}
	if reply.EndConversation && req.UserID != "" {
		suggested, at, err := s.scheduler.Suggest(req.UserID, time.Now())
		switch {
		case err != nil:
			slog.Warn("Server.chatHandler: appointment suggestion failed", "error", err, "userID", req.UserID)
		case suggested:
			result.SuggestedAppointment = true
			result.SuggestedTime = &at
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// addPunctHandler restores punctuation on raw speech-to-text output.
func (s *Server) addPunctHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	out, err := s.responder.NormalizeText(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, models.ErrEmptyMessage) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("text is required"))
			return
		}
		slog.Error("Server.addPunctHandler: normalization failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process text"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"text": out}))
}

// saveHandler persists a finished session and drops its live state.
func (s *Server) saveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	summary, err := s.responder.PersistSession(r.Context(), req.SessionID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrEmptyUserID):
			writeJSONResponse(w, http.StatusBadRequest, models.Error("userId is required"))
		default:
			slog.Error("Server.saveHandler: failed to persist session", "error", err, "sessionID", req.SessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"summary": summary}))
}

func (s *Server) getPrefsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("userId is required"))
		return
	}
	profile, err := s.st.GetUser(userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server.getPrefsHandler: failed to load user", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load preferences"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile.Preferences))
}

func (s *Server) setPrefsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req prefsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("userId is required"))
		return
	}
	if err := s.st.UpdateUserPreferences(req.UserID, req.Preferences); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server.setPrefsHandler: failed to update preferences", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update preferences"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Preferences updated", nil))
}

func (s *Server) saveAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	appt, err := s.scheduler.Save(req.UserID, req.Time)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmptyUserID):
			writeJSONResponse(w, http.StatusBadRequest, models.Error("userId is required"))
		case errors.Is(err, models.ErrEmptyAppointmentAt):
			writeJSONResponse(w, http.StatusBadRequest, models.Error("time is required"))
		default:
			slog.Error("Server.saveAppointmentHandler: failed to save appointment", "error", err, "userID", req.UserID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save appointment"))
		}
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(appt))
}

func (s *Server) getAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("userId is required"))
		return
	}
	appts, err := s.scheduler.ListFuture(userID, time.Now())
	if err != nil {
		slog.Error("Server.getAppointmentsHandler: failed to list appointments", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list appointments"))
		return
	}
	if appts == nil {
		appts = []models.Appointment{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(appts))
}

// generateCalendarHandler renders an iCalendar invite for a confirmed
// appointment time.
func (s *Server) generateCalendarHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	rawTime := r.URL.Query().Get("time")
	at, err := time.Parse(time.RFC3339, rawTime)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("time must be RFC3339"))
		return
	}
	name := r.URL.Query().Get("name")

	w.Header().Set("Content-Type", "text/calendar")
	w.Header().Set("Content-Disposition", `attachment; filename="talk2me-session.ics"`)
	if _, err := w.Write([]byte(appointment.Calendar(at, name))); err != nil {
		slog.Error("Server.generateCalendarHandler: failed to write calendar", "error", err)
	}
}

// synthesize renders reply audio when a synthesizer is configured. Synthesis
// failures are logged and swallowed: the text reply still goes out.
func (s *Server) synthesize(r *http.Request, text, gender string) []byte {
	if s.synth == nil {
		return nil
	}
	audio, err := s.synth.Synthesize(r.Context(), text, gender)
	if err != nil {
		slog.Warn("Server.synthesize: speech synthesis failed", "error", err)
		return nil
	}
	return audio
}

// writeSessionError maps session store errors to HTTP responses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
	case errors.Is(err, models.ErrEmptySessionID):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("sessionId is required"))
	case errors.Is(err, models.ErrEmptyMessage):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message is required"))
	case errors.Is(err, models.ErrMessageTooLong):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message is too long"))
	default:
		slog.Error("Server: session operation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
