package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/talk2me-ai/talk2me/internal/appointment"
	"github.com/talk2me-ai/talk2me/internal/flow"
	"github.com/talk2me-ai/talk2me/internal/session"
	"github.com/talk2me-ai/talk2me/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	// Chat turns can chain several generator calls; the write timeout has to
	// cover the slowest branch.
	writeTimeout    = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Synthesizer converts reply text to audio. Nil disables audio in responses.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, gender string) ([]byte, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP endpoints to the orchestrator and stores.
type Server struct {
	addr      string
	st        store.Store
	sessions  *session.Store
	responder *flow.Responder
	scheduler *appointment.Scheduler
	synth     Synthesizer
	httpSrv   *http.Server
}

// NewServer creates an API server over the given collaborators. synth may be
// nil when speech synthesis is disabled.
func NewServer(st store.Store, sessions *session.Store, responder *flow.Responder, scheduler *appointment.Scheduler, synth Synthesizer, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:      cfg.Addr,
		st:        st,
		sessions:  sessions,
		responder: responder,
		scheduler: scheduler,
		synth:     synth,
	}
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/newUser", s.newUserHandler)
	mux.HandleFunc("/api/firstChat", s.firstChatHandler)
	mux.HandleFunc("/api/chat", s.chatHandler)
	mux.HandleFunc("/api/add-punct", s.addPunctHandler)
	mux.HandleFunc("/api/save", s.saveHandler)
	mux.HandleFunc("/api/get-prefs", s.getPrefsHandler)
	mux.HandleFunc("/api/set-prefs", s.setPrefsHandler)
	mux.HandleFunc("/api/save-appointment", s.saveAppointmentHandler)
	mux.HandleFunc("/api/get-appointments", s.getAppointmentsHandler)
	mux.HandleFunc("/api/generate-calendar", s.generateCalendarHandler)
	return corsMiddleware(mux)
}

// corsMiddleware allows the browser frontend to call the API from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
