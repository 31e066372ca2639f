package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tazhate/countdowns/config"
	"github.com/tazhate/countdowns/internal/service"
	"github.com/tazhate/countdowns/internal/storage"
)

type ctxKey int

const userKey ctxKey = iota

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type Server struct {
	cfg      *config.Config
	events   *service.EventService
	shares   *service.ShareService
	calendar *service.CalendarService

	// configured user name -> storage user id
	users map[string]int64

	mux    *http.ServeMux
	server *http.Server
}

// New registers every configured user in storage and builds the routes.
func New(cfg *config.Config, store *storage.Storage, events *service.EventService, shares *service.ShareService, calendar *service.CalendarService) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		events:   events,
		shares:   shares,
		calendar: calendar,
		users:    make(map[string]int64, len(cfg.Users)),
		mux:      http.NewServeMux(),
	}

	for _, u := range cfg.Users {
		user, err := store.EnsureUser(u.Name, u.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("ensure user %s: %w", u.Name, err)
		}
		s.users[u.Name] = user.ID
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.mux.HandleFunc("/api/time", s.apiTime)
	s.mux.HandleFunc("/api/events", s.basicAuth(s.apiEvents))
	s.mux.HandleFunc("/api/events/", s.basicAuth(s.apiEvent))
	s.mux.HandleFunc("/api/calendar.ics", s.basicAuth(s.apiCalendar))

	// Previews are public; importing needs an account.
	s.mux.HandleFunc("/api/share/", s.apiShare)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", s.cfg.Listen)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Countdowns API"`)
			s.jsonError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	}
}

func (s *Server) authenticate(r *http.Request) (int64, bool) {
	username, password, ok := r.BasicAuth()
	if !ok || !s.cfg.IsAllowedUser(username, password) {
		return 0, false
	}
	id, ok := s.users[username]
	return id, ok
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userKey).(int64)
	return id
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	s.jsonStatus(w, http.StatusOK, data)
}

func (s *Server) jsonStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// serviceError maps service errors to HTTP statuses.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		s.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		s.jsonError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		s.jsonError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, service.ErrShareExpired):
		s.jsonError(w, "Share link expired", http.StatusGone)
	default:
		log.Printf("API error: %v", err)
		s.jsonError(w, "Internal error", http.StatusInternalServerError)
	}
}
