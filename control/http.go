package control

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cadecuddy/money-dollar/rewrite"
	"github.com/cadecuddy/money-dollar/state"
)

// Server is the HTTP control surface: flip the persisted flag, broadcast
// the toggle, inspect status, and smoke-test the rewrite rules.
type Server struct {
	db     *sql.DB
	bcast  *Broadcaster
	logger *slog.Logger
}

// NewServer creates a control Server.
func NewServer(db *sql.DB, bcast *Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{db: db, bcast: bcast, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/toggle", s.handleToggle)
	r.Get("/status", s.handleStatus)
	r.Post("/rewrite", s.handleRewrite)
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("control: listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := state.SetEnabled(r.Context(), s.db, req.Enabled); err != nil {
		s.logger.Error("control: persist toggle", "error", err)
		writeError(w, http.StatusInternalServerError, "persist failed")
		return
	}

	failed := s.bcast.Broadcast(r.Context(), Message{Type: TypeToggleState, Enabled: req.Enabled})
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          req.Enabled,
		"delivery_failures": failed,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	enabled, err := state.Enabled(r.Context(), s.db)
	if err != nil {
		s.logger.Warn("control: read flag", "error", err)
		enabled = false
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": enabled,
		"pages":   s.bcast.Pages(),
	})
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	out, changed := rewrite.Rewrite(req.Text)
	writeJSON(w, http.StatusOK, map[string]any{"text": out, "changed": changed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
