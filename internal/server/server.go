// Package server exposes the grid store over HTTP: a load endpoint that never
// fails for a valid page name, a save endpoint with full-overwrite semantics,
// and a static landing page. Every failure is converted to a structured JSON
// status object at the request boundary; nothing crashes the process
// per-request.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"prioritygrid/internal/grid"
	"prioritygrid/internal/store"
)

// Server handles the grid HTTP surface.
type Server struct {
	store  store.GridStore
	logger *zap.Logger
	cors   bool
}

// Options configures New.
type Options struct {
	// CORS enables the permissive cross-origin middleware.
	CORS bool
	// Logger receives request logs. Nil means no logging.
	Logger *zap.Logger
}

// New builds a Server around the given store.
func New(st store.GridStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: st, logger: logger, cors: opts.CORS}
}

// Handler returns the routed, middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /load_data/{page_name}", s.handleLoad)
	mux.HandleFunc("POST /save_data", s.handleSave)
	mux.HandleFunc("GET /{$}", s.handleHome)

	var h http.Handler = mux
	if s.cors {
		h = corsMiddleware(h)
	}
	return s.logRequests(h)
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	s.logger.Info("grid backend listening", zap.String("addr", addr))

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("drain_timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// statusResponse is the JSON shape of every save result and error. Field
// order is declaration order: status first, then message.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// savePayload mirrors the save request body. Page is a pointer so a missing
// key is distinguishable from an empty string.
type savePayload struct {
	Page *string         `json:"page"`
	Data json.RawMessage `json:"data"`
}

// handleLoad returns the stored grid for the page, materializing the default
// for a never-seen page. Absence is never an error.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	pageName := r.PathValue("page_name")

	g, err := s.store.Load(r.Context(), pageName)
	if err != nil {
		s.logger.Error("load failed",
			zap.String("page", pageName),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Server error: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

// handleSave overwrites the page's grid. Shape errors are rejected before any
// store access; store faults roll back and surface as 500s.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload savePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing 'page' or 'data'")
		return
	}
	if payload.Page == nil || payload.Data == nil {
		s.writeError(w, http.StatusBadRequest, "Missing 'page' or 'data'")
		return
	}

	g, err := grid.Decode(payload.Data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Data must be a 2D list")
		return
	}

	if err := s.store.Save(r.Context(), *payload.Page, g); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.logger.Warn("save lost uniqueness race",
				zap.String("page", *payload.Page))
			s.writeError(w, http.StatusInternalServerError, "Database integrity error")
			return
		}
		s.logger.Error("save failed",
			zap.String("page", *payload.Page),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Server error: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

const homePage = `<h1>Conference Priority Grid Backend</h1>
<p>Endpoints:</p>
<ul>
    <li>GET /load_data/&lt;page_name&gt;  (industrial | logistics | commercial)</li>
    <li>POST /save_data  (JSON: {"page": "...", "data": [...]})</li>
</ul>
`

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, homePage)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, statusResponse{Status: "error", Message: message})
}
