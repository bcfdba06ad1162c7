// Package web exposes the investigation store and traffic state as a JSON API
// with SSE change streams.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/bluecity/pkg/investigation"
	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
	"github.com/ritzau/bluecity/pkg/pubsub"
	"github.com/ritzau/bluecity/pkg/simulation"
	"github.com/ritzau/bluecity/pkg/traffic"
)

// Simulator runs one traffic simulation against the live state
type Simulator interface {
	Run(ctx context.Context, state *traffic.State) error
}

var _ Simulator = (*simulation.Runner)(nil)

// Server represents the web server
type Server struct {
	router    *mux.Router
	publisher pubsub.Publisher
	simulator Simulator

	// mu serializes every access to the store and the traffic state
	mu    sync.Mutex
	store *investigation.Store
}

// NewServer creates a server over store. A nil simulator disables
// POST /api/traffic/simulate.
func NewServer(store *investigation.Store, publisher pubsub.Publisher, simulator Simulator) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		publisher: publisher,
		simulator: simulator,
		store:     store,
	}
	s.setupRoutes()
	return s
}

// Handler returns the routes wrapped in request logging
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// Locked runs fn while holding the store lock. Used by background reloads.
func (s *Server) Locked(fn func(store *investigation.Store)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.store)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoint
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	// API routes - more specific routes must come first
	s.router.HandleFunc("/api/state", s.handleState).Methods("GET")
	s.router.HandleFunc("/api/import", s.handleImport).Methods("POST")

	s.router.HandleFunc("/api/projects", s.handleCreateProject).Methods("POST")
	s.router.HandleFunc("/api/projects/{id}/toggle", s.handleToggleProject).Methods("POST")
	s.router.HandleFunc("/api/projects/{id}/investigations", s.handleSaveInvestigation).Methods("POST")
	s.router.HandleFunc("/api/projects/{id}", s.handleUpdateProject).Methods("PATCH")
	s.router.HandleFunc("/api/projects/{id}", s.handleDeleteProject).Methods("DELETE")

	s.router.HandleFunc("/api/investigations/{id}/activate", s.handleActivate).Methods("POST")
	s.router.HandleFunc("/api/investigations/{id}/share", s.handleShare).Methods("GET")
	s.router.HandleFunc("/api/investigations/{id}", s.handleUpdateInvestigation).Methods("PATCH")
	s.router.HandleFunc("/api/investigations/{id}", s.handleDeleteInvestigation).Methods("DELETE")

	s.router.HandleFunc("/api/selection/layers", s.handleSetLayers).Methods("PUT")
	s.router.HandleFunc("/api/selection/sources", s.handleSetSources).Methods("PUT")
	s.router.HandleFunc("/api/selection/groups", s.handleSetGroup).Methods("PUT")
	s.router.HandleFunc("/api/period", s.handleSetPeriod).Methods("PUT")

	s.router.HandleFunc("/api/traffic", s.handleTraffic).Methods("GET")
	s.router.HandleFunc("/api/traffic/panel", s.handleSetPanel).Methods("PUT")
	s.router.HandleFunc("/api/traffic/edges/toggle", s.handleToggleEdge).Methods("POST")
	s.router.HandleFunc("/api/traffic/pairs", s.handleSetPairs).Methods("PUT")
	s.router.HandleFunc("/api/traffic/simulate", s.handleSimulate).Methods("POST")
	s.router.HandleFunc("/api/traffic/clear", s.handleClear).Methods("POST")
	s.router.HandleFunc("/api/traffic/visualization", s.handleSetVisualization).Methods("PUT")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if topic != pubsub.TopicInvestigations && topic != pubsub.TopicTraffic {
		http.Error(w, fmt.Sprintf("Unknown topic: %s", topic), http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	// Create subscription
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flush(w)

	// Stream events
	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.DebugContext(r.Context(), "SSE client went away", "topic", topic, "error", err)
			return
		}
		flush(w)
	}
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown web server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, investigation.ErrProjectNotFound), errors.Is(err, investigation.ErrInvestigationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// StateResponse is the full UI state
type StateResponse struct {
	Projects              []*model.Project `json:"projects"`
	ActiveInvestigationID string           `json:"activeInvestigationId,omitempty"`
	SelectedLayers        []string         `json:"selectedLayers"`
	SelectedSources       []string         `json:"selectedSources"`
	Period                string           `json:"period,omitempty"`
	ExpandedGroups        map[string]bool  `json:"expandedGroups"`
	Traffic               TrafficResponse  `json:"traffic"`
}

func (s *Server) stateResponse() StateResponse {
	return StateResponse{
		Projects:              s.store.Projects(),
		ActiveInvestigationID: s.store.ActiveID(),
		SelectedLayers:        nonNil(s.store.SelectedLayers()),
		SelectedSources:       nonNil(s.store.SelectedSources()),
		Period:                s.store.Period(),
		ExpandedGroups:        s.store.ExpandedGroups(),
		Traffic:               trafficResponse(s.store.Traffic()),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.stateResponse())
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
