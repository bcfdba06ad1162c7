package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
)

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusCreated, s.store.CreateProject(req.Name))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.RenameProject(mux.Vars(r)["id"], req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteProject(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expanded, err := s.store.ToggleProjectExpanded(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"expanded": expanded})
}

func (s *Server) handleSaveInvestigation(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.store.SaveCurrentState(mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.store.SwitchToInvestigation(id) {
		http.Error(w, fmt.Sprintf("Investigation not found: %s", id), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

type updateInvestigationRequest struct {
	Name      *string `json:"name"`
	ProjectID *string `json:"projectId"`
}

func (s *Server) handleUpdateInvestigation(w http.ResponseWriter, r *http.Request) {
	var req updateInvestigationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ProjectID != nil {
		if err := s.store.MoveInvestigation(id, *req.ProjectID); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Name != nil {
		if err := s.store.RenameInvestigation(id, *req.Name); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteInvestigation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteInvestigation(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, err := s.store.ShareURL(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

type importRequest struct {
	URL string `json:"url"`
}

type importResponse struct {
	URL      string `json:"url"`
	Imported bool   `json:"imported"`
	ActiveID string `json:"activeInvestigationId,omitempty"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cleaned, ok := s.store.ImportSharedURL(req.URL)
	writeJSON(w, http.StatusOK, importResponse{URL: cleaned, Imported: ok, ActiveID: s.store.ActiveID()})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleSetLayers(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetSelectedLayers(req.IDs)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSources(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetSelectedSources(req.IDs)
	w.WriteHeader(http.StatusNoContent)
}

type groupRequest struct {
	Group    string `json:"group"`
	Expanded bool   `json:"expanded"`
}

func (s *Server) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Group == "" {
		http.Error(w, "Group required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetGroupExpanded(req.Group, req.Expanded)
	w.WriteHeader(http.StatusNoContent)
}

type periodRequest struct {
	Period string `json:"period"`
}

func (s *Server) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetPeriod(req.Period)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := trafficResponse(s.store.Traffic())
	resp.Edges = edgeColors(s.store.Traffic())
	writeJSON(w, http.StatusOK, resp)
}

type panelRequest struct {
	Open bool `json:"open"`
}

func (s *Server) handleSetPanel(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Traffic().SetOpen(req.Open)
	w.WriteHeader(http.StatusNoContent)
}

type toggleEdgeRequest struct {
	U    int64  `json:"u"`
	V    int64  `json:"v"`
	Name string `json:"name"`
}

func (s *Server) handleToggleEdge(w http.ResponseWriter, r *http.Request) {
	var req toggleEdgeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.U < 0 || req.V < 0 {
		http.Error(w, "Node ids must not be negative", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.store.Traffic().ToggleEdge(req.U, req.V, req.Name)
	writeJSON(w, http.StatusOK, map[string]any{
		"removed":      removed,
		"removedCount": s.store.Traffic().RemovedEdgesCount(),
	})
}

type pairsRequest struct {
	Pairs []model.NodePair `json:"pairs"`
}

func (s *Server) handleSetPairs(w http.ResponseWriter, r *http.Request) {
	var req pairsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Traffic().SetNodePairs(req.Pairs)
	w.WriteHeader(http.StatusNoContent)
}

// handleSimulate holds the store lock for the whole round trip, so at most
// one simulation is in flight and its result lands on the state it was
// computed from.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.simulator == nil {
		http.Error(w, "Simulation backend not configured", http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.simulator.Run(r.Context(), s.store.Traffic()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		logging.WarnContext(r.Context(), "simulation request failed", "error", err)
		http.Error(w, err.Error(), status)
		return
	}

	resp := trafficResponse(s.store.Traffic())
	resp.Edges = edgeColors(s.store.Traffic())
	writeJSON(w, http.StatusOK, resp)
}

type clearRequest struct {
	Edges bool `json:"edges"`
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Edges {
		s.store.Traffic().ClearRemovedEdges()
	}
	s.store.Traffic().ClearResults()
	w.WriteHeader(http.StatusNoContent)
}

type visualizationRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetVisualization(w http.ResponseWriter, r *http.Request) {
	var req visualizationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, ok := model.ParseVisualizationMode(req.Mode)
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown visualization mode: %s", req.Mode), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Traffic().SetActiveVisualization(mode)
	writeJSON(w, http.StatusOK, trafficResponse(s.store.Traffic()))
}
