package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratumhq/stratum/internal/model"
)

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var m model.Memory
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		badRequest(w, "invalid json")
		return
	}

	if err := s.engine.CreateMemory(r.Context(), &m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &m)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Memories []*model.Memory `json:"memories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if len(req.Memories) == 0 {
		badRequest(w, "memories required")
		return
	}

	res := s.engine.CreateBatch(r.Context(), req.Memories)
	status := http.StatusCreated
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := s.engine.GetMemory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !canSee(identityFrom(r), m) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		model.Memory
		ExpectedVersion int `json:"expected_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.ExpectedVersion <= 0 {
		badRequest(w, "expected_version required")
		return
	}
	if !s.authorizeWrite(w, r, id) {
		return
	}

	m := req.Memory
	m.ID = id
	if err := s.engine.UpdateMemory(r.Context(), &m, req.ExpectedVersion); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &m)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reason := r.URL.Query().Get("reason")
	if !s.authorizeWrite(w, r, id) {
		return
	}

	if err := s.engine.DeleteMemory(id, identityFrom(r).EntityID, reason, false); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	transitions, err := s.engine.Transitions(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memory_id":   id,
		"transitions": transitions,
	})
}
