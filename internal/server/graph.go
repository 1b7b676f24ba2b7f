package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store"
)

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID   string             `json:"source_id"`
		TargetID   string             `json:"target_id"`
		Type       model.RelationType `json:"type"`
		Strength   *float64           `json:"strength"`
		Confidence *float64           `json:"confidence"`
		Context    string             `json:"context,omitempty"`
		CreatedBy  string             `json:"created_by,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		badRequest(w, "source_id and target_id required")
		return
	}
	if !s.authorizeWrite(w, r, req.SourceID) || !s.authorizeWrite(w, r, req.TargetID) {
		return
	}

	// Absent weights default to 1; an explicit 0 is inside the valid
	// range and preserved.
	rel := model.Relationship{
		SourceID:   req.SourceID,
		TargetID:   req.TargetID,
		Type:       req.Type,
		Strength:   1,
		Confidence: 1,
		Context:    req.Context,
		CreatedBy:  req.CreatedBy,
	}
	if req.Strength != nil {
		rel.Strength = *req.Strength
	}
	if req.Confidence != nil {
		rel.Confidence = *req.Confidence
	}
	if rel.CreatedBy == "" {
		rel.CreatedBy = identityFrom(r).EntityID
	}

	if err := s.engine.Link(&rel); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &rel)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID string             `json:"source_id"`
		TargetID string             `json:"target_id"`
		Type     model.RelationType `json:"type,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		badRequest(w, "source_id and target_id required")
		return
	}
	if !s.authorizeWrite(w, r, req.SourceID) || !s.authorizeWrite(w, r, req.TargetID) {
		return
	}

	removed, err := s.engine.Unlink(req.SourceID, req.TargetID, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dir := store.Direction(r.URL.Query().Get("direction"))
	switch dir {
	case store.DirIn, store.DirOut:
	default:
		dir = store.DirBoth
	}

	var types []model.RelationType
	if t := r.URL.Query().Get("type"); t != "" {
		types = append(types, model.RelationType(t))
	}

	rels, err := s.engine.Neighbors(id, types, dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memory_id":     id,
		"relationships": rels,
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	threshold := 0.5
	if t := r.URL.Query().Get("threshold"); t != "" {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			threshold = f
		}
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.engine.Similar(id, threshold, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	ident := identityFrom(r)
	visible := results[:0]
	for _, res := range results {
		if canSee(ident, &res.Memory) {
			visible = append(visible, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memory_id": id,
		"similar":   visible,
	})
}

func (s *Server) handleAutoLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeWrite(w, r, id) {
		return
	}

	linked, err := s.engine.AutoLink(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memory_id": id, "linked": linked})
}
