package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratumhq/stratum/internal/model"
)

// lifecycleRequest is the shared body of the promote, demote, archive,
// and restore actions. Importance is the promotion/demotion target; when
// omitted the level moves one step.
type lifecycleRequest struct {
	Importance model.Importance `json:"importance,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func decodeLifecycle(r *http.Request) lifecycleRequest {
	var req lifecycleRequest
	// Body is optional for lifecycle actions.
	json.NewDecoder(r.Body).Decode(&req)
	return req
}

// lifecycleResponse returns the memory's new lifecycle coordinates so the
// caller can retry with the fresh version.
func lifecycleResponse(w http.ResponseWriter, m *model.Memory) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         m.ID,
		"stage":      m.Stage,
		"tier":       m.Tier,
		"importance": m.Importance,
		"version":    m.Version,
	})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeWrite(w, r, id) {
		return
	}
	req := decodeLifecycle(r)
	m, err := s.engine.Promote(id, req.Importance, identityFrom(r).EntityID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	lifecycleResponse(w, m)
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeWrite(w, r, id) {
		return
	}
	req := decodeLifecycle(r)
	m, err := s.engine.Demote(id, req.Importance, identityFrom(r).EntityID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	lifecycleResponse(w, m)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeWrite(w, r, id) {
		return
	}
	req := decodeLifecycle(r)
	m, err := s.engine.Archive(id, identityFrom(r).EntityID, req.Reason, false)
	if err != nil {
		writeError(w, err)
		return
	}
	lifecycleResponse(w, m)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeWrite(w, r, id) {
		return
	}
	req := decodeLifecycle(r)
	m, err := s.engine.Restore(id, identityFrom(r).EntityID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	lifecycleResponse(w, m)
}

func (s *Server) handleRefreshExpiry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeWrite(w, r, id) {
		return
	}
	var req struct {
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	m, err := s.engine.RefreshExpiry(id, req.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         m.ID,
		"expires_at": m.ExpiresAt,
		"version":    m.Version,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
