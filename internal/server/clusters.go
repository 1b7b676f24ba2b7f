package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratumhq/stratum/internal/model"
)

func (s *Server) handleCreateCluster(w http.ResponseWriter, r *http.Request) {
	var c model.Cluster
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		badRequest(w, "invalid json")
		return
	}
	for _, mid := range c.MemberIDs {
		if !s.authorizeWrite(w, r, mid) {
			return
		}
	}

	if err := s.engine.CreateCluster(&c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &c)
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.GetCluster(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type memberRequest struct {
	MemberIDs []string `json:"member_ids"`
}

func (s *Server) handleAddMembers(w http.ResponseWriter, r *http.Request) {
	s.changeMembers(w, r, false)
}

func (s *Server) handleRemoveMembers(w http.ResponseWriter, r *http.Request) {
	s.changeMembers(w, r, true)
}

func (s *Server) changeMembers(w http.ResponseWriter, r *http.Request, remove bool) {
	id := chi.URLParam(r, "id")

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if len(req.MemberIDs) == 0 {
		badRequest(w, "member_ids required")
		return
	}
	for _, mid := range req.MemberIDs {
		if !s.authorizeWrite(w, r, mid) {
			return
		}
	}

	var c *model.Cluster
	var err error
	if remove {
		c, err = s.engine.RemoveClusterMembers(id, req.MemberIDs)
	} else {
		c, err = s.engine.AddClusterMembers(id, req.MemberIDs)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleClusterMemories(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	memories, err := s.engine.ClusterMemories(id)
	if err != nil {
		writeError(w, err)
		return
	}

	ident := identityFrom(r)
	visible := memories[:0]
	for i := range memories {
		if canSee(ident, &memories[i]) {
			visible = append(visible, memories[i])
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cluster_id": id,
		"memories":   visible,
	})
}

func (s *Server) handleRecomputeCoherence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.RecomputeCoherence(id); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.engine.GetCluster(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        c.ID,
		"coherence": c.Coherence,
	})
}
