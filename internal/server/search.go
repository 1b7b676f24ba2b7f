package server

import (
	"encoding/json"
	"net/http"

	"github.com/stratumhq/stratum/internal/engine"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q engine.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		badRequest(w, "invalid json")
		return
	}

	page, err := s.engine.Search(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}

	// Visibility filtering happens after ranking so pagination metadata
	// never leaks hidden rows' contents, only their count.
	ident := identityFrom(r)
	visible := page.Results[:0]
	for _, res := range page.Results {
		if canSee(ident, &res.Memory) {
			visible = append(visible, res)
		}
	}
	page.Results = visible

	writeJSON(w, http.StatusOK, page)
}
