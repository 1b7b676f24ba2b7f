package server

import (
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.CollectStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTopAccessed(w http.ResponseWriter, r *http.Request) {
	window := 7 * 24 * time.Hour
	if d := r.URL.Query().Get("window"); d != "" {
		if parsed, err := time.ParseDuration(d); err == nil && parsed > 0 {
			window = parsed
		}
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.engine.TopAccessed(window, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window":  window.String(),
		"entries": entries,
	})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.engine.Health()
	if err != nil {
		writeError(w, err)
		return
	}
	status := "healthy"
	if len(issues) > 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"issues": issues,
	})
}
