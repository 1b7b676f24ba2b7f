// Package server exposes the stratum HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/store"
)

// Server is the stratum HTTP API server.
type Server struct {
	db       *store.DB
	engine   *engine.Engine
	resolver IdentityResolver
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server.
func New(db *store.DB, eng *engine.Engine, resolver IdentityResolver, version string) *Server {
	s := &Server{
		db:       db,
		engine:   eng,
		resolver: resolver,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/memories", s.handleCreateMemory)
			r.Post("/memories/batch", s.handleCreateBatch)
			r.Get("/memories/{id}", s.handleGetMemory)
			r.Put("/memories/{id}", s.handleUpdateMemory)
			r.Delete("/memories/{id}", s.handleDeleteMemory)
			r.Get("/memories/{id}/transitions", s.handleTransitions)

			r.Post("/memories/{id}/promote", s.handlePromote)
			r.Post("/memories/{id}/demote", s.handleDemote)
			r.Post("/memories/{id}/archive", s.handleArchive)
			r.Post("/memories/{id}/restore", s.handleRestore)
			r.Post("/memories/{id}/expiry", s.handleRefreshExpiry)

			r.Get("/memories/{id}/relationships", s.handleNeighbors)
			r.Get("/memories/{id}/similar", s.handleSimilar)
			r.Post("/memories/{id}/autolink", s.handleAutoLink)
			r.Post("/relationships", s.handleLink)
			r.Delete("/relationships", s.handleUnlink)

			r.Post("/clusters", s.handleCreateCluster)
			r.Get("/clusters/{id}", s.handleGetCluster)
			r.Get("/clusters/{id}/memories", s.handleClusterMemories)
			r.Post("/clusters/{id}/members", s.handleAddMembers)
			r.Delete("/clusters/{id}/members", s.handleRemoveMembers)
			r.Post("/clusters/{id}/coherence", s.handleRecomputeCoherence)

			r.Post("/search", s.handleSearch)

			r.Get("/stats", s.handleStats)
			r.Get("/stats/top", s.handleTopAccessed)
			r.Get("/stats/issues", s.handleIssues)
			r.Post("/sweep", s.handleSweep)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	embedder := "none"
	if s.engine != nil && s.engine.Embedder != nil {
		embedder = s.engine.Embedder.Model()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"db":       dbOK,
		"db_path":  s.db.Path,
		"embedder": embedder,
	})
}
