package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/stratumhq/stratum/internal/model"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	EntityID string
}

// IdentityResolver maps a bearer token to a caller identity. Production
// deployments can swap in an external identity service.
type IdentityResolver interface {
	Resolve(token string) (Identity, bool)
}

// StaticTokens resolves identities from a fixed token table. An empty
// table means the server runs open and every caller is "local".
type StaticTokens map[string]string

// Resolve implements IdentityResolver.
func (t StaticTokens) Resolve(token string) (Identity, bool) {
	if len(t) == 0 {
		return Identity{EntityID: "local"}, true
	}
	entity, ok := t[token]
	return Identity{EntityID: entity}, ok
}

type ctxKey int

const identityKey ctxKey = 0

// authenticate resolves the bearer token and stores the identity in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ident, ok := s.resolver.Resolve(token)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, ident)))
	})
}

func identityFrom(r *http.Request) Identity {
	if ident, ok := r.Context().Value(identityKey).(Identity); ok {
		return ident
	}
	return Identity{EntityID: "anonymous"}
}

// canWrite reports whether the caller may mutate a memory. The owning
// entity and the open "local" identity always may; anyone else needs a
// grant carrying the write permission.
func canWrite(ident Identity, m *model.Memory) bool {
	if ident.EntityID == "local" || ident.EntityID == m.Scope.EntityID {
		return true
	}
	for _, g := range m.Security.Grants {
		if g.ScopeID != ident.EntityID {
			continue
		}
		for _, p := range g.Permissions {
			if p == "write" {
				return true
			}
		}
	}
	return false
}

// authorizeWrite loads a memory and rejects the request when the caller
// lacks write access. Returns false after writing the error response.
func (s *Server) authorizeWrite(w http.ResponseWriter, r *http.Request, id string) bool {
	m, err := s.engine.PeekMemory(id)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !canWrite(identityFrom(r), m) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
		return false
	}
	return true
}

// canSee applies the memory's security context to a caller: public is
// visible to everyone, private only to the owning entity, and scoped to
// the owner plus explicit grants.
func canSee(ident Identity, m *model.Memory) bool {
	if ident.EntityID == "local" || ident.EntityID == m.Scope.EntityID {
		return true
	}
	switch m.Security.AccessLevel {
	case "public":
		return true
	case "scoped":
		for _, g := range m.Security.Grants {
			if g.ScopeID == ident.EntityID {
				return true
			}
		}
	}
	return false
}
