package model

import (
	"strings"
	"time"
)

// NormalizeScope validates and canonicalizes a scope tuple. Pure function:
// type and kind are lowercased and trimmed, ids are trimmed. Returns a
// ValidationError for unknown enum values or a missing entity id.
func NormalizeScope(s Scope) (Scope, error) {
	s.Type = ScopeType(strings.ToLower(strings.TrimSpace(string(s.Type))))
	s.EntityKind = strings.ToLower(strings.TrimSpace(s.EntityKind))
	s.EntityID = strings.TrimSpace(s.EntityID)
	s.ContextID = strings.TrimSpace(s.ContextID)
	s.ProjectID = strings.TrimSpace(s.ProjectID)

	if !ValidScopeTypes[s.Type] {
		return s, Validationf("scope.type", "unknown scope type %q", s.Type)
	}
	if s.EntityID == "" {
		return s, Validationf("scope.entity_id", "entity id required")
	}
	if !ValidEntityKinds[s.EntityKind] {
		return s, Validationf("scope.entity_kind", "unknown entity kind %q", s.EntityKind)
	}
	return s, nil
}

// ValidateMemory checks a memory's writable fields before persistence.
// now is injected so callers (and tests) control the clock.
func ValidateMemory(m *Memory, now time.Time) error {
	scope, err := NormalizeScope(m.Scope)
	if err != nil {
		return err
	}
	m.Scope = scope

	if strings.TrimSpace(m.Content) == "" {
		return Validationf("content", "content required")
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return Validationf("confidence", "must be in [0,1], got %v", m.Confidence)
	}
	if m.Source.Reliability < 0 || m.Source.Reliability > 1 {
		return Validationf("source.reliability", "must be in [0,1], got %v", m.Source.Reliability)
	}
	if !m.Importance.Valid() {
		return Validationf("importance", "unknown level %q", m.Importance)
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return Validationf("expires_at", "must be in the future")
	}
	switch m.Security.AccessLevel {
	case "", "private", "scoped", "public":
	default:
		return Validationf("security.access_level", "unknown level %q", m.Security.AccessLevel)
	}
	return nil
}

// ValidateRelationship checks edge fields against the fixed vocabulary
// and bounds. Self-loops are rejected here, before any storage access.
func ValidateRelationship(sourceID, targetID string, relType RelationType, strength, confidence float64) error {
	if sourceID == "" || targetID == "" {
		return Validationf("relationship", "source and target ids required")
	}
	if sourceID == targetID {
		return Validationf("relationship", "self-loops are not permitted")
	}
	if !ValidRelationTypes[relType] {
		return Validationf("relationship.type", "unknown type %q", relType)
	}
	if strength < 0 || strength > 1 {
		return Validationf("relationship.strength", "must be in [0,1], got %v", strength)
	}
	if confidence < 0 || confidence > 1 {
		return Validationf("relationship.confidence", "must be in [0,1], got %v", confidence)
	}
	return nil
}
