// Package model defines the core memory data types shared by the store,
// engine, and server layers.
package model

import "time"

// ScopeType classifies what kind of context a memory belongs to.
type ScopeType string

const (
	ScopeShortTerm       ScopeType = "short_term"
	ScopeLongTerm        ScopeType = "long_term"
	ScopePersona         ScopeType = "persona"
	ScopeTeam            ScopeType = "team"
	ScopeDecisionContext ScopeType = "decision_context"
	ScopeSystemState     ScopeType = "system_state"
	ScopeFeedback        ScopeType = "feedback"
	ScopeLearnedPattern  ScopeType = "learned_pattern"
)

// ValidScopeTypes enumerates the allowed scope types.
var ValidScopeTypes = map[ScopeType]bool{
	ScopeShortTerm:       true,
	ScopeLongTerm:        true,
	ScopePersona:         true,
	ScopeTeam:            true,
	ScopeDecisionContext: true,
	ScopeSystemState:     true,
	ScopeFeedback:        true,
	ScopeLearnedPattern:  true,
}

// ValidEntityKinds enumerates the allowed owning-entity kinds.
var ValidEntityKinds = map[string]bool{
	"user":    true,
	"agent":   true,
	"team":    true,
	"project": true,
	"system":  true,
}

// Importance is a strictly ordered level. Compare with Rank(), never
// lexically.
type Importance string

const (
	ImportanceEphemeral Importance = "ephemeral"
	ImportanceLow       Importance = "low"
	ImportanceMedium    Importance = "medium"
	ImportanceHigh      Importance = "high"
	ImportanceCritical  Importance = "critical"
)

var importanceRanks = map[Importance]int{
	ImportanceEphemeral: 0,
	ImportanceLow:       1,
	ImportanceMedium:    2,
	ImportanceHigh:      3,
	ImportanceCritical:  4,
}

// Rank returns the ordinal position of the level, or -1 if unknown.
func (i Importance) Rank() int {
	r, ok := importanceRanks[i]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether i is a known importance level.
func (i Importance) Valid() bool { return i.Rank() >= 0 }

// Stage is a memory's lifecycle state.
type Stage string

const (
	StageActive   Stage = "active"
	StagePromoted Stage = "promoted"
	StageDemoted  Stage = "demoted"
	StageArchived Stage = "archived"
	StageDeleted  Stage = "deleted" // terminal
)

// Tier is a storage class derived from importance and access patterns.
// It is orthogonal to Stage.
type Tier string

const (
	TierHot    Tier = "hot"
	TierWarm   Tier = "warm"
	TierCold   Tier = "cold"
	TierFrozen Tier = "frozen"
)

// AllTiers in scan order, cheapest first.
var AllTiers = []Tier{TierHot, TierWarm, TierCold, TierFrozen}

// RelationType classifies a directed edge between two memories.
type RelationType string

const (
	RelElaboration   RelationType = "elaboration"
	RelCausal        RelationType = "causal"
	RelContradiction RelationType = "contradiction"
	RelTemporal      RelationType = "temporal_sequence"
	RelSimilarity    RelationType = "similarity"
	RelDerivation    RelationType = "derivation"
	RelReference     RelationType = "reference"
)

// ValidRelationTypes enumerates the fixed relationship vocabulary.
var ValidRelationTypes = map[RelationType]bool{
	RelElaboration:   true,
	RelCausal:        true,
	RelContradiction: true,
	RelTemporal:      true,
	RelSimilarity:    true,
	RelDerivation:    true,
	RelReference:     true,
}

// Scope is the (type, entity, context, project) tuple a memory belongs to.
type Scope struct {
	Type       ScopeType `json:"type"`
	EntityID   string    `json:"entity_id"`
	EntityKind string    `json:"entity_kind"`
	ContextID  string    `json:"context_id,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
}

// Source describes where a memory came from and how much to trust it.
type Source struct {
	Descriptor  string  `json:"descriptor,omitempty"`
	Reliability float64 `json:"reliability"`
}

// Grant gives a (scope-type, scope-id) pair permission to see a memory.
type Grant struct {
	ScopeType   string   `json:"scope_type"`
	ScopeID     string   `json:"scope_id"`
	Permissions []string `json:"permissions"`
}

// SecurityContext gates who may read or mutate a memory.
type SecurityContext struct {
	AccessLevel string   `json:"access_level"` // private, scoped, public
	Grants      []Grant  `json:"grants,omitempty"`
	PrivacyTags []string `json:"privacy_tags,omitempty"`
	Audited     bool     `json:"audited,omitempty"`
}

// Transition is one recorded lifecycle stage change.
type Transition struct {
	MemoryID  string    `json:"memory_id"`
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor"`
	Automatic bool      `json:"automatic"`
	At        time.Time `json:"at"`
}

// Memory is the atomic stored unit.
type Memory struct {
	ID    string `json:"id"`
	Scope Scope  `json:"scope"`

	Content     string         `json:"content"`
	ContentType string         `json:"content_type"`
	Structured  map[string]any `json:"structured,omitempty"`
	Language    string         `json:"language,omitempty"`

	Source     Source     `json:"source"`
	Confidence float64    `json:"confidence"`
	Importance Importance `json:"importance"`
	Tags       []string   `json:"tags,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Quality    float64    `json:"quality"`

	AccessCount       int     `json:"access_count"`
	AccessFrequency   float64 `json:"access_frequency"`
	ModificationCount int     `json:"modification_count"`

	Security SecurityContext `json:"security"`

	Stage      Stage  `json:"stage"`
	Tier       Tier   `json:"tier"`
	Version    int    `json:"version"`
	Checksum   string `json:"checksum"`
	Compressed bool   `json:"compressed,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	AccessedAt time.Time  `json:"accessed_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the memory's expiry has passed at the given time.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// QualityScore derives a quality value in [0,1] from trust and usage
// signals. Deterministic given the memory's current state.
func QualityScore(m *Memory) float64 {
	freq := m.AccessFrequency
	if freq > 1 {
		freq = 1
	}
	q := 0.5*m.Confidence + 0.3*m.Source.Reliability + 0.2*freq
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// Relationship is a typed, weighted, directed edge between two memories.
type Relationship struct {
	ID         string       `json:"id"`
	SourceID   string       `json:"source_id"`
	TargetID   string       `json:"target_id"`
	Type       RelationType `json:"type"`
	Strength   float64      `json:"strength"`
	Confidence float64      `json:"confidence"`
	Context    string       `json:"context,omitempty"`
	CreatedBy  string       `json:"created_by"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Cluster is a named group of memories with a coherence score.
type Cluster struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // topical, temporal, causal
	Coherence float64   `json:"coherence"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidClusterTypes enumerates the allowed cluster types.
var ValidClusterTypes = map[string]bool{
	"topical":  true,
	"temporal": true,
	"causal":   true,
}
