package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store"
)

// Link creates a typed, directed relationship between two memories.
// Idempotent: linking the same (source, target, type) triple twice
// returns the existing edge.
func (e *Engine) Link(r *model.Relationship) error {
	if err := model.ValidateRelationship(r.SourceID, r.TargetID, r.Type, r.Strength, r.Confidence); err != nil {
		return err
	}
	if r.CreatedBy == "" {
		r.CreatedBy = "api"
	}

	// Lock both endpoints so a concurrent delete of either side
	// serializes against the link. Stripes are taken in index order, not
	// id order: two id pairs can hash onto the same two stripes in
	// opposite id order.
	s1, s2 := e.stripeFor(r.SourceID), e.stripeFor(r.TargetID)
	if s2 < s1 {
		s1, s2 = s2, s1
	}
	e.locks[s1].Lock()
	defer e.locks[s1].Unlock()
	if s2 != s1 {
		e.locks[s2].Lock()
		defer e.locks[s2].Unlock()
	}

	_, err := e.DB.InsertRelationship(r)
	return err
}

// Unlink removes relationships between an ordered (source, target) pair.
// An empty type removes every edge for the pair. Returns how many edges
// were removed.
func (e *Engine) Unlink(sourceID, targetID string, relType model.RelationType) (int, error) {
	if relType != "" && !model.ValidRelationTypes[relType] {
		return 0, model.Validationf("type", "unknown relationship type %q", relType)
	}
	return e.DB.DeleteRelationships(sourceID, targetID, relType)
}

// Neighbors returns the edges incident to a memory, filtered by direction
// and relationship types. The memory must exist.
func (e *Engine) Neighbors(id string, types []model.RelationType, dir store.Direction) ([]model.Relationship, error) {
	if _, err := e.DB.PeekMemory(id); err != nil {
		return nil, err
	}
	return e.DB.Neighbors(id, types, dir)
}

// SimilarResult pairs a memory with its similarity to the reference.
type SimilarResult struct {
	Memory     model.Memory `json:"memory"`
	Similarity float64      `json:"similarity"`
}

// Similar returns the memories most similar to the given one by cosine
// similarity over stored embeddings, above the threshold, best first.
// The reference memory itself is excluded.
func (e *Engine) Similar(id string, threshold float64, limit int) ([]SimilarResult, error) {
	if limit <= 0 {
		limit = 10
	}

	ref, err := e.DB.GetVector(id)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		if _, err := e.DB.PeekMemory(id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("memory %s has no embedding: %w", id, model.ErrDependencyUnavailable)
	}

	all, err := e.DB.AllVectors()
	if err != nil {
		return nil, err
	}

	type scored struct {
		id    string
		score float64
	}
	var hits []scored
	for _, v := range all {
		if v.MemoryID == id || v.Model != ref.Model {
			continue
		}
		s := CosineSimilarity(ref.Embedding, v.Embedding)
		if s >= threshold {
			hits = append(hits, scored{v.MemoryID, s})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	var out []SimilarResult
	for _, h := range hits {
		m, err := e.DB.PeekMemory(h.id)
		if err != nil {
			continue // deleted since the vector scan
		}
		out = append(out, SimilarResult{Memory: *m, Similarity: h.score})
	}
	return out, nil
}

// AutoLink materializes similarity edges for a memory: every stored
// memory whose embedding clears the configured threshold gets a
// similarity relationship. Re-running is safe; existing edges are
// reused. Returns the number of edges that now exist.
func (e *Engine) AutoLink(ctx context.Context, id string) (int, error) {
	threshold := e.Config.Embedding.AutoLinkThreshold
	if threshold <= 0 {
		threshold = 0.85
	}

	similar, err := e.Similar(id, threshold, 50)
	if err != nil {
		return 0, err
	}

	linked := 0
	for _, s := range similar {
		if ctx.Err() != nil {
			return linked, ctx.Err()
		}
		err := e.Link(&model.Relationship{
			SourceID:   id,
			TargetID:   s.Memory.ID,
			Type:       model.RelSimilarity,
			Strength:   s.Similarity,
			Confidence: s.Similarity,
			CreatedBy:  "autolink",
			CreatedAt:  time.Now(),
		})
		if err != nil {
			log.Printf("autolink %s -> %s: %v", id, s.Memory.ID, err)
			continue
		}
		linked++
	}
	return linked, nil
}
