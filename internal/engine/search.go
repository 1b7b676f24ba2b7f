package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store"
)

// Query describes one federated search across the storage tiers.
type Query struct {
	// Text is matched both fuzzily against content and semantically
	// against embeddings when an embedder is available.
	Text string `json:"text,omitempty"`
	// SemanticOnly skips the fuzzy text score and ranks purely by
	// embedding similarity.
	SemanticOnly bool `json:"semantic_only,omitempty"`

	ScopeType      model.ScopeType    `json:"scope_type,omitempty"`
	EntityID       string             `json:"entity_id,omitempty"`
	ContextID      string             `json:"context_id,omitempty"`
	ProjectID      string             `json:"project_id,omitempty"`
	ContentType    string             `json:"content_type,omitempty"`
	Importance     []model.Importance `json:"importance,omitempty"`
	Tags           []string           `json:"tags,omitempty"`
	MinConfidence  float64            `json:"min_confidence,omitempty"`
	CreatedAfter   *time.Time         `json:"created_after,omitempty"`
	CreatedBefore  *time.Time         `json:"created_before,omitempty"`
	AccessedAfter  *time.Time         `json:"accessed_after,omitempty"`
	AccessedBefore *time.Time         `json:"accessed_before,omitempty"`

	// Tiers restricts the scan. Empty means the planner chooses: all
	// tiers normally, hot and warm only for unfiltered semantic queries.
	Tiers []model.Tier `json:"tiers,omitempty"`

	// MinScore drops results scoring below it.
	MinScore float64 `json:"min_score,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Budget bounds the whole search. The planner checks it between tier
	// scans and returns partial results rather than overrunning.
	Budget time.Duration `json:"budget,omitempty"`

	// IncludeRelated hydrates each result's relationships.
	IncludeRelated bool `json:"include_related,omitempty"`
}

func (q *Query) hasFilters() bool {
	return q.ScopeType != "" || q.EntityID != "" || q.ContextID != "" || q.ProjectID != "" ||
		q.ContentType != "" || len(q.Importance) > 0 || len(q.Tags) > 0 ||
		q.MinConfidence > 0 || q.CreatedAfter != nil || q.CreatedBefore != nil ||
		q.AccessedAfter != nil || q.AccessedBefore != nil
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Memory        model.Memory         `json:"memory"`
	Score         float64              `json:"score"`
	TextScore     float64              `json:"text_score,omitempty"`
	SemanticScore float64              `json:"semantic_score,omitempty"`
	Related       []model.Relationship `json:"related,omitempty"`
}

// Page is one page of search results plus coverage metadata.
type Page struct {
	Results       []SearchResult `json:"results"`
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	HasNext       bool           `json:"has_next"`
	SearchedTiers []model.Tier   `json:"searched_tiers"`
	// Partial is set when the budget expired before every planned tier
	// was scanned. Results cover only SearchedTiers.
	Partial bool `json:"partial,omitempty"`
}

// Search runs a federated query across storage tiers, cheapest first.
// Ranking blends fuzzy text match and embedding similarity; a missing or
// failing embedder degrades the query to filter plus text scoring rather
// than failing it.
func (e *Engine) Search(ctx context.Context, q Query) (*Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = e.Config.Search.DefaultLimit
	}
	budget := q.Budget
	if budget <= 0 {
		budget = e.Config.Search.DefaultBudget
	}
	deadline := time.Now().Add(budget)

	tiers := q.Tiers
	if len(tiers) == 0 {
		tiers = model.AllTiers
		// Pure similarity queries stay on the fast tiers unless the
		// caller widens the scan.
		if q.SemanticOnly && !q.hasFilters() {
			tiers = []model.Tier{model.TierHot, model.TierWarm}
		}
	}

	page := &Page{Limit: limit, Offset: q.Offset}

	var queryVec []float64
	if q.Text != "" && e.Embedder != nil {
		// The oracle gets half the budget. A slow or wedged embedder
		// degrades the query to filter plus text scoring with the
		// remaining time; it never consumes the whole scan window.
		embedCtx, cancel := context.WithDeadline(ctx, time.Now().Add(budget/2))
		vec, err := embedWithin(embedCtx, e.Embedder, q.Text)
		cancel()
		switch {
		case err == nil:
			queryVec = vec
		case errors.Is(err, context.DeadlineExceeded):
			page.Partial = true
			log.Printf("search: embedder exceeded budget, degrading to filter match")
		default:
			log.Printf("search: embedder unavailable, degrading to filter match: %v", err)
		}
	}

	var hits []SearchResult

	for _, tier := range tiers {
		if time.Now().After(deadline) || ctx.Err() != nil {
			page.Partial = true
			break
		}

		candidates, err := e.DB.SelectMemories(store.MemoryFilter{
			ScopeType:      q.ScopeType,
			EntityID:       q.EntityID,
			ContextID:      q.ContextID,
			ProjectID:      q.ProjectID,
			ContentType:    q.ContentType,
			Importance:     q.Importance,
			Tags:           q.Tags,
			MinConfidence:  q.MinConfidence,
			CreatedAfter:   q.CreatedAfter,
			CreatedBefore:  q.CreatedBefore,
			AccessedAfter:  q.AccessedAfter,
			AccessedBefore: q.AccessedBefore,
			Tier:           tier,
			Limit:          e.Config.Search.MaxCandidates,
		})
		if err != nil {
			return nil, err
		}
		page.SearchedTiers = append(page.SearchedTiers, tier)

		tierHits, err := e.scoreCandidates(candidates, q, queryVec)
		if err != nil {
			return nil, err
		}
		hits = append(hits, tierHits...)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Memory.AccessedAt.After(hits[j].Memory.AccessedAt)
	})

	page.Total = len(hits)
	if q.Offset < len(hits) {
		hits = hits[q.Offset:]
	} else {
		hits = nil
	}
	if len(hits) > limit {
		hits = hits[:limit]
		page.HasNext = true
	}

	if q.IncludeRelated {
		for i := range hits {
			rels, err := e.DB.Neighbors(hits[i].Memory.ID, nil, store.DirBoth)
			if err != nil {
				log.Printf("search: hydrate relationships for %s: %v", hits[i].Memory.ID, err)
				continue
			}
			hits[i].Related = rels
		}
	}

	page.Results = hits
	return page, nil
}

// embedWithin runs Embed but abandons the call once the context expires,
// so an oracle that ignores cancellation cannot stall the scan.
func embedWithin(ctx context.Context, emb Embedder, text string) ([]float64, error) {
	type result struct {
		vec []float64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vec, err := emb.Embed(ctx, text)
		ch <- result{vec, err}
	}()
	select {
	case r := <-ch:
		return r.vec, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// scoreCandidates ranks one tier's candidates against the query.
func (e *Engine) scoreCandidates(candidates []model.Memory, q Query, queryVec []float64) ([]SearchResult, error) {
	if q.Text == "" {
		// Filter-only query: rank by quality so trusted memories surface
		// first.
		out := make([]SearchResult, 0, len(candidates))
		for _, m := range candidates {
			if m.Quality < q.MinScore {
				continue
			}
			out = append(out, SearchResult{Memory: m, Score: m.Quality})
		}
		return out, nil
	}

	var vecs map[string][]float64
	if queryVec != nil {
		ids := make([]string, len(candidates))
		for i, m := range candidates {
			ids[i] = m.ID
		}
		var err error
		vecs, err = e.DB.VectorsFor(ids)
		if err != nil {
			return nil, err
		}
	}

	semWeight := e.Config.Search.SemanticWeight
	textWeight := e.Config.Search.TextWeight
	if semWeight+textWeight == 0 {
		semWeight, textWeight = 0.6, 0.4
	}

	var out []SearchResult
	for _, m := range candidates {
		var textScore, semScore float64
		if !q.SemanticOnly {
			textScore = textSimilarity(q.Text, m.Content)
		}
		if queryVec != nil {
			if v, ok := vecs[m.ID]; ok && len(v) == len(queryVec) {
				semScore = CosineSimilarity(queryVec, v)
				if semScore < 0 {
					semScore = 0
				}
			}
		}

		var score float64
		switch {
		case q.SemanticOnly:
			score = semScore
		case queryVec == nil:
			score = textScore
		default:
			score = semWeight*semScore + textWeight*textScore
		}

		if score <= 0 || score < q.MinScore {
			continue
		}
		out = append(out, SearchResult{
			Memory:        m,
			Score:         score,
			TextScore:     textScore,
			SemanticScore: semScore,
		})
	}
	return out, nil
}

// textSimilarity scores fuzzy overlap between a query and content using
// character-bigram Jaccard similarity. Tolerant of word order and small
// edits; an exact substring match is boosted to at least 0.9.
func textSimilarity(query, content string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	content = strings.ToLower(content)
	if query == "" || content == "" {
		return 0
	}

	jaccard := bigramJaccard(query, content)
	if strings.Contains(content, query) && jaccard < 0.9 {
		return 0.9
	}
	return jaccard
}

func bigramJaccard(a, b string) float64 {
	setA := bigrams(a)
	setB := bigrams(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for g := range setA {
		if setB[g] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]bool {
	runes := []rune(s)
	out := make(map[string]bool, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])] = true
	}
	return out
}
