package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

func TestSearchFilterOnly(t *testing.T) {
	e := testEngine(t)

	a := newMemory("user prefers tabs")
	a.Scope.EntityID = "user-1"
	create(t, e, a)
	b := newMemory("team standardized on spaces")
	b.Scope.EntityID = "team-9"
	b.Scope.EntityKind = "team"
	create(t, e, b)

	page, err := e.Search(context.Background(), Query{EntityID: "user-1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Memory.ID != a.ID {
		t.Fatalf("results = %d, want only user-1's memory", len(page.Results))
	}
	if page.Partial {
		t.Error("unexpected partial flag")
	}
	if len(page.SearchedTiers) != len(model.AllTiers) {
		t.Errorf("searched tiers = %v, want all", page.SearchedTiers)
	}
}

func TestSearchTextRanking(t *testing.T) {
	e := testEngine(t)

	exact := create(t, e, newMemory("database migrations run at startup"))
	partial := create(t, e, newMemory("migrations are versioned"))
	create(t, e, newMemory("completely unrelated topic about cooking"))

	page, err := e.Search(context.Background(), Query{Text: "database migrations"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Results) < 2 {
		t.Fatalf("results = %d, want at least 2", len(page.Results))
	}
	if page.Results[0].Memory.ID != exact.ID {
		t.Errorf("top hit = %q, want the exact substring match", page.Results[0].Memory.Content)
	}
	if page.Results[0].Score < page.Results[1].Score {
		t.Error("results not sorted by score")
	}
	_ = partial
}

func TestSearchSemanticMerge(t *testing.T) {
	e := testEngine(t)
	e.SetEmbedder(&stubEmbedder{})

	aligned := create(t, e, newMemory("alpha alpha notes"))
	create(t, e, newMemory("gamma gamma notes"))

	page, err := e.Search(context.Background(), Query{Text: "alpha"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Results) == 0 {
		t.Fatal("no results")
	}
	top := page.Results[0]
	if top.Memory.ID != aligned.ID {
		t.Errorf("top hit = %q, want alpha memory", top.Memory.Content)
	}
	if top.SemanticScore <= 0 {
		t.Errorf("semantic score = %v, want > 0", top.SemanticScore)
	}
	if top.TextScore <= 0 {
		t.Errorf("text score = %v, want > 0", top.TextScore)
	}
}

func TestSearchSemanticOnlyDefaultsToFastTiers(t *testing.T) {
	e := testEngine(t)
	e.SetEmbedder(&stubEmbedder{})
	create(t, e, newMemory("alpha"))

	page, err := e.Search(context.Background(), Query{Text: "alpha", SemanticOnly: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []model.Tier{model.TierHot, model.TierWarm}
	if len(page.SearchedTiers) != len(want) {
		t.Fatalf("searched tiers = %v, want %v", page.SearchedTiers, want)
	}
	for i, tier := range want {
		if page.SearchedTiers[i] != tier {
			t.Errorf("searched tiers = %v, want %v", page.SearchedTiers, want)
		}
	}
}

func TestSearchDegradesWithoutEmbedder(t *testing.T) {
	e := testEngine(t)
	m := create(t, e, newMemory("graceful degradation keeps text search alive"))

	// A failing oracle must not fail the query.
	e.SetEmbedder(&stubEmbedder{fail: true})
	page, err := e.Search(context.Background(), Query{Text: "graceful degradation"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Memory.ID != m.ID {
		t.Fatalf("results = %d, want the text match", len(page.Results))
	}
	if page.Results[0].SemanticScore != 0 {
		t.Errorf("semantic score = %v, want 0 when degraded", page.Results[0].SemanticScore)
	}
}

func TestSearchPagination(t *testing.T) {
	e := testEngine(t)

	for i := 0; i < 5; i++ {
		create(t, e, newMemory("pagination test entry"))
	}

	first, err := e.Search(context.Background(), Query{Text: "pagination test", Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(first.Results) != 2 {
		t.Fatalf("page 1 = %d results, want 2", len(first.Results))
	}
	if !first.HasNext {
		t.Error("has_next = false, want true")
	}
	if first.Total != 5 {
		t.Errorf("total = %d, want 5", first.Total)
	}

	last, err := e.Search(context.Background(), Query{Text: "pagination test", Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(last.Results) != 1 {
		t.Errorf("last page = %d results, want 1", len(last.Results))
	}
	if last.HasNext {
		t.Error("has_next = true on the last page")
	}
}

// slowEmbedder stalls like a wedged HTTP oracle and ignores cancellation.
type slowEmbedder struct {
	stubEmbedder
}

func (s *slowEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	time.Sleep(200 * time.Millisecond)
	return s.stubEmbedder.Embed(ctx, text)
}

func TestSearchSlowOracleStaysWithinBudget(t *testing.T) {
	e := testEngine(t)
	m := create(t, e, newMemory("budgeted text match"))
	e.SetEmbedder(&slowEmbedder{})

	start := time.Now()
	page, err := e.Search(context.Background(), Query{Text: "budgeted text", Budget: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("search took %v, want well under the oracle's 200ms stall", elapsed)
	}
	if !page.Partial {
		t.Error("partial = false, want true when semantic scoring was skipped")
	}
	// The filter/text-matched subset is still ranked and returned.
	if len(page.Results) != 1 || page.Results[0].Memory.ID != m.ID {
		t.Fatalf("results = %d, want the text match", len(page.Results))
	}
	if page.Results[0].SemanticScore != 0 {
		t.Errorf("semantic score = %v, want 0 when degraded", page.Results[0].SemanticScore)
	}
	if len(page.SearchedTiers) == 0 {
		t.Error("no tiers searched despite remaining budget")
	}
}

func TestSearchBudgetPartialCoverage(t *testing.T) {
	e := testEngine(t)
	create(t, e, newMemory("hot data"))

	page, err := e.Search(context.Background(), Query{Text: "data", Budget: time.Nanosecond})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !page.Partial {
		t.Error("partial = false, want true for an exhausted budget")
	}
	if len(page.SearchedTiers) == len(model.AllTiers) {
		t.Error("all tiers searched despite exhausted budget")
	}
}

func TestSearchIncludeRelated(t *testing.T) {
	e := testEngine(t)

	a := create(t, e, newMemory("memory with edges"))
	b := create(t, e, newMemory("related memory"))
	if err := e.Link(&model.Relationship{SourceID: a.ID, TargetID: b.ID, Type: model.RelElaboration}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	page, err := e.Search(context.Background(), Query{Text: "memory with edges", IncludeRelated: true, Limit: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(page.Results))
	}
	if len(page.Results[0].Related) != 1 {
		t.Errorf("related = %d, want 1", len(page.Results[0].Related))
	}
}

func TestSearchExcludesDeleted(t *testing.T) {
	e := testEngine(t)

	m := create(t, e, newMemory("soon to be gone"))
	if err := e.DeleteMemory(m.ID, "test", "", false); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}

	page, err := e.Search(context.Background(), Query{Text: "soon to be gone"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Results) != 0 {
		t.Errorf("deleted memory surfaced in search")
	}
}
