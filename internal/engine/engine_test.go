package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, config.Default())
}

// stubEmbedder maps keyword counts onto a fixed 3-dimensional space so
// tests get deterministic similarities.
type stubEmbedder struct {
	fail bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if s.fail {
		return nil, errors.New("embedder down")
	}
	lower := strings.ToLower(text)
	vec := make([]float64, 3)
	for i, word := range []string{"alpha", "beta", "gamma"} {
		vec[i] = float64(strings.Count(lower, word))
	}
	return vec, nil
}

func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 3 }

func newMemory(content string) *model.Memory {
	return &model.Memory{
		Scope: model.Scope{
			Type:       model.ScopeLongTerm,
			EntityID:   "user-1",
			EntityKind: "user",
		},
		Content:    content,
		Confidence: 0.9,
		Source:     model.Source{Reliability: 0.8},
		Importance: model.ImportanceMedium,
	}
}

// create persists a memory through the engine and, when an embedder is
// set, embeds it synchronously so tests never race the background embed.
func create(t *testing.T, e *Engine, m *model.Memory) *model.Memory {
	t.Helper()
	emb := e.Embedder
	e.Embedder = nil
	if err := e.CreateMemory(context.Background(), m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	e.Embedder = emb
	if emb != nil {
		if err := e.embedContent(context.Background(), m.ID, m.Content); err != nil {
			t.Fatalf("embed: %v", err)
		}
	}
	return m
}

func TestCreateMemoryDefaults(t *testing.T) {
	e := testEngine(t)

	m := create(t, e, newMemory("remember the build flags"))
	if m.Stage != model.StageActive {
		t.Errorf("stage = %s, want active", m.Stage)
	}
	// Fresh medium-importance memory lands hot.
	if m.Tier != model.TierHot {
		t.Errorf("tier = %s, want hot", m.Tier)
	}
	if m.Version != 1 {
		t.Errorf("version = %d, want 1", m.Version)
	}
}

func TestCreateMemoryValidates(t *testing.T) {
	e := testEngine(t)

	m := newMemory("")
	err := e.CreateMemory(context.Background(), m)
	if !model.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestCreateMemoryQuota(t *testing.T) {
	e := testEngine(t)
	e.Config.Lifecycle.MaxPerEntity = 2

	create(t, e, newMemory("one"))
	create(t, e, newMemory("two"))

	err := e.CreateMemory(context.Background(), newMemory("three"))
	if !errors.Is(err, model.ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}

	// Deleting frees quota.
	victims, err := e.DB.SelectMemories(store.MemoryFilter{Limit: 1})
	if err != nil {
		t.Fatalf("SelectMemories: %v", err)
	}
	if err := e.DeleteMemory(victims[0].ID, "test", "quota", false); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if err := e.CreateMemory(context.Background(), newMemory("three")); err != nil {
		t.Errorf("create after delete: %v", err)
	}
}

func TestCreateBatchPartialFailure(t *testing.T) {
	e := testEngine(t)

	batch := []*model.Memory{
		newMemory("good one"),
		newMemory(""), // invalid
		newMemory("good two"),
	}
	res := e.CreateBatch(context.Background(), batch)
	if len(res.Created) != 2 {
		t.Errorf("created = %d, want 2", len(res.Created))
	}
	if len(res.Failed) != 1 || res.Failed[0].Index != 1 {
		t.Errorf("failed = %+v, want index 1", res.Failed)
	}
}

func TestEmbedMissing(t *testing.T) {
	e := testEngine(t)

	create(t, e, newMemory("alpha notes"))
	create(t, e, newMemory("beta notes"))

	e.SetEmbedder(&stubEmbedder{})
	n, err := e.EmbedMissing(context.Background())
	if err != nil {
		t.Fatalf("EmbedMissing: %v", err)
	}
	if n != 2 {
		t.Errorf("embedded = %d, want 2", n)
	}

	// Second run finds nothing to do.
	n, err = e.EmbedMissing(context.Background())
	if err != nil {
		t.Fatalf("EmbedMissing: %v", err)
	}
	if n != 0 {
		t.Errorf("embedded = %d, want 0", n)
	}
}

func TestDeleteMemoryRecomputesCoherence(t *testing.T) {
	e := testEngine(t)
	e.SetEmbedder(&stubEmbedder{})

	a := create(t, e, newMemory("alpha alpha"))
	b := create(t, e, newMemory("alpha alpha again"))
	c := create(t, e, newMemory("gamma gamma"))

	cluster := &model.Cluster{Name: "mix", Type: "topical", MemberIDs: []string{a.ID, b.ID, c.ID}}
	if err := e.CreateCluster(cluster); err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}
	// alpha/alpha/gamma is not fully coherent.
	if cluster.Coherence >= 0.99 {
		t.Fatalf("coherence = %v, want < 1 before delete", cluster.Coherence)
	}

	if err := e.DeleteMemory(c.ID, "test", "", false); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}

	got, err := e.GetCluster(cluster.ID)
	if err != nil {
		t.Fatalf("GetCluster: %v", err)
	}
	// Only the two identical-direction alpha memories remain.
	if got.Coherence < 0.99 {
		t.Errorf("coherence = %v, want ~1 after removing the outlier", got.Coherence)
	}
}

func TestUpdateMemoryPreservesLifecycleFields(t *testing.T) {
	e := testEngine(t)

	m := create(t, e, newMemory("initial"))
	if _, err := e.Promote(m.ID, "", "test", "important"); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	fresh, err := e.DB.PeekMemory(m.ID)
	if err != nil {
		t.Fatalf("PeekMemory: %v", err)
	}
	fresh.Content = "edited"
	fresh.Importance = model.ImportanceEphemeral // callers cannot lower this here
	if err := e.UpdateMemory(context.Background(), fresh, fresh.Version); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}

	got, err := e.DB.PeekMemory(m.ID)
	if err != nil {
		t.Fatalf("PeekMemory: %v", err)
	}
	if got.Content != "edited" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Importance != model.ImportanceHigh {
		t.Errorf("importance = %s, want high (lifecycle-managed)", got.Importance)
	}
	if got.Stage != model.StagePromoted {
		t.Errorf("stage = %s, want promoted", got.Stage)
	}
}

func TestSweepTimerStops(t *testing.T) {
	e := testEngine(t)
	e.Config.Lifecycle.SweepInterval = 10 * time.Millisecond
	e.StartSweepTimer()
	e.Stop() // must not hang or panic
}
