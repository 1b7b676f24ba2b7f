package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/store"
)

func TestTokenize(t *testing.T) {
	tokens := tokenize("Use WAL-mode, not rollback journals! x")
	want := []string{"use", "wal-mode", "not", "rollback", "journals"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1, 0}, []float64{1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("cosine = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTFIDFEmbedder(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e := New(db, config.Default())
	create(t, e, newMemory("sqlite uses write ahead logging for concurrency"))
	create(t, e, newMemory("postgres uses multiversion concurrency control"))
	create(t, e, newMemory("cooking pasta requires salted water"))

	emb, err := NewTFIDFEmbedder(db, 128)
	if err != nil {
		t.Fatalf("NewTFIDFEmbedder: %v", err)
	}
	if emb.Dimensions() == 0 {
		t.Fatal("zero dimensions")
	}

	v1, err := emb.Embed(context.Background(), "sqlite concurrency logging")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, err := emb.Embed(context.Background(), "database concurrency")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v3, err := emb.Embed(context.Background(), "salted pasta water")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	related := CosineSimilarity(v1, v2)
	unrelated := CosineSimilarity(v1, v3)
	if related <= unrelated {
		t.Errorf("related = %v should exceed unrelated = %v", related, unrelated)
	}

	// Embedding is deterministic.
	again, err := emb.Embed(context.Background(), "sqlite concurrency logging")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range v1 {
		if v1[i] != again[i] {
			t.Fatalf("embedding not deterministic at dim %d", i)
		}
	}
}

func TestTFIDFEmptyText(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	emb, err := NewTFIDFEmbedder(db, 16)
	if err != nil {
		t.Fatalf("NewTFIDFEmbedder: %v", err)
	}
	vec, err := emb.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}
