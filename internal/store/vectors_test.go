package store

import (
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	db := testDB(t)
	a, _ := twoMemories(t, db)

	vec := []float64{0.1, -0.5, math.Pi, 0}
	if err := db.SaveVector(a.ID, vec, "tfidf"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	got, err := db.GetVector(a.ID)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if got == nil {
		t.Fatal("vector missing")
	}
	if got.Model != "tfidf" || got.Dimensions != 4 {
		t.Errorf("record = %+v", got)
	}
	for i := range vec {
		if got.Embedding[i] != vec[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, got.Embedding[i], vec[i])
		}
	}

	// Saving again replaces.
	if err := db.SaveVector(a.ID, []float64{1, 2}, "ollama:nomic"); err != nil {
		t.Fatalf("SaveVector replace: %v", err)
	}
	got, err = db.GetVector(a.ID)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if got.Dimensions != 2 || got.Model != "ollama:nomic" {
		t.Errorf("replace failed: %+v", got)
	}
}

func TestGetVectorMissing(t *testing.T) {
	db := testDB(t)
	got, err := db.GetVector("nope")
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestMissingVectorIDs(t *testing.T) {
	db := testDB(t)
	a, b := twoMemories(t, db)

	if err := db.SaveVector(a.ID, []float64{1}, "tfidf"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	missing, err := db.MissingVectorIDs("tfidf")
	if err != nil {
		t.Fatalf("MissingVectorIDs: %v", err)
	}
	if len(missing) != 1 || missing[0] != b.ID {
		t.Errorf("missing = %v, want [%s]", missing, b.ID)
	}

	// A different model sees both as unembedded.
	missing, err = db.MissingVectorIDs("ollama:nomic")
	if err != nil {
		t.Fatalf("MissingVectorIDs: %v", err)
	}
	if len(missing) != 2 {
		t.Errorf("missing for other model = %d, want 2", len(missing))
	}
}

func TestVectorsFor(t *testing.T) {
	db := testDB(t)
	a, b := twoMemories(t, db)

	if err := db.SaveVector(a.ID, []float64{1, 0}, "tfidf"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	vecs, err := db.VectorsFor([]string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("VectorsFor: %v", err)
	}
	if len(vecs) != 1 {
		t.Errorf("vecs = %d entries, want 1", len(vecs))
	}
	if _, ok := vecs[a.ID]; !ok {
		t.Error("vector for a missing")
	}
}
