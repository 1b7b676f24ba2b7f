package engine

import (
	"testing"
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

func TestCollectStats(t *testing.T) {
	e := testEngine(t)

	a := newMemory("one")
	a.Importance = model.ImportanceHigh
	create(t, e, a)
	b := newMemory("two")
	b.Scope.Type = model.ScopePersona
	create(t, e, b)
	c := create(t, e, newMemory("three"))
	if err := e.DeleteMemory(c.ID, "test", "", false); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}

	stats, err := e.CollectStats()
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2 (deleted excluded)", stats.Total)
	}
	if stats.ByImportance["high"] != 1 || stats.ByImportance["medium"] != 1 {
		t.Errorf("by importance = %v", stats.ByImportance)
	}
	if stats.ByScopeType["persona"] != 1 {
		t.Errorf("by scope = %v", stats.ByScopeType)
	}
	if stats.ByStage["deleted"] != 0 {
		t.Errorf("deleted counted in stats: %v", stats.ByStage)
	}
}

func TestTopAccessed(t *testing.T) {
	e := testEngine(t)

	hotOne := create(t, e, newMemory("read often"))
	create(t, e, newMemory("read never"))

	for i := 0; i < 3; i++ {
		if _, err := e.GetMemory(hotOne.ID); err != nil {
			t.Fatalf("GetMemory: %v", err)
		}
	}

	entries, err := e.TopAccessed(time.Hour, 5)
	if err != nil {
		t.Fatalf("TopAccessed: %v", err)
	}
	if len(entries) == 0 || entries[0].MemoryID != hotOne.ID {
		t.Fatalf("entries = %+v, want %s first", entries, hotOne.ID)
	}
	if entries[0].AccessCount != 3 {
		t.Errorf("access count = %d, want 3", entries[0].AccessCount)
	}
}

func TestHealthFlagsExpiredBacklog(t *testing.T) {
	e := testEngine(t)

	m := create(t, e, newMemory("expired but unswept"))
	expire(t, e, m.ID)

	issues, err := e.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}

	found := false
	for _, issue := range issues {
		if issue.Code == "expired_backlog" {
			found = true
			if issue.Remediation == "" {
				t.Error("issue missing remediation")
			}
		}
	}
	if !found {
		t.Errorf("issues = %+v, want expired_backlog", issues)
	}
}

func TestHealthCleanStore(t *testing.T) {
	e := testEngine(t)
	create(t, e, newMemory("healthy"))

	issues, err := e.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %+v, want none", issues)
	}
}
