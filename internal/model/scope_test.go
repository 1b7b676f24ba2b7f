package model

import (
	"testing"
	"time"
)

func TestNormalizeScope(t *testing.T) {
	s, err := NormalizeScope(Scope{
		Type:       " Long_Term ",
		EntityID:   " user-1 ",
		EntityKind: "USER",
	})
	if err != nil {
		t.Fatalf("NormalizeScope: %v", err)
	}
	if s.Type != ScopeLongTerm {
		t.Errorf("type = %q, want %q", s.Type, ScopeLongTerm)
	}
	if s.EntityID != "user-1" {
		t.Errorf("entity id = %q, want user-1", s.EntityID)
	}
	if s.EntityKind != "user" {
		t.Errorf("entity kind = %q, want user", s.EntityKind)
	}
}

func TestNormalizeScopeRejectsUnknowns(t *testing.T) {
	cases := []struct {
		name  string
		scope Scope
	}{
		{"unknown type", Scope{Type: "episodic", EntityID: "u1", EntityKind: "user"}},
		{"missing entity", Scope{Type: ScopeLongTerm, EntityKind: "user"}},
		{"unknown kind", Scope{Type: ScopeLongTerm, EntityID: "u1", EntityKind: "robot"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NormalizeScope(tc.scope); !IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestValidateMemory(t *testing.T) {
	now := time.Now()
	valid := func() *Memory {
		return &Memory{
			Scope:      Scope{Type: ScopeShortTerm, EntityID: "u1", EntityKind: "user"},
			Content:    "remember this",
			Confidence: 0.9,
			Importance: ImportanceMedium,
		}
	}

	if err := ValidateMemory(valid(), now); err != nil {
		t.Fatalf("valid memory rejected: %v", err)
	}

	past := now.Add(-time.Hour)
	cases := []struct {
		name   string
		mutate func(*Memory)
	}{
		{"empty content", func(m *Memory) { m.Content = "   " }},
		{"confidence out of range", func(m *Memory) { m.Confidence = 1.5 }},
		{"reliability out of range", func(m *Memory) { m.Source.Reliability = -0.1 }},
		{"unknown importance", func(m *Memory) { m.Importance = "urgent" }},
		{"expiry in the past", func(m *Memory) { m.ExpiresAt = &past }},
		{"unknown access level", func(m *Memory) { m.Security.AccessLevel = "secret" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid()
			tc.mutate(m)
			if err := ValidateMemory(m, now); !IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestValidateRelationship(t *testing.T) {
	if err := ValidateRelationship("a", "b", RelCausal, 0.8, 0.9); err != nil {
		t.Fatalf("valid relationship rejected: %v", err)
	}

	cases := []struct {
		name               string
		source, target     string
		relType            RelationType
		strength, confid   float64
	}{
		{"self loop", "a", "a", RelCausal, 0.5, 0.5},
		{"unknown type", "a", "b", "friendship", 0.5, 0.5},
		{"strength out of range", "a", "b", RelCausal, 1.2, 0.5},
		{"confidence out of range", "a", "b", RelCausal, 0.5, -0.2},
		{"missing endpoint", "", "b", RelCausal, 0.5, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRelationship(tc.source, tc.target, tc.relType, tc.strength, tc.confid)
			if !IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestImportanceRank(t *testing.T) {
	order := []Importance{ImportanceEphemeral, ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should rank above %s", order[i], order[i-1])
		}
	}
	if Importance("urgent").Rank() != -1 {
		t.Error("unknown importance should rank -1")
	}
}

func TestQualityScore(t *testing.T) {
	m := &Memory{Confidence: 1, Source: Source{Reliability: 1}, AccessFrequency: 1}
	if q := QualityScore(m); q != 1 {
		t.Errorf("quality = %v, want 1", q)
	}

	m = &Memory{Confidence: 0.5, Source: Source{Reliability: 0.5}}
	want := 0.5*0.5 + 0.3*0.5
	if q := QualityScore(m); q != want {
		t.Errorf("quality = %v, want %v", q, want)
	}

	// Frequency is capped at 1 before weighting.
	m = &Memory{AccessFrequency: 5}
	if q := QualityScore(m); q != 0.2 {
		t.Errorf("quality = %v, want 0.2", q)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	m := &Memory{}
	if m.Expired(now) {
		t.Error("memory without expiry should never expire")
	}

	past := now.Add(-time.Minute)
	m.ExpiresAt = &past
	if !m.Expired(now) {
		t.Error("memory past expiry should be expired")
	}
}
