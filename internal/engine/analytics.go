package engine

import (
	"fmt"
	"time"

	"github.com/stratumhq/stratum/internal/store"
)

// Stats is an on-demand aggregate over the live memory population. It is
// always computed from the authoritative rows, never from maintained
// counters.
type Stats struct {
	Total        int            `json:"total"`
	ByScopeType  map[string]int `json:"by_scope_type"`
	ByImportance map[string]int `json:"by_importance"`
	ByTier       map[string]int `json:"by_tier"`
	ByStage      map[string]int `json:"by_stage"`
}

// CollectStats computes current distribution statistics.
func (e *Engine) CollectStats() (*Stats, error) {
	s := &Stats{}

	var err error
	if s.Total, err = e.DB.LiveCount(); err != nil {
		return nil, fmt.Errorf("live count: %w", err)
	}
	if s.ByScopeType, err = e.DB.CountBy("scope_type"); err != nil {
		return nil, err
	}
	if s.ByImportance, err = e.DB.CountBy("importance"); err != nil {
		return nil, err
	}
	if s.ByTier, err = e.DB.CountBy("tier"); err != nil {
		return nil, err
	}
	if s.ByStage, err = e.DB.CountBy("stage"); err != nil {
		return nil, err
	}
	return s, nil
}

// TopAccessed returns the most-read memories within the window.
func (e *Engine) TopAccessed(window time.Duration, limit int) ([]store.AccessEntry, error) {
	return e.DB.TopAccessed(time.Now().Add(-window), limit)
}

// Issue is one health finding with a suggested remediation.
type Issue struct {
	Severity    string `json:"severity"` // info, warning, critical
	Code        string `json:"code"`
	Detail      string `json:"detail"`
	Remediation string `json:"remediation"`
}

// Health inspects the store for conditions that degrade retrieval or
// indicate drift: tier imbalance, expired memories the sweep has not yet
// resolved, clusters with stale coherence, and orphaned vectors. An empty
// slice means healthy.
func (e *Engine) Health() ([]Issue, error) {
	var issues []Issue

	byTier, err := e.DB.CountBy("tier")
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byTier {
		total += n
	}
	if total > 100 {
		for tier, n := range byTier {
			if float64(n)/float64(total) > 0.75 {
				issues = append(issues, Issue{
					Severity:    "warning",
					Code:        "tier_imbalance",
					Detail:      fmt.Sprintf("%d of %d memories (%.0f%%) sit in the %s tier", n, total, 100*float64(n)/float64(total), tier),
					Remediation: "run a sweep to re-tier by recency, or review tier placement thresholds",
				})
			}
		}
	}

	backlog, err := e.DB.ExpiredBacklog(time.Now())
	if err != nil {
		return nil, err
	}
	if backlog > 0 {
		severity := "info"
		if backlog > 100 {
			severity = "warning"
		}
		issues = append(issues, Issue{
			Severity:    severity,
			Code:        "expired_backlog",
			Detail:      fmt.Sprintf("%d expired memories await lifecycle resolution", backlog),
			Remediation: "run a sweep, or shorten the sweep interval",
		})
	}

	stale, err := e.DB.StaleCoherenceClusters()
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		issues = append(issues, Issue{
			Severity:    "info",
			Code:        "stale_coherence",
			Detail:      fmt.Sprintf("%d clusters changed membership since their coherence was computed", len(stale)),
			Remediation: "coherence refreshes automatically; call the refresh endpoint to force it",
		})
	}

	orphans, err := e.DB.OrphanVectorCount()
	if err != nil {
		return nil, err
	}
	if orphans > 0 {
		issues = append(issues, Issue{
			Severity:    "critical",
			Code:        "orphan_vectors",
			Detail:      fmt.Sprintf("%d embedding vectors reference deleted memories", orphans),
			Remediation: "deletes should remove vectors transactionally; inspect the database for corruption",
		})
	}

	return issues, nil
}
