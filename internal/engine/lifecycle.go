package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

// allowedTransitions is the lifecycle state machine. Deleted is terminal
// and handled by DeleteMemory; everything else must follow an edge here.
var allowedTransitions = map[model.Stage][]model.Stage{
	model.StageActive:   {model.StagePromoted, model.StageDemoted, model.StageArchived, model.StageDeleted},
	model.StagePromoted: {model.StageActive, model.StagePromoted, model.StageDemoted, model.StageArchived, model.StageDeleted},
	model.StageDemoted:  {model.StageActive, model.StagePromoted, model.StageDemoted, model.StageArchived, model.StageDeleted},
	model.StageArchived: {model.StageActive, model.StageDeleted},
}

func transitionAllowed(from, to model.Stage) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Promote raises a memory's importance and marks it promoted. An empty
// target raises it one level; a multi-level jump lands as a single
// audited transition. The target must be strictly higher than the
// current level. The tier is recomputed from the new importance, so
// promotion typically pulls the memory into faster storage.
func (e *Engine) Promote(id string, to model.Importance, actor, reason string) (*model.Memory, error) {
	return e.shift(id, to, actor, reason, false, +1, model.StagePromoted)
}

// Demote lowers a memory's importance and marks it demoted. An empty
// target lowers it one level; an explicit target must be strictly lower
// than the current level.
func (e *Engine) Demote(id string, to model.Importance, actor, reason string) (*model.Memory, error) {
	return e.shift(id, to, actor, reason, false, -1, model.StageDemoted)
}

// shift applies an importance change plus the matching stage.
func (e *Engine) shift(id string, target model.Importance, actor, reason string, automatic bool, dir int, to model.Stage) (*model.Memory, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := e.DB.PeekMemory(id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(m.Stage, to) {
		return nil, model.Validationf("stage", "cannot move memory %s from %s to %s", id, m.Stage, to)
	}

	rank := m.Importance.Rank() + dir
	if target != "" {
		if !target.Valid() {
			return nil, model.Validationf("importance", "unknown importance level %q", target)
		}
		rank = target.Rank()
		if dir > 0 && rank <= m.Importance.Rank() {
			return nil, model.Validationf("importance", "memory %s is %s, promotion target must be higher", id, m.Importance)
		}
		if dir < 0 && rank >= m.Importance.Rank() {
			return nil, model.Validationf("importance", "memory %s is %s, demotion target must be lower", id, m.Importance)
		}
	}
	if rank < 0 {
		return nil, model.Validationf("importance", "memory %s is already %s, cannot demote further", id, m.Importance)
	}
	if rank > model.ImportanceCritical.Rank() {
		return nil, model.Validationf("importance", "memory %s is already %s, cannot promote further", id, m.Importance)
	}

	now := time.Now()
	from := m.Stage
	m.Importance = importanceAtRank(rank)
	m.Stage = to
	m.Tier = tierForMemory(m, now)

	err = e.applyAudited(m, model.Transition{
		MemoryID:  id,
		From:      from,
		To:        to,
		Reason:    reason,
		Actor:     actor,
		Automatic: automatic,
		At:        now,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Archive moves a memory to the archived stage: content is gzip
// compressed, the tier pinned to frozen, and the memory becomes read-only
// until restored. Archived memories stay searchable.
func (e *Engine) Archive(id, actor, reason string, automatic bool) (*model.Memory, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	return e.archiveLocked(id, actor, reason, automatic)
}

func (e *Engine) archiveLocked(id, actor, reason string, automatic bool) (*model.Memory, error) {
	m, err := e.DB.PeekMemory(id)
	if err != nil {
		return nil, err
	}
	if m.Stage == model.StageArchived {
		return m, nil // already archived, idempotent
	}
	if !transitionAllowed(m.Stage, model.StageArchived) {
		return nil, model.Validationf("stage", "cannot archive memory %s from stage %s", id, m.Stage)
	}

	from := m.Stage
	m.Stage = model.StageArchived
	m.Tier = model.TierFrozen
	m.Compressed = true

	err = e.applyAudited(m, model.Transition{
		MemoryID:  id,
		From:      from,
		To:        model.StageArchived,
		Reason:    reason,
		Actor:     actor,
		Automatic: automatic,
		At:        time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Restore brings an archived memory back to the active stage. Content is
// decompressed and the tier recomputed from current importance and
// recency, not restored to its pre-archive value.
func (e *Engine) Restore(id, actor, reason string) (*model.Memory, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := e.DB.PeekMemory(id)
	if err != nil {
		return nil, err
	}
	if m.Stage != model.StageArchived {
		return nil, model.Validationf("stage", "memory %s is not archived (stage %s)", id, m.Stage)
	}

	now := time.Now()
	m.Stage = model.StageActive
	m.Compressed = false
	m.Tier = tierForMemory(m, now)

	err = e.applyAudited(m, model.Transition{
		MemoryID: id,
		From:     model.StageArchived,
		To:       model.StageActive,
		Reason:   reason,
		Actor:    actor,
		At:       now,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RefreshExpiry replaces a memory's expiry. A nil expiry clears it. Works
// on any live, non-archived memory.
func (e *Engine) RefreshExpiry(id string, expiresAt *time.Time) (*model.Memory, error) {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := e.DB.PeekMemory(id)
	if err != nil {
		return nil, err
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, model.Validationf("expires_at", "expiry must be in the future")
	}
	m.ExpiresAt = expiresAt
	if err := e.DB.UpdateMemory(m, m.Version); err != nil {
		return nil, err
	}
	return m, nil
}

// Transitions returns a memory's lifecycle audit trail, oldest first.
func (e *Engine) Transitions(id string) ([]model.Transition, error) {
	return e.DB.ListTransitions(id)
}

// applyAudited commits a lifecycle change and its audit record in one
// transaction. A racing writer wins last-writer: on a version conflict
// this attempt is recorded in the audit log as superseded and the
// conflict surfaces to the caller.
func (e *Engine) applyAudited(m *model.Memory, tr model.Transition) error {
	err := e.DB.ApplyLifecycle(m, m.Version, tr)
	if errors.Is(err, model.ErrVersionConflict) {
		lost := tr
		lost.Reason = "superseded by concurrent transition: " + tr.Reason
		if auditErr := e.DB.RecordTransition(lost); auditErr != nil {
			log.Printf("record superseded transition for %s: %v", m.ID, auditErr)
		}
	}
	return err
}

// SweepReport summarizes one lifecycle sweep pass.
type SweepReport struct {
	Evaluated int `json:"evaluated"`
	Archived  int `json:"archived"`
	Deleted   int `json:"deleted"`
	Retiered  int `json:"retiered"`
	Skipped   int `json:"skipped"`
}

// Sweep runs one lifecycle maintenance pass:
//
//  1. Expired memories are resolved by importance: ephemeral and low are
//     deleted, everything else is archived. High and critical memories
//     are never deleted automatically.
//  2. Live memories whose computed tier has drifted from the stored one
//     are moved.
//
// Each memory is marked swept so it is re-evaluated at most once per
// interval. Individual failures are logged and skipped; the sweep never
// aborts the pass for one bad row.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	now := time.Now()
	cutoff := now.Add(-e.Config.Lifecycle.SweepInterval)

	candidates, err := e.DB.SweepCandidates(cutoff, e.Config.Lifecycle.SweepBatch)
	if err != nil {
		return SweepReport{}, fmt.Errorf("sweep candidates: %w", err)
	}

	var report SweepReport
	for i := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		m := &candidates[i]
		report.Evaluated++

		action, err := e.sweepOne(m, now)
		if err != nil {
			report.Skipped++
			log.Printf("sweep %s: %v", m.ID, err)
			continue
		}
		switch action {
		case sweepArchived:
			report.Archived++
		case sweepDeleted:
			report.Deleted++
		case sweepRetiered:
			report.Retiered++
		}

		if err := e.DB.MarkSwept(m.ID, now); err != nil {
			log.Printf("sweep %s: %v", m.ID, err)
		}
	}
	return report, nil
}

type sweepAction int

const (
	sweepNone sweepAction = iota
	sweepArchived
	sweepDeleted
	sweepRetiered
)

func (e *Engine) sweepOne(m *model.Memory, now time.Time) (sweepAction, error) {
	if m.Expired(now) && m.Stage != model.StageArchived {
		if m.Importance.Rank() <= model.ImportanceLow.Rank() {
			if err := e.DeleteMemory(m.ID, "sweep", "expired", true); err != nil {
				return sweepNone, err
			}
			return sweepDeleted, nil
		}
		if _, err := e.Archive(m.ID, "sweep", "expired", true); err != nil {
			return sweepNone, err
		}
		return sweepArchived, nil
	}

	// Archived memories are pinned to frozen; no re-tiering.
	if m.Stage == model.StageArchived {
		return sweepNone, nil
	}

	want := tierForMemory(m, now)
	if want == m.Tier {
		return sweepNone, nil
	}
	if err := e.DB.UpdateTier(m.ID, m.Version, want); err != nil {
		return sweepNone, err
	}
	return sweepRetiered, nil
}

func importanceAtRank(rank int) model.Importance {
	order := []model.Importance{
		model.ImportanceEphemeral,
		model.ImportanceLow,
		model.ImportanceMedium,
		model.ImportanceHigh,
		model.ImportanceCritical,
	}
	if rank < 0 {
		rank = 0
	}
	if rank >= len(order) {
		rank = len(order) - 1
	}
	return order[rank]
}
