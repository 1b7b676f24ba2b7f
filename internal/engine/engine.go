// Package engine implements the memory lifecycle state machine, the
// relationship graph, clustering, and the federated search planner on top
// of the store layer.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/store"
)

// lockStripes is the size of the per-memory-id mutex pool. Mutations that
// touch a shared memory (graph edges, cluster membership, deletes)
// serialize through these so a delete racing a link resolves
// deterministically.
const lockStripes = 64

// Engine orchestrates memory writes, lifecycle transitions, the
// relationship graph, clusters, and search.
type Engine struct {
	DB       *store.DB
	Embedder Embedder
	Config   config.Config

	locks  [lockStripes]sync.Mutex
	stopCh chan struct{}
}

// New creates a new Engine.
func New(db *store.DB, cfg config.Config) *Engine {
	return &Engine{
		DB:     db,
		Config: cfg,
		stopCh: make(chan struct{}),
	}
}

// SetEmbedder configures the similarity oracle.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// lockFor returns the stripe mutex serializing mutations on a memory id.
func (e *Engine) lockFor(id string) *sync.Mutex {
	return &e.locks[e.stripeFor(id)]
}

// stripeFor maps a memory id onto its lock stripe. Callers taking two
// stripes must acquire them in index order: distinct ids hash onto
// shared stripes, so any other order can deadlock.
func (e *Engine) stripeFor(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % lockStripes)
}

// CreateMemory validates, places, and persists a new memory, then embeds
// it asynchronously. The memory is born in the active stage; its tier is
// derived from importance and expiry unless the caller pinned one.
func (e *Engine) CreateMemory(ctx context.Context, m *model.Memory) error {
	now := time.Now()
	if err := model.ValidateMemory(m, now); err != nil {
		return err
	}

	if max := e.Config.Lifecycle.MaxPerEntity; max > 0 {
		n, err := e.DB.CountLiveByEntity(m.Scope.EntityID)
		if err != nil {
			return fmt.Errorf("quota check: %w", err)
		}
		if n >= max {
			return fmt.Errorf("entity %s has %d memories (max %d): %w",
				m.Scope.EntityID, n, max, model.ErrCapacityExceeded)
		}
	}

	m.Stage = model.StageActive
	if m.Tier == "" {
		m.AccessedAt = now
		m.Tier = tierForMemory(m, now)
	}

	if err := e.DB.CreateMemory(m); err != nil {
		return err
	}

	// Best-effort: a failed embedding degrades semantic search, never a write.
	if e.Embedder != nil {
		id, content := m.ID, m.Content
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := e.embedContent(ctx, id, content); err != nil {
				log.Printf("embed %s: %v", id, err)
			}
		}()
	}
	return nil
}

// BatchFailure reports one failed item of a batch write.
type BatchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult is the per-item outcome of CreateBatch.
type BatchResult struct {
	Created []string       `json:"created"`
	Failed  []BatchFailure `json:"failed,omitempty"`
}

// CreateBatch writes memories independently: each item succeeds or fails
// on its own, never transactionally across the batch.
func (e *Engine) CreateBatch(ctx context.Context, memories []*model.Memory) BatchResult {
	var res BatchResult
	for i, m := range memories {
		if err := e.CreateMemory(ctx, m); err != nil {
			res.Failed = append(res.Failed, BatchFailure{Index: i, Error: err.Error()})
			continue
		}
		res.Created = append(res.Created, m.ID)
	}
	return res
}

// GetMemory reads a memory and records the access.
func (e *Engine) GetMemory(id string) (*model.Memory, error) {
	return e.DB.GetMemory(id)
}

// PeekMemory reads a memory without recording an access. Authorization
// checks use this so they never skew usage statistics.
func (e *Engine) PeekMemory(id string) (*model.Memory, error) {
	return e.DB.PeekMemory(id)
}

// UpdateMemory applies a caller's changes under optimistic concurrency
// and re-embeds the content asynchronously.
func (e *Engine) UpdateMemory(ctx context.Context, m *model.Memory, expectedVersion int) error {
	if err := model.ValidateMemory(m, time.Now()); err != nil {
		return err
	}
	if err := e.DB.UpdateMemory(m, expectedVersion); err != nil {
		return err
	}

	if e.Embedder != nil {
		id, content := m.ID, m.Content
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := e.embedContent(ctx, id, content); err != nil {
				log.Printf("re-embed %s: %v", id, err)
			}
		}()
	}
	return nil
}

// DeleteMemory tombstones a memory, removes all incident relationships
// and cluster memberships in the same transaction, and recomputes
// coherence for every affected cluster.
func (e *Engine) DeleteMemory(id, actor, reason string, automatic bool) error {
	mu := e.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	current, err := e.DB.PeekMemory(id)
	if err != nil {
		return err
	}

	affected, err := e.DB.DeleteMemory(id, model.Transition{
		MemoryID:  id,
		From:      current.Stage,
		To:        model.StageDeleted,
		Reason:    reason,
		Actor:     actor,
		Automatic: automatic,
		At:        time.Now(),
	})
	if err != nil {
		return err
	}

	for _, cid := range affected {
		if err := e.RecomputeCoherence(cid); err != nil {
			log.Printf("recompute coherence for %s after delete of %s: %v", cid, id, err)
		}
	}
	return nil
}

// embedContent generates and stores the embedding for one memory.
func (e *Engine) embedContent(ctx context.Context, id, content string) error {
	if e.Embedder == nil || content == "" {
		return nil
	}
	vec, err := e.Embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed memory %s: %w", id, err)
	}
	return e.DB.SaveVector(id, vec, e.Embedder.Model())
}

// EmbedMissing embeds all live memories that don't have a vector for the
// current model. Returns how many were embedded.
func (e *Engine) EmbedMissing(ctx context.Context) (int, error) {
	if e.Embedder == nil {
		return 0, nil
	}

	ids, err := e.DB.MissingVectorIDs(e.Embedder.Model())
	if err != nil {
		return 0, fmt.Errorf("list unembedded: %w", err)
	}

	embedded := 0
	for _, id := range ids {
		m, err := e.DB.PeekMemory(id)
		if err != nil {
			log.Printf("embed missing: load %s: %v", id, err)
			continue
		}
		if err := e.embedContent(ctx, id, m.Content); err != nil {
			log.Printf("embed missing: %v", err)
			continue
		}
		embedded++
	}
	return embedded, nil
}

// StartSweepTimer runs the lifecycle sweep on startup and then on the
// configured interval.
func (e *Engine) StartSweepTimer() {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		report, err := e.Sweep(ctx)
		if err != nil {
			log.Printf("sweep error: %v", err)
			return
		}
		if report.Archived+report.Deleted+report.Retiered > 0 {
			log.Printf("sweep: evaluated %d, archived %d, deleted %d, retiered %d, skipped %d",
				report.Evaluated, report.Archived, report.Deleted, report.Retiered, report.Skipped)
		}
	}

	run()

	go func() {
		interval := e.Config.Lifecycle.SweepInterval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
