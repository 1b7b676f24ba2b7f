package store

import (
	"github.com/dgraph-io/ristretto"

	"github.com/stratumhq/stratum/internal/model"
)

// readCache fronts memory reads with an in-process ristretto cache.
// Only hot and warm tier records are admitted; cold and frozen reads are
// rare enough that caching them would just evict useful entries. Every
// write path (update, lifecycle, delete) drops the entry.
type readCache struct {
	c *ristretto.Cache
}

func newReadCache() (*readCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64MB of payload bytes
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &readCache{c: c}, nil
}

func (rc *readCache) get(id string) (*model.Memory, bool) {
	v, ok := rc.c.Get(id)
	if !ok {
		return nil, false
	}
	m, ok := v.(model.Memory)
	if !ok {
		return nil, false
	}
	// Return a copy so callers never mutate the cached value.
	out := m
	return &out, true
}

func (rc *readCache) set(m *model.Memory) {
	if m.Tier != model.TierHot && m.Tier != model.TierWarm {
		return
	}
	cost := int64(len(m.Content)) + 256
	rc.c.Set(m.ID, *m, cost)
	// Sets are buffered; wait so a later drop can never be reordered
	// behind this set and resurrect a stale entry.
	rc.c.Wait()
}

func (rc *readCache) drop(id string) {
	rc.c.Del(id)
}
