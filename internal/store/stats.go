package store

import (
	"fmt"
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

// CountBy returns live-memory counts grouped by one of the indexed
// columns: scope_type, importance, tier, or stage. Analytics are a
// read-only projection over the authoritative rows, never a maintained
// counter.
func (db *DB) CountBy(column string) (map[string]int, error) {
	switch column {
	case "scope_type", "importance", "tier", "stage":
	default:
		return nil, fmt.Errorf("count by %q: unsupported column", column)
	}

	rows, err := db.Query(fmt.Sprintf(`
		SELECT %s, COUNT(*) FROM memories WHERE stage != 'deleted' GROUP BY %s
	`, column, column))
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[key] = n
	}
	return out, rows.Err()
}

// AccessEntry is one row of the most-accessed report.
type AccessEntry struct {
	MemoryID    string  `json:"memory_id"`
	AccessCount int     `json:"access_count"`
	Frequency   float64 `json:"frequency"`
}

// TopAccessed returns the most-accessed live memories whose last access
// falls inside the window, bounded by limit.
func (db *DB) TopAccessed(since time.Time, limit int) ([]AccessEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`
		SELECT id, access_count, access_freq FROM memories
		WHERE stage != 'deleted' AND accessed_at >= ?
		ORDER BY access_count DESC, access_freq DESC
		LIMIT ?
	`, millis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("top accessed: %w", err)
	}
	defer rows.Close()

	var out []AccessEntry
	for rows.Next() {
		var e AccessEntry
		if err := rows.Scan(&e.MemoryID, &e.AccessCount, &e.Frequency); err != nil {
			return nil, fmt.Errorf("scan access entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExpiredBacklog counts live memories whose expiry has passed but which
// the sweep has not yet archived or deleted.
func (db *DB) ExpiredBacklog(now time.Time) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM memories
		WHERE stage NOT IN ('deleted', 'archived') AND expires_at IS NOT NULL AND expires_at < ?
	`, millis(now)).Scan(&n)
	return n, err
}

// OrphanVectorCount counts vectors whose memory has been deleted. Deletes
// remove the vector in the same transaction, so any nonzero count points
// at corruption worth flagging.
func (db *DB) OrphanVectorCount() (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM mem_vectors v
		LEFT JOIN memories m ON m.id = v.memory_id AND m.stage != 'deleted'
		WHERE m.id IS NULL
	`).Scan(&n)
	return n, err
}

// LiveCount returns the number of non-deleted memories.
func (db *DB) LiveCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM memories WHERE stage != 'deleted'`).Scan(&n)
	return n, err
}

// TierOf returns a memory's current tier, bypassing caches. Used by the
// tier distribution health check and tests.
func (db *DB) TierOf(id string) (model.Tier, error) {
	var tier model.Tier
	err := db.QueryRow(`SELECT tier FROM memories WHERE id = ? AND stage != 'deleted'`, id).Scan(&tier)
	if err != nil {
		return "", fmt.Errorf("tier of %s: %w", id, err)
	}
	return tier, nil
}
