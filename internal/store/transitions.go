package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

// execer covers both *sql.DB and *sql.Tx so transitions can be recorded
// inside a caller's transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertTransition(e execer, tr model.Transition) error {
	if tr.At.IsZero() {
		tr.At = time.Now()
	}
	_, err := e.Exec(`
		INSERT INTO transitions (memory_id, from_stage, to_stage, reason, actor, automatic, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?)
	`, tr.MemoryID, tr.From, tr.To, tr.Reason, tr.Actor, boolInt(tr.Automatic), millis(tr.At))
	if err != nil {
		return fmt.Errorf("insert transition %s -> %s for %s: %w", tr.From, tr.To, tr.MemoryID, err)
	}
	return nil
}

// RecordTransition appends a lifecycle transition outside any other
// write, for audit entries that accompany no row mutation (e.g. a losing
// racer's attempt).
func (db *DB) RecordTransition(tr model.Transition) error {
	return insertTransition(db.DB, tr)
}

// ListTransitions returns a memory's stage history, oldest first.
func (db *DB) ListTransitions(memoryID string) ([]model.Transition, error) {
	rows, err := db.Query(`
		SELECT memory_id, from_stage, to_stage, reason, actor, automatic, created_at
		FROM transitions WHERE memory_id = ?
		ORDER BY created_at ASC, id ASC
	`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", memoryID, err)
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		var tr model.Transition
		var reason sql.NullString
		var automatic int
		var createdAt int64
		if err := rows.Scan(&tr.MemoryID, &tr.From, &tr.To, &reason, &tr.Actor, &automatic, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Reason = reason.String
		tr.Automatic = automatic != 0
		tr.At = fromMillis(createdAt)
		out = append(out, tr)
	}
	return out, rows.Err()
}
