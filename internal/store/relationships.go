package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/model"
)

// Direction selects which edges Neighbors returns relative to a memory.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// InsertRelationship creates a directed edge between two live memories.
// Idempotent on the (source, target, type) triple: when an identical edge
// already exists its id is returned instead of an error. Unknown endpoints
// surface as ErrNotFound.
func (db *DB) InsertRelationship(r *model.Relationship) (string, error) {
	for _, id := range []string{r.SourceID, r.TargetID} {
		var stage string
		err := db.QueryRow(`SELECT stage FROM memories WHERE id = ?`, id).Scan(&stage)
		if err == sql.ErrNoRows || stage == string(model.StageDeleted) {
			return "", fmt.Errorf("endpoint %s: %w", id, model.ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("check endpoint %s: %w", id, err)
		}
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	res, err := db.Exec(`
		INSERT OR IGNORE INTO relationships (id, source_id, target_id, rel_type, strength, confidence, context, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)
	`, r.ID, r.SourceID, r.TargetID, r.Type, r.Strength, r.Confidence, r.Context, r.CreatedBy, millis(r.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("insert relationship: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		// Duplicate triple: return the existing edge's id.
		var existing string
		err := db.QueryRow(`
			SELECT id FROM relationships WHERE source_id = ? AND target_id = ? AND rel_type = ?
		`, r.SourceID, r.TargetID, r.Type).Scan(&existing)
		if err != nil {
			return "", fmt.Errorf("resolve duplicate relationship: %w", err)
		}
		r.ID = existing
	}
	return r.ID, nil
}

// DeleteRelationships removes edges matching the ordered (source, target)
// pair. An empty relType removes all types for the pair. Returns the
// number of edges removed.
func (db *DB) DeleteRelationships(sourceID, targetID string, relType model.RelationType) (int, error) {
	query := `DELETE FROM relationships WHERE source_id = ? AND target_id = ?`
	args := []any{sourceID, targetID}
	if relType != "" {
		query += ` AND rel_type = ?`
		args = append(args, relType)
	}
	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete relationships %s -> %s: %w", sourceID, targetID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Neighbors returns the edges incident to a memory, filtered by direction
// and, optionally, by type.
func (db *DB) Neighbors(memoryID string, types []model.RelationType, dir Direction) ([]model.Relationship, error) {
	var cond string
	var args []any
	switch dir {
	case DirOut:
		cond = "source_id = ?"
		args = append(args, memoryID)
	case DirIn:
		cond = "target_id = ?"
		args = append(args, memoryID)
	default:
		cond = "(source_id = ? OR target_id = ?)"
		args = append(args, memoryID, memoryID)
	}

	if len(types) > 0 {
		ph := make([]string, len(types))
		for i, t := range types {
			ph[i] = "?"
			args = append(args, t)
		}
		cond += fmt.Sprintf(" AND rel_type IN (%s)", strings.Join(ph, ","))
	}

	rows, err := db.Query(`
		SELECT id, source_id, target_id, rel_type, strength, confidence, context, created_by, created_at
		FROM relationships WHERE `+cond+`
		ORDER BY strength DESC, created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", memoryID, err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func scanRelationships(rows *sql.Rows) ([]model.Relationship, error) {
	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		var context sql.NullString
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Strength, &r.Confidence,
			&context, &r.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		r.Context = context.String
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
