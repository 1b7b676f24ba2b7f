package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/model"
)

// CreateCluster inserts a cluster and its initial members. Member ids
// must resolve to live memories; unknown ids fail the whole create.
func (db *DB) CreateCluster(c *model.Cluster) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin cluster tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO clusters (id, name, cluster_type, coherence, members_changed_at, coherence_at, created_at, updated_at)
		VALUES (?, ?, ?, 1.0, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Type, millis(now), millis(now), millis(now), millis(now))
	if err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}

	for _, mid := range c.MemberIDs {
		if err := addMemberTx(tx, c.ID, mid, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cluster tx: %w", err)
	}
	c.Coherence = 1.0
	return nil
}

func addMemberTx(tx *sql.Tx, clusterID, memoryID string, now time.Time) error {
	var stage string
	err := tx.QueryRow(`SELECT stage FROM memories WHERE id = ?`, memoryID).Scan(&stage)
	if err == sql.ErrNoRows || stage == string(model.StageDeleted) {
		return fmt.Errorf("member %s: %w", memoryID, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check member %s: %w", memoryID, err)
	}
	_, err = tx.Exec(`
		INSERT OR IGNORE INTO cluster_members (cluster_id, memory_id, added_at) VALUES (?, ?, ?)
	`, clusterID, memoryID, millis(now))
	if err != nil {
		return fmt.Errorf("add member %s: %w", memoryID, err)
	}
	return nil
}

// AddMembers adds memories to a cluster. Membership is a set: adding an
// existing member is a no-op.
func (db *DB) AddMembers(clusterID string, memberIDs []string) error {
	return db.changeMembers(clusterID, memberIDs, false)
}

// RemoveMembers removes memories from a cluster. Unknown members are
// ignored.
func (db *DB) RemoveMembers(clusterID string, memberIDs []string) error {
	return db.changeMembers(clusterID, memberIDs, true)
}

func (db *DB) changeMembers(clusterID string, memberIDs []string, remove bool) error {
	now := time.Now()
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin membership tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM clusters WHERE id = ?`, clusterID).Scan(&exists); err != nil {
		return fmt.Errorf("check cluster %s: %w", clusterID, err)
	}
	if exists == 0 {
		return fmt.Errorf("cluster %s: %w", clusterID, model.ErrNotFound)
	}

	for _, mid := range memberIDs {
		if remove {
			if _, err := tx.Exec(`DELETE FROM cluster_members WHERE cluster_id = ? AND memory_id = ?`, clusterID, mid); err != nil {
				return fmt.Errorf("remove member %s: %w", mid, err)
			}
		} else if err := addMemberTx(tx, clusterID, mid, now); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE clusters SET members_changed_at = ?, updated_at = ? WHERE id = ?`,
		millis(now), millis(now), clusterID); err != nil {
		return fmt.Errorf("touch cluster %s: %w", clusterID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit membership tx: %w", err)
	}
	return nil
}

// GetCluster returns a cluster with its member id set.
func (db *DB) GetCluster(id string) (*model.Cluster, error) {
	var c model.Cluster
	var createdAt, updatedAt int64
	err := db.QueryRow(`
		SELECT id, name, cluster_type, coherence, created_at, updated_at
		FROM clusters WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Type, &c.Coherence, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cluster %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster %s: %w", id, err)
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)

	members, err := db.ClusterMemberIDs(id)
	if err != nil {
		return nil, err
	}
	c.MemberIDs = members
	return &c, nil
}

// ClusterMemberIDs returns the member id set of a cluster.
func (db *DB) ClusterMemberIDs(clusterID string) ([]string, error) {
	rows, err := db.Query(`SELECT memory_id FROM cluster_members WHERE cluster_id = ? ORDER BY added_at ASC`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("cluster members %s: %w", clusterID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClusterMemories returns the full memory records for a cluster's members.
func (db *DB) ClusterMemories(clusterID string) ([]model.Memory, error) {
	ids, err := db.ClusterMemberIDs(clusterID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	rows, err := db.Query(fmt.Sprintf(
		`SELECT %s FROM memories WHERE id IN (%s) AND stage != 'deleted'`,
		memoryColumns, strings.Join(ph, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("cluster memories %s: %w", clusterID, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SetCoherence records a freshly computed coherence score.
func (db *DB) SetCoherence(clusterID string, coherence float64, at time.Time) error {
	res, err := db.Exec(`
		UPDATE clusters SET coherence = ?, coherence_at = ?, updated_at = ? WHERE id = ?
	`, coherence, millis(at), millis(at), clusterID)
	if err != nil {
		return fmt.Errorf("set coherence %s: %w", clusterID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cluster %s: %w", clusterID, model.ErrNotFound)
	}
	return nil
}

// StaleCoherenceClusters returns ids of clusters whose membership changed
// after their coherence was last computed.
func (db *DB) StaleCoherenceClusters() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM clusters WHERE members_changed_at > coherence_at`)
	if err != nil {
		return nil, fmt.Errorf("stale coherence clusters: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cluster id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
