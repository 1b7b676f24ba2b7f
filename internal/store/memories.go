package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stratumhq/stratum/internal/model"
)

// accessFreqAlpha is the smoothing factor for the rolling access
// frequency. Each read moves the frequency toward 1; idle memories keep
// the decayed value until the next read.
const accessFreqAlpha = 0.3

// NewMemoryID returns a new lexically time-sortable memory identifier.
func NewMemoryID() string {
	return ulid.Make().String()
}

const memoryColumns = `id, scope_type, entity_id, entity_kind, context_id, project_id,
	content, content_type, structured, language,
	source, reliability, confidence, importance, tags, categories, quality,
	access_count, access_freq, mod_count, security,
	stage, tier, version, checksum, compressed,
	created_at, updated_at, accessed_at, expires_at`

// CreateMemory inserts a new memory row. Assigns an id when missing,
// computes the checksum and quality score, and stamps timestamps so that
// accessed_at == created_at at birth.
func (db *DB) CreateMemory(m *model.Memory) error {
	now := time.Now()
	if m.ID == "" {
		m.ID = NewMemoryID()
	}
	if m.ContentType == "" {
		m.ContentType = "text/plain"
	}
	if m.Stage == "" {
		m.Stage = model.StageActive
	}
	if m.Tier == "" {
		m.Tier = model.TierHot
	}
	if m.Security.AccessLevel == "" {
		m.Security.AccessLevel = "private"
	}

	blob, err := encodeContent(m.Content, m.Compressed)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	m.Checksum = checksum(blob)
	m.Quality = model.QualityScore(m)
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	m.AccessedAt = now

	_, err = db.Exec(`
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''),
			?, ?, NULLIF(?, ''), NULLIF(?, ''),
			NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?)
	`, m.ID, m.Scope.Type, m.Scope.EntityID, m.Scope.EntityKind, m.Scope.ContextID, m.Scope.ProjectID,
		blob, m.ContentType, jsonOrEmpty(m.Structured), m.Language,
		m.Source.Descriptor, m.Source.Reliability, m.Confidence, m.Importance,
		jsonOrEmpty(m.Tags), jsonOrEmpty(m.Categories), m.Quality,
		0, 0.0, 0, jsonOrEmpty(m.Security),
		m.Stage, m.Tier, m.Version, m.Checksum, boolInt(m.Compressed),
		millis(now), millis(now), millis(now), nullMillis(m.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// GetMemory returns a live memory by id and records the access: the
// access count, accessed_at, and rolling access frequency are bumped in
// the same call. This is the only implicit mutation on read.
func (db *DB) GetMemory(id string) (*model.Memory, error) {
	now := time.Now()
	res, err := db.Exec(`
		UPDATE memories
		SET access_count = access_count + 1,
		    access_freq  = ? + ? * access_freq,
		    accessed_at  = ?
		WHERE id = ? AND stage != 'deleted'
	`, accessFreqAlpha, 1-accessFreqAlpha, millis(now), id)
	if err != nil {
		return nil, fmt.Errorf("record access for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}

	m, err := db.readMemory(id)
	if err != nil {
		return nil, err
	}
	db.cache.set(m)
	return m, nil
}

// PeekMemory returns a live memory by id without recording an access.
// Internal callers (search hydration, lifecycle, graph validation) use
// this so background work never skews usage statistics. Served from the
// read cache when possible.
func (db *DB) PeekMemory(id string) (*model.Memory, error) {
	if m, ok := db.cache.get(id); ok {
		return m, nil
	}
	m, err := db.readMemory(id)
	if err != nil {
		return nil, err
	}
	db.cache.set(m)
	return m, nil
}

func (db *DB) readMemory(id string) (*model.Memory, error) {
	row := db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND stage != 'deleted'`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return m, nil
}

// UpdateMemory writes a memory's mutable fields using optimistic
// concurrency: the row is only updated when its current version equals
// expectedVersion. Importance, stage, and tier are lifecycle-managed and
// never written here. Archived memories are read-only until restored.
func (db *DB) UpdateMemory(m *model.Memory, expectedVersion int) error {
	now := time.Now()
	blob, err := encodeContent(m.Content, m.Compressed)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	m.Checksum = checksum(blob)
	m.Quality = model.QualityScore(m)

	res, err := db.Exec(`
		UPDATE memories
		SET content = ?, content_type = ?, structured = NULLIF(?, ''), language = NULLIF(?, ''),
		    source = NULLIF(?, ''), reliability = ?, confidence = ?,
		    tags = NULLIF(?, ''), categories = NULLIF(?, ''), quality = ?,
		    security = ?, checksum = ?, compressed = ?, expires_at = ?,
		    mod_count = mod_count + 1, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND stage NOT IN ('deleted', 'archived')
	`, blob, m.ContentType, jsonOrEmpty(m.Structured), m.Language,
		m.Source.Descriptor, m.Source.Reliability, m.Confidence,
		jsonOrEmpty(m.Tags), jsonOrEmpty(m.Categories), m.Quality,
		jsonOrEmpty(m.Security), m.Checksum, boolInt(m.Compressed), nullMillis(m.ExpiresAt),
		millis(now), m.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update memory %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.classifyWriteMiss(m.ID)
	}

	m.Version = expectedVersion + 1
	m.ModificationCount++
	m.UpdatedAt = now
	db.cache.drop(m.ID)
	return nil
}

// classifyWriteMiss distinguishes why a guarded UPDATE matched no rows.
func (db *DB) classifyWriteMiss(id string) error {
	var stage string
	err := db.QueryRow(`SELECT stage FROM memories WHERE id = ?`, id).Scan(&stage)
	if err == sql.ErrNoRows || stage == string(model.StageDeleted) {
		return fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("inspect memory %s: %w", id, err)
	}
	if stage == string(model.StageArchived) {
		return model.Validationf("stage", "memory %s is archived and read-only; restore it first", id)
	}
	return fmt.Errorf("memory %s: %w", id, model.ErrVersionConflict)
}

// ApplyLifecycle commits a stage transition: the memory's lifecycle
// fields and the transition record are written in one transaction, guarded
// by the optimistic version check.
func (db *DB) ApplyLifecycle(m *model.Memory, expectedVersion int, tr model.Transition) error {
	now := time.Now()
	blob, err := encodeContent(m.Content, m.Compressed)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	m.Checksum = checksum(blob)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin lifecycle tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE memories
		SET stage = ?, tier = ?, importance = ?, content = ?, checksum = ?,
		    compressed = ?, expires_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND stage != 'deleted'
	`, m.Stage, m.Tier, m.Importance, blob, m.Checksum,
		boolInt(m.Compressed), nullMillis(m.ExpiresAt), millis(now),
		m.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("apply lifecycle to %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var stage string
		scanErr := tx.QueryRow(`SELECT stage FROM memories WHERE id = ?`, m.ID).Scan(&stage)
		if scanErr == sql.ErrNoRows || stage == string(model.StageDeleted) {
			return fmt.Errorf("memory %s: %w", m.ID, model.ErrNotFound)
		}
		return fmt.Errorf("memory %s: %w", m.ID, model.ErrVersionConflict)
	}

	if err := insertTransition(tx, tr); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lifecycle tx: %w", err)
	}

	m.Version = expectedVersion + 1
	m.UpdatedAt = now
	db.cache.drop(m.ID)
	return nil
}

// DeleteMemory tombstones a memory and removes everything incident to it
// in the same transaction: relationships (both directions), cluster
// memberships, and its embedding vector. Returns the ids of clusters that
// lost a member so the caller can recompute coherence. The tombstone row
// keeps the transition log addressable; its payload is cleared.
func (db *DB) DeleteMemory(id string, tr model.Transition) ([]string, error) {
	now := time.Now()
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	var stage string
	err = tx.QueryRow(`SELECT stage FROM memories WHERE id = ?`, id).Scan(&stage)
	if err == sql.ErrNoRows || stage == string(model.StageDeleted) {
		return nil, fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("inspect memory %s: %w", id, err)
	}

	rows, err := tx.Query(`SELECT cluster_id FROM cluster_members WHERE memory_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("list memberships for %s: %w", id, err)
	}
	var affected []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		affected = append(affected, cid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps := []struct {
		desc string
		sql  string
		args []any
	}{
		{"delete relationships", `DELETE FROM relationships WHERE source_id = ? OR target_id = ?`, []any{id, id}},
		{"delete memberships", `DELETE FROM cluster_members WHERE memory_id = ?`, []any{id}},
		{"delete vector", `DELETE FROM mem_vectors WHERE memory_id = ?`, []any{id}},
		{"tombstone", `UPDATE memories
			SET stage = 'deleted', content = X'', structured = NULL, checksum = '',
			    compressed = 0, updated_at = ?, version = version + 1
			WHERE id = ?`, []any{millis(now), id}},
	}
	for _, s := range steps {
		if _, err := tx.Exec(s.sql, s.args...); err != nil {
			return nil, fmt.Errorf("%s for %s: %w", s.desc, id, err)
		}
	}

	for _, cid := range affected {
		if _, err := tx.Exec(`UPDATE clusters SET members_changed_at = ?, updated_at = ? WHERE id = ?`,
			millis(now), millis(now), cid); err != nil {
			return nil, fmt.Errorf("touch cluster %s: %w", cid, err)
		}
	}

	if err := insertTransition(tx, tr); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete tx: %w", err)
	}
	db.cache.drop(id)
	return affected, nil
}

// CountLiveByEntity returns the number of non-deleted memories owned by
// an entity, for quota enforcement.
func (db *DB) CountLiveByEntity(entityID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM memories WHERE entity_id = ? AND stage != 'deleted'`, entityID).Scan(&n)
	return n, err
}

// MemoryFilter narrows a memory scan. Zero values mean "no constraint".
type MemoryFilter struct {
	ScopeType      model.ScopeType
	EntityID       string
	ContextID      string
	ProjectID      string
	ContentType    string
	Importance     []model.Importance
	Tags           []string
	MinConfidence  float64
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	AccessedAfter  *time.Time
	AccessedBefore *time.Time
	Tier           model.Tier
	Limit          int
}

// SelectMemories returns live memories matching the filter, newest
// accessed first. Deleted memories are never returned; archived ones are,
// since they remain searchable in the frozen tier.
func (db *DB) SelectMemories(f MemoryFilter) ([]model.Memory, error) {
	where := []string{"stage != 'deleted'"}
	var args []any

	if f.ScopeType != "" {
		where = append(where, "scope_type = ?")
		args = append(args, f.ScopeType)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.ContextID != "" {
		where = append(where, "context_id = ?")
		args = append(args, f.ContextID)
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.ContentType != "" {
		where = append(where, "content_type = ?")
		args = append(args, f.ContentType)
	}
	if len(f.Importance) > 0 {
		ph := make([]string, len(f.Importance))
		for i, imp := range f.Importance {
			ph[i] = "?"
			args = append(args, imp)
		}
		where = append(where, fmt.Sprintf("importance IN (%s)", strings.Join(ph, ",")))
	}
	for _, tag := range f.Tags {
		// Tags are stored as a JSON array; quoted-substring match avoids
		// partial-tag false positives.
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}
	if f.MinConfidence > 0 {
		where = append(where, "confidence >= ?")
		args = append(args, f.MinConfidence)
	}
	if f.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, millis(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at <= ?")
		args = append(args, millis(*f.CreatedBefore))
	}
	if f.AccessedAfter != nil {
		where = append(where, "accessed_at >= ?")
		args = append(args, millis(*f.AccessedAfter))
	}
	if f.AccessedBefore != nil {
		where = append(where, "accessed_at <= ?")
		args = append(args, millis(*f.AccessedBefore))
	}
	if f.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, f.Tier)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY accessed_at DESC LIMIT ?`,
		memoryColumns, strings.Join(where, " AND "))
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SweepCandidates returns live memories not evaluated since the given
// cutoff, oldest evaluation first. The debounce guarantees each memory is
// re-evaluated at most once per sweep interval.
func (db *DB) SweepCandidates(cutoff time.Time, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE stage != 'deleted' AND (swept_at IS NULL OR swept_at < ?)
		ORDER BY swept_at ASC
		LIMIT ?
	`, millis(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("sweep candidates: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// MarkSwept records that the sweep evaluated a memory.
func (db *DB) MarkSwept(id string, at time.Time) error {
	_, err := db.Exec(`UPDATE memories SET swept_at = ? WHERE id = ?`, millis(at), id)
	if err != nil {
		return fmt.Errorf("mark swept %s: %w", id, err)
	}
	return nil
}

// UpdateTier moves a memory to a new storage tier without a stage change,
// guarded by the version check. Used by the sweep's re-tier pass.
func (db *DB) UpdateTier(id string, expectedVersion int, tier model.Tier) error {
	res, err := db.Exec(`
		UPDATE memories SET tier = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND stage != 'deleted'
	`, tier, millis(time.Now()), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update tier %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.classifyTierMiss(id)
	}
	db.cache.drop(id)
	return nil
}

func (db *DB) classifyTierMiss(id string) error {
	var stage string
	err := db.QueryRow(`SELECT stage FROM memories WHERE id = ?`, id).Scan(&stage)
	if err == sql.ErrNoRows || stage == string(model.StageDeleted) {
		return fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("inspect memory %s: %w", id, err)
	}
	return fmt.Errorf("memory %s: %w", id, model.ErrVersionConflict)
}

// --- scanning and encoding helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var m model.Memory
	var blob []byte
	var contextID, projectID, structured, language, source, tags, categories, security sql.NullString
	var compressed int
	var createdAt, updatedAt, accessedAt int64
	var expiresAt sql.NullInt64

	err := row.Scan(&m.ID, &m.Scope.Type, &m.Scope.EntityID, &m.Scope.EntityKind, &contextID, &projectID,
		&blob, &m.ContentType, &structured, &language,
		&source, &m.Source.Reliability, &m.Confidence, &m.Importance, &tags, &categories, &m.Quality,
		&m.AccessCount, &m.AccessFrequency, &m.ModificationCount, &security,
		&m.Stage, &m.Tier, &m.Version, &m.Checksum, &compressed,
		&createdAt, &updatedAt, &accessedAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	m.Compressed = compressed != 0
	if m.Checksum != "" && checksum(blob) != m.Checksum {
		return nil, fmt.Errorf("checksum mismatch for memory %s", m.ID)
	}
	content, err := decodeContent(blob, m.Compressed)
	if err != nil {
		return nil, fmt.Errorf("decode content for %s: %w", m.ID, err)
	}
	m.Content = content

	m.Scope.ContextID = contextID.String
	m.Scope.ProjectID = projectID.String
	m.Language = language.String
	m.Source.Descriptor = source.String
	if structured.Valid && structured.String != "" {
		json.Unmarshal([]byte(structured.String), &m.Structured)
	}
	if tags.Valid && tags.String != "" {
		json.Unmarshal([]byte(tags.String), &m.Tags)
	}
	if categories.Valid && categories.String != "" {
		json.Unmarshal([]byte(categories.String), &m.Categories)
	}
	if security.Valid && security.String != "" {
		json.Unmarshal([]byte(security.String), &m.Security)
	}
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	m.AccessedAt = fromMillis(accessedAt)
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		m.ExpiresAt = &t
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]model.Memory, error) {
	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// encodeContent produces the stored payload blob, gzip-compressing when
// the memory is archived. Checksums always cover the stored form.
func encodeContent(content string, compressed bool) ([]byte, error) {
	if !compressed {
		return []byte(content), nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeContent(blob []byte, compressed bool) (string, error) {
	if !compressed {
		return string(blob), nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return "", err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func checksum(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

func jsonOrEmpty(v any) string {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return ""
		}
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return millis(*t)
}
