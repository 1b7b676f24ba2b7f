package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: tiered memory records",
		SQL: `
CREATE TABLE memories (
    id             TEXT PRIMARY KEY,

    -- Scope tuple
    scope_type     TEXT NOT NULL CHECK (scope_type IN ('short_term', 'long_term', 'persona', 'team', 'decision_context', 'system_state', 'feedback', 'learned_pattern')),
    entity_id      TEXT NOT NULL,
    entity_kind    TEXT NOT NULL,
    context_id     TEXT,
    project_id     TEXT,

    -- Payload
    content        BLOB NOT NULL,
    content_type   TEXT NOT NULL DEFAULT 'text/plain',
    structured     TEXT,
    language       TEXT,

    -- Provenance and trust
    source         TEXT,
    reliability    REAL NOT NULL DEFAULT 1.0,
    confidence     REAL NOT NULL DEFAULT 1.0,
    importance     TEXT NOT NULL DEFAULT 'medium' CHECK (importance IN ('ephemeral', 'low', 'medium', 'high', 'critical')),
    tags           TEXT,
    categories     TEXT,
    quality        REAL NOT NULL DEFAULT 0,

    -- Usage statistics
    access_count   INTEGER NOT NULL DEFAULT 0,
    access_freq    REAL NOT NULL DEFAULT 0,
    mod_count      INTEGER NOT NULL DEFAULT 0,

    -- Security context (JSON)
    security       TEXT,

    -- Lifecycle
    stage          TEXT NOT NULL DEFAULT 'active' CHECK (stage IN ('active', 'promoted', 'demoted', 'archived', 'deleted')),
    tier           TEXT NOT NULL DEFAULT 'hot' CHECK (tier IN ('hot', 'warm', 'cold', 'frozen')),
    version        INTEGER NOT NULL DEFAULT 1,
    checksum       TEXT NOT NULL,
    compressed     INTEGER NOT NULL DEFAULT 0,
    swept_at       INTEGER,

    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    accessed_at    INTEGER NOT NULL,
    expires_at     INTEGER
);

CREATE INDEX idx_memories_entity     ON memories(entity_id, scope_type);
CREATE INDEX idx_memories_context    ON memories(context_id);
CREATE INDEX idx_memories_project    ON memories(project_id);
CREATE INDEX idx_memories_stage_tier ON memories(stage, tier);
CREATE INDEX idx_memories_importance ON memories(importance);
CREATE INDEX idx_memories_expires    ON memories(expires_at);
CREATE INDEX idx_memories_accessed   ON memories(accessed_at DESC);
CREATE INDEX idx_memories_created    ON memories(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "relationships: typed weighted edges between memories",
		SQL: `
CREATE TABLE relationships (
    id          TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL REFERENCES memories(id),
    target_id   TEXT NOT NULL REFERENCES memories(id),
    rel_type    TEXT NOT NULL,
    strength    REAL NOT NULL CHECK (strength >= 0 AND strength <= 1),
    confidence  REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    context     TEXT,
    created_by  TEXT NOT NULL,
    created_at  INTEGER NOT NULL,

    CHECK (source_id != target_id),
    UNIQUE (source_id, target_id, rel_type)
);

CREATE INDEX idx_rel_source ON relationships(source_id);
CREATE INDEX idx_rel_target ON relationships(target_id);
`,
	},
	{
		Version:     3,
		Description: "clusters: named memory groups with coherence",
		SQL: `
CREATE TABLE clusters (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    cluster_type TEXT NOT NULL CHECK (cluster_type IN ('topical', 'temporal', 'causal')),
    coherence    REAL NOT NULL DEFAULT 1.0,

    -- members_changed_at > coherence_at means the score is stale
    members_changed_at INTEGER NOT NULL,
    coherence_at       INTEGER NOT NULL,

    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE cluster_members (
    cluster_id  TEXT NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
    memory_id   TEXT NOT NULL REFERENCES memories(id),
    added_at    INTEGER NOT NULL,
    PRIMARY KEY (cluster_id, memory_id)
);

CREATE INDEX idx_cm_memory ON cluster_members(memory_id);
`,
	},
	{
		Version:     4,
		Description: "transitions: lifecycle stage audit log",
		SQL: `
CREATE TABLE transitions (
    id          INTEGER PRIMARY KEY,
    memory_id   TEXT NOT NULL,
    from_stage  TEXT NOT NULL,
    to_stage    TEXT NOT NULL,
    reason      TEXT,
    actor       TEXT NOT NULL,
    automatic   INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_trans_memory  ON transitions(memory_id);
CREATE INDEX idx_trans_created ON transitions(created_at DESC);
`,
	},
	{
		Version:     5,
		Description: "mem_vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE mem_vectors (
    memory_id  TEXT PRIMARY KEY REFERENCES memories(id),
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
