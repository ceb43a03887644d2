// Package sqlite provides a SQLite-backed GraphStore.
package sqlite

// Schema contains the DDL for the graph tables. Every statement is
// idempotent, so the constant is applied on every open.
//
// The relationships table deliberately has no foreign keys: edges may point
// at IDs no stored entity carries (imports of external modules, references
// into files that were never extracted).
const Schema = `
-- Entities: one row per extracted entity, upserted by ID.
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    content TEXT,

    -- Open metadata map (JSON object)
    metadata TEXT,

    -- Inline relationships as written by the extractor (JSON array)
    relationships TEXT,

    -- Monotonic write sequence used for recency ordering
    touched INTEGER NOT NULL DEFAULT 0,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_source ON entities(source);
CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_touched ON entities(touched DESC);

-- Edges: directed, typed, deduplicated by (source, target, kind).
-- origin records which extraction pass wrote the edge so DeleteBySource
-- can remove a file's contribution.
CREATE TABLE IF NOT EXISTS relationships (
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    origin TEXT NOT NULL,

    metadata TEXT,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (source_id, target_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_kind ON relationships(kind);
CREATE INDEX IF NOT EXISTS idx_relationships_origin ON relationships(origin);
`
