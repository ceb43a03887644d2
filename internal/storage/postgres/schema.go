// Package postgres provides a PostgreSQL-backed GraphStore with an optional
// pgvector embedding sidecar.
package postgres

// Schema contains the DDL for the graph tables. All statements are
// idempotent so the constant is applied on every open.
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

    -- Open metadata map
    metadata JSONB,

    -- Inline relationships as written by the extractor
    relationships JSONB,

    -- Monotonic write sequence used for recency ordering
    touched BIGINT NOT NULL DEFAULT 0,

    -- Stable creation order (upserts keep the original value)
    seq BIGSERIAL,

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

    metadata JSONB,

    seq BIGSERIAL,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (source_id, target_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_kind ON relationships(kind);
CREATE INDEX IF NOT EXISTS idx_relationships_origin ON relationships(origin);

-- Embeddings: vector per entity. The BYTEA column is always written;
-- embedding_vec is added by MigrationPgvector when the extension exists.
CREATE TABLE IF NOT EXISTS embeddings (
    entity_id TEXT PRIMARY KEY,
    embedding BYTEA NOT NULL, -- packed little-endian float32
    dimension INTEGER NOT NULL,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// MigrationPgvector adds the pgvector column to the embeddings table. Only
// applied when the vector extension is available. Safe to run repeatedly.
const MigrationPgvector = `
-- Add embedding_vec column if it doesn't already exist.
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'embeddings' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE embeddings ADD COLUMN embedding_vec vector;
    END IF;
END
$$;

-- ivfflat needs at least one row before the index helps; guard so an empty
-- table doesn't fail the migration.
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_embeddings_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM embeddings LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_embeddings_vec_cosine ON embeddings USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
