package postgres

import "fmt"

// Schema is the embedded PostgreSQL schema, idempotent on every open.
// content_tsv is a stored generated column so full-text stays in sync
// with content without triggers; embedding_vec mirrors the embedding
// blob for in-database similarity ranking.
var Schema = fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_nodes (
	id                BIGSERIAL PRIMARY KEY,
	content           TEXT NOT NULL,
	memory_type       TEXT NOT NULL DEFAULT 'fact',
	source_type       TEXT NOT NULL DEFAULT 'auto_capture',
	importance        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0.7,
	platform          TEXT,
	author            TEXT,
	created_at        TIMESTAMPTZ NOT NULL,
	last_accessed_at  TIMESTAMPTZ NOT NULL,
	access_count      INTEGER NOT NULL DEFAULT 0,
	embedding         BYTEA,
	embedding_vec     vector(%d),
	metadata          JSONB,
	content_tsv       tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_nodes_author ON knowledge_nodes(author);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON knowledge_nodes(memory_type);
CREATE INDEX IF NOT EXISTS idx_nodes_created ON knowledge_nodes(created_at);
CREATE INDEX IF NOT EXISTS idx_nodes_accessed ON knowledge_nodes(last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_nodes_tsv ON knowledge_nodes USING GIN (content_tsv);

CREATE TABLE IF NOT EXISTS knowledge_edges (
	id          TEXT PRIMARY KEY,
	source_id   BIGINT NOT NULL REFERENCES knowledge_nodes(id) ON DELETE CASCADE,
	target_id   BIGINT NOT NULL REFERENCES knowledge_nodes(id) ON DELETE CASCADE,
	relation    TEXT NOT NULL,
	weight      DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (source_id, target_id, relation)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON knowledge_edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON knowledge_edges(target_id);

CREATE TABLE IF NOT EXISTS entity_profiles (
	id                    BIGSERIAL PRIMARY KEY,
	platform              TEXT NOT NULL,
	entity_name           TEXT NOT NULL,
	entity_type           TEXT,
	display_name          TEXT,
	summary               TEXT,
	interests             JSONB,
	personality_notes     TEXT,
	first_interaction_at  TIMESTAMPTZ NOT NULL,
	last_interaction_at   TIMESTAMPTZ NOT NULL,
	interaction_count     INTEGER NOT NULL DEFAULT 1,
	sentiment             TEXT NOT NULL DEFAULT 'neutral',
	sentiment_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	trust_level           DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	embedding             BYTEA,
	UNIQUE (platform, entity_name)
);

CREATE INDEX IF NOT EXISTS idx_entities_interactions ON entity_profiles(interaction_count);

CREATE TABLE IF NOT EXISTS sentiment_history (
	id          BIGSERIAL PRIMARY KEY,
	entity_id   BIGINT NOT NULL REFERENCES entity_profiles(id) ON DELETE CASCADE,
	sentiment   TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	context     TEXT,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sentiment_entity ON sentiment_history(entity_id, recorded_at);

CREATE TABLE IF NOT EXISTS consolidation_log (
	id              BIGSERIAL PRIMARY KEY,
	operation       TEXT NOT NULL,
	details         TEXT,
	nodes_affected  INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consolidation_op ON consolidation_log(operation, created_at);

CREATE TABLE IF NOT EXISTS memory_sessions (
	id          TEXT PRIMARY KEY,
	platform    TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ,
	turn_count  INTEGER NOT NULL DEFAULT 0,
	topic       TEXT,
	summary     TEXT
);
`, EmbeddingDim)
