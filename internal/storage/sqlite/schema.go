package sqlite

// Schema is the embedded SQLite schema. It is idempotent; New applies it
// on every open. The FTS5 table stores no content of its own and is kept
// in sync with knowledge_nodes by the three triggers below.
const Schema = `
CREATE TABLE IF NOT EXISTS knowledge_nodes (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	content           TEXT NOT NULL,
	memory_type       TEXT NOT NULL DEFAULT 'fact',
	source_type       TEXT NOT NULL DEFAULT 'auto_capture',
	importance        REAL NOT NULL DEFAULT 0.5,
	confidence        REAL NOT NULL DEFAULT 0.7,
	platform          TEXT,
	author            TEXT,
	created_at        TIMESTAMP NOT NULL,
	last_accessed_at  TIMESTAMP NOT NULL,
	access_count      INTEGER NOT NULL DEFAULT 0,
	embedding         BLOB,
	metadata          TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_author ON knowledge_nodes(author);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON knowledge_nodes(memory_type);
CREATE INDEX IF NOT EXISTS idx_nodes_created ON knowledge_nodes(created_at);
CREATE INDEX IF NOT EXISTS idx_nodes_accessed ON knowledge_nodes(last_accessed_at);

CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
	content,
	content='knowledge_nodes',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS knowledge_fts_ai AFTER INSERT ON knowledge_nodes BEGIN
	INSERT INTO knowledge_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS knowledge_fts_ad AFTER DELETE ON knowledge_nodes BEGIN
	INSERT INTO knowledge_fts(knowledge_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS knowledge_fts_au AFTER UPDATE OF content ON knowledge_nodes BEGIN
	INSERT INTO knowledge_fts(knowledge_fts, rowid, content) VALUES ('delete', old.id, old.content);
	INSERT INTO knowledge_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TABLE IF NOT EXISTS knowledge_edges (
	id          TEXT PRIMARY KEY,
	source_id   INTEGER NOT NULL REFERENCES knowledge_nodes(id) ON DELETE CASCADE,
	target_id   INTEGER NOT NULL REFERENCES knowledge_nodes(id) ON DELETE CASCADE,
	relation    TEXT NOT NULL,
	weight      REAL NOT NULL DEFAULT 0.5,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE (source_id, target_id, relation)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON knowledge_edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON knowledge_edges(target_id);

CREATE TABLE IF NOT EXISTS entity_profiles (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	platform              TEXT NOT NULL,
	entity_name           TEXT NOT NULL,
	entity_type           TEXT,
	display_name          TEXT,
	summary               TEXT,
	interests             TEXT,
	personality_notes     TEXT,
	first_interaction_at  TIMESTAMP NOT NULL,
	last_interaction_at   TIMESTAMP NOT NULL,
	interaction_count     INTEGER NOT NULL DEFAULT 1,
	sentiment             TEXT NOT NULL DEFAULT 'neutral',
	sentiment_score       REAL NOT NULL DEFAULT 0,
	trust_level           REAL NOT NULL DEFAULT 0.5,
	embedding             BLOB,
	UNIQUE (platform, entity_name)
);

CREATE INDEX IF NOT EXISTS idx_entities_interactions ON entity_profiles(interaction_count);

CREATE TABLE IF NOT EXISTS sentiment_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id   INTEGER NOT NULL REFERENCES entity_profiles(id) ON DELETE CASCADE,
	sentiment   TEXT NOT NULL,
	score       REAL NOT NULL DEFAULT 0,
	context     TEXT,
	recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sentiment_entity ON sentiment_history(entity_id, recorded_at);

CREATE TABLE IF NOT EXISTS consolidation_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	operation       TEXT NOT NULL,
	details         TEXT,
	nodes_affected  INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consolidation_op ON consolidation_log(operation, created_at);

CREATE TABLE IF NOT EXISTS memory_sessions (
	id          TEXT PRIMARY KEY,
	platform    TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP,
	turn_count  INTEGER NOT NULL DEFAULT 0,
	topic       TEXT,
	summary     TEXT
);
`
