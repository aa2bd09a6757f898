// Package postgres implements storage.KnowledgeStore on PostgreSQL.
// Full-text search uses a generated tsvector column; vector similarity
// runs in the database via the pgvector extension, so the retriever can
// skip loading embedding blobs client-side.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/engramlabs/engram/internal/storage"
)

// EmbeddingDim is the dimensionality of the vector column. Provider
// embedding sizes must match or VectorSearch degrades to blob scans.
const EmbeddingDim = 768

// Store implements storage.KnowledgeStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ storage.KnowledgeStore = (*Store)(nil)
	_ storage.VectorSearcher = (*Store)(nil)
)

// New connects to PostgreSQL, verifies the connection, and applies the
// embedded schema. The pgvector extension must be installable by the
// connecting role.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RunMigrations applies pending SQL-file migrations from dir.
func (s *Store) RunMigrations(dir string) error {
	m, err := storage.NewMigrator(s.db, dir)
	if err != nil {
		return fmt.Errorf("postgres: migrator: %w", err)
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
