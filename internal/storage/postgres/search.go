package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/engramlabs/engram/internal/storage"
)

// FTSSearch runs a full-text query via plainto_tsquery, which treats the
// input as plain words and drops operator syntax on its own. A query
// that reduces to an empty tsquery matches nothing.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int) ([]storage.FTSMatch, error) {
	if limit < 1 {
		limit = 20
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts_rank(content_tsv, plainto_tsquery('english', $1))
		FROM knowledge_nodes
		WHERE content_tsv @@ plainto_tsquery('english', $1)
		ORDER BY 2 DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fts search: %w", err)
	}
	defer rows.Close()

	var matches []storage.FTSMatch
	for rows.Next() {
		var m storage.FTSMatch
		if err := rows.Scan(&m.NodeID, &m.Rank); err != nil {
			return nil, fmt.Errorf("postgres: scan fts match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate fts matches: %w", err)
	}
	return matches, nil
}

// VectorSearch ranks nodes by cosine similarity to the query vector
// using the pgvector column. Vectors of the wrong dimension are NULL in
// that column and never surface.
func (s *Store) VectorSearch(ctx context.Context, query []float32, limit int) ([]storage.VectorMatch, error) {
	if len(query) != EmbeddingDim {
		return nil, fmt.Errorf("%w: query vector dimension %d, column is %d",
			storage.ErrInvalidInput, len(query), EmbeddingDim)
	}
	if limit < 1 {
		limit = 100
	}

	qv := pgvector.NewVector(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, 1 - (embedding_vec <=> $1)
		FROM knowledge_nodes
		WHERE embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $1
		LIMIT $2`, qv, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer rows.Close()

	var matches []storage.VectorMatch
	for rows.Next() {
		var m storage.VectorMatch
		if err := rows.Scan(&m.NodeID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan vector match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate vector matches: %w", err)
	}
	return matches, nil
}
