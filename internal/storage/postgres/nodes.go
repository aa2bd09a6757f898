package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/pkg/vector"
)

const nodeColumns = `id, content, memory_type, source_type, importance, confidence,
	platform, author, created_at, last_accessed_at, access_count, embedding, metadata`

// vecColumn converts an embedding blob to the pgvector column value.
// Blobs whose dimension does not match the column are stored as NULL so
// VectorSearch simply skips them.
func vecColumn(blob []byte) any {
	vec, err := vector.FromBlob(blob)
	if err != nil || len(vec) != EmbeddingDim {
		return nil
	}
	return pgvector.NewVector(vec)
}

// AddNode inserts a node and returns its assigned ID.
func (s *Store) AddNode(ctx context.Context, node *types.KnowledgeNode) (int64, error) {
	if node == nil || node.Content == "" {
		return 0, fmt.Errorf("%w: node content is required", storage.ErrInvalidInput)
	}
	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	if node.LastAccessedAt.IsZero() {
		node.LastAccessedAt = node.CreatedAt
	}
	if node.Importance == 0 {
		node.Importance = 0.5
	}
	if node.Confidence == 0 {
		node.Confidence = 0.7
	}

	var metadataJSON any
	if !node.Metadata.IsZero() {
		raw, err := json.Marshal(node.Metadata)
		if err != nil {
			return 0, fmt.Errorf("postgres: marshal node metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO knowledge_nodes
			(content, memory_type, source_type, importance, confidence,
			 platform, author, created_at, last_accessed_at, access_count,
			 embedding, embedding_vec, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		node.Content, string(node.MemoryType), string(node.SourceType),
		node.Importance, node.Confidence,
		nullableString(node.Platform), nullableString(node.Author),
		node.CreatedAt, node.LastAccessedAt, node.AccessCount,
		node.Embedding, vecColumn(node.Embedding), metadataJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert node: %w", err)
	}
	node.ID = id
	return id, nil
}

// GetNode returns a node by ID, or storage.ErrNotFound.
func (s *Store) GetNode(ctx context.Context, id int64) (*types.KnowledgeNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM knowledge_nodes WHERE id = $1`, id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get node %d: %w", id, err)
	}
	return node, nil
}

// GetNodesByIDs returns the nodes that exist among ids.
func (s *Store) GetNodesByIDs(ctx context.Context, ids []int64) ([]types.KnowledgeNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM knowledge_nodes WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get nodes by ids: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// TouchNode records an access on the node.
func (s *Store) TouchNode(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_nodes
		SET last_accessed_at = $1, access_count = access_count + 1
		WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: touch node %d: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateNodeImportance replaces a node's importance score.
func (s *Store) UpdateNodeImportance(ctx context.Context, id int64, importance float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_nodes SET importance = $1 WHERE id = $2`, importance, id)
	if err != nil {
		return fmt.Errorf("postgres: update node %d importance: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateNodeContent replaces a node's content; the tsvector column is
// generated, so full-text follows automatically.
func (s *Store) UpdateNodeContent(ctx context.Context, id int64, content string) error {
	if content == "" {
		return fmt.Errorf("%w: node content is required", storage.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_nodes SET content = $1 WHERE id = $2`, content, id)
	if err != nil {
		return fmt.Errorf("postgres: update node %d content: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateNodeEmbedding stores the blob and refreshes the vector column.
func (s *Store) UpdateNodeEmbedding(ctx context.Context, id int64, embedding []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_nodes SET embedding = $1, embedding_vec = $2 WHERE id = $3`,
		embedding, vecColumn(embedding), id)
	if err != nil {
		return fmt.Errorf("postgres: update node %d embedding: %w", id, err)
	}
	return requireRow(res, id)
}

// DeleteNode removes a node; incident edges cascade.
func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete node %d: %w", id, err)
	}
	return requireRow(res, id)
}

// EmbeddingCandidates returns embedding-bearing nodes, most recently
// accessed first.
func (s *Store) EmbeddingCandidates(ctx context.Context, limit int, filter storage.CandidateFilter) ([]types.KnowledgeNode, error) {
	if limit < 1 {
		limit = 100
	}
	query := `SELECT ` + nodeColumns + ` FROM knowledge_nodes WHERE embedding IS NOT NULL`
	args := []any{}
	if filter.MemoryType != "" {
		args = append(args, filter.MemoryType)
		query += fmt.Sprintf(` AND memory_type = $%d`, len(args))
	}
	if filter.Author != "" {
		args = append(args, filter.Author)
		query += fmt.Sprintf(` AND author = $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY last_accessed_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: embedding candidates: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// MergeCandidates returns embedding-bearing nodes, oldest first.
func (s *Store) MergeCandidates(ctx context.Context, limit int) ([]types.KnowledgeNode, error) {
	if limit < 1 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM knowledge_nodes
		WHERE embedding IS NOT NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: merge candidates: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// PruneCandidates returns never-accessed nodes, least important first.
func (s *Store) PruneCandidates(ctx context.Context, limit int) ([]types.KnowledgeNode, error) {
	if limit < 1 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM knowledge_nodes
		WHERE access_count = 0
		ORDER BY importance ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: prune candidates: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountNodesSince counts nodes created strictly after t.
func (s *Store) CountNodesSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_nodes WHERE created_at > $1`, t.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count nodes since: %w", err)
	}
	return n, nil
}

// RecentNodes returns nodes matching the filter, newest first.
func (s *Store) RecentNodes(ctx context.Context, filter storage.NodeFilter) ([]types.KnowledgeNode, error) {
	filter.Normalize()
	query := `SELECT ` + nodeColumns + ` FROM knowledge_nodes WHERE TRUE`
	args := []any{}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		query += fmt.Sprintf(` AND platform = $%d`, len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += fmt.Sprintf(` AND created_at > $%d`, len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// NodeCount returns the total number of nodes.
func (s *Store) NodeCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: node count: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*types.KnowledgeNode, error) {
	var (
		node                   types.KnowledgeNode
		memoryType, sourceType string
		platform, author       sql.NullString
		metadataJSON           sql.NullString
	)
	err := row.Scan(
		&node.ID, &node.Content, &memoryType, &sourceType,
		&node.Importance, &node.Confidence,
		&platform, &author,
		&node.CreatedAt, &node.LastAccessedAt, &node.AccessCount,
		&node.Embedding, &metadataJSON,
	)
	if err != nil {
		return nil, err
	}
	node.MemoryType = types.MemoryType(memoryType)
	node.SourceType = types.SourceType(sourceType)
	node.Platform = platform.String
	node.Author = author.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &node.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal node %d metadata: %w", node.ID, err)
		}
	}
	return &node, nil
}

func scanNodes(rows *sql.Rows) ([]types.KnowledgeNode, error) {
	var nodes []types.KnowledgeNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan node: %w", err)
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate nodes: %w", err)
	}
	return nodes, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected for %d: %w", id, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
