// Package storage defines the persistence contracts for the memory
// subsystem. Backends (sqlite, postgres) implement KnowledgeStore; the
// engine depends only on these interfaces.
package storage

import (
	"context"
	"time"

	"github.com/engramlabs/engram/pkg/types"
)

// NodeStore manages knowledge nodes. Deletes are hard deletes: a removed
// node disappears from search, traversal, and scoring immediately.
type NodeStore interface {
	// AddNode inserts a node and returns its assigned ID.
	AddNode(ctx context.Context, node *types.KnowledgeNode) (int64, error)

	// GetNode returns a node by ID, or ErrNotFound.
	GetNode(ctx context.Context, id int64) (*types.KnowledgeNode, error)

	// GetNodesByIDs returns the nodes that exist among ids, in no
	// particular order. Missing IDs are skipped, not errors.
	GetNodesByIDs(ctx context.Context, ids []int64) ([]types.KnowledgeNode, error)

	// TouchNode records an access: last_accessed_at = now and
	// access_count incremented by one.
	TouchNode(ctx context.Context, id int64) error

	// UpdateNodeImportance replaces a node's importance score.
	UpdateNodeImportance(ctx context.Context, id int64, importance float64) error

	// UpdateNodeContent replaces a node's content, keeping the
	// full-text index in sync.
	UpdateNodeContent(ctx context.Context, id int64, content string) error

	// UpdateNodeEmbedding stores the serialized embedding blob.
	UpdateNodeEmbedding(ctx context.Context, id int64, embedding []byte) error

	// DeleteNode removes a node and its incident edges.
	DeleteNode(ctx context.Context, id int64) error

	// EmbeddingCandidates returns embedding-bearing nodes ordered by
	// last access, newest first, for the vector channel.
	EmbeddingCandidates(ctx context.Context, limit int, filter CandidateFilter) ([]types.KnowledgeNode, error)

	// MergeCandidates returns embedding-bearing nodes for a merge pass.
	MergeCandidates(ctx context.Context, limit int) ([]types.KnowledgeNode, error)

	// PruneCandidates returns never-accessed nodes ordered by
	// importance ascending.
	PruneCandidates(ctx context.Context, limit int) ([]types.KnowledgeNode, error)

	// CountNodesSince counts nodes created strictly after t.
	CountNodesSince(ctx context.Context, t time.Time) (int, error)

	// RecentNodes returns nodes matching the filter, newest first.
	RecentNodes(ctx context.Context, filter NodeFilter) ([]types.KnowledgeNode, error)

	// NodeCount returns the total number of nodes.
	NodeCount(ctx context.Context) (int, error)
}

// SearchProvider exposes full-text search over node content. Queries are
// sanitized before reaching the index; a query with no usable tokens
// returns an empty result, never an error.
type SearchProvider interface {
	FTSSearch(ctx context.Context, query string, limit int) ([]FTSMatch, error)
}

// GraphProvider manages edges and traversal.
type GraphProvider interface {
	// AddEdge inserts an edge. Inserting an edge that already exists
	// on (source, target, relation) is a no-op.
	AddEdge(ctx context.Context, edge *types.KnowledgeEdge) error

	// GetNeighbors returns edges incident to a node, strongest first.
	GetNeighbors(ctx context.Context, nodeID int64, limit int) ([]types.KnowledgeEdge, error)

	// ConnectedNodes runs a breadth-first expansion from all seeds at
	// once, up to maxHops, visiting each node at most once. Each
	// discovered node carries the maximum edge weight seen on any path
	// that reached it. Results are ordered by that weight descending
	// and truncated to limit. Seeds themselves are not returned.
	ConnectedNodes(ctx context.Context, seedIDs []int64, maxHops, limit int) ([]types.GraphNeighbor, error)
}

// VectorSearcher is implemented by backends that can rank nodes by
// embedding similarity inside the database. The retriever prefers it
// over loading candidate blobs and computing cosine client-side.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, query []float32, limit int) ([]VectorMatch, error)
}

// EntityStore manages entity profiles and their sentiment history.
type EntityStore interface {
	// UpsertEntity creates or refreshes a profile keyed on
	// (platform, entity_name): interaction_count is incremented,
	// last_interaction_at refreshed, and existing summary or
	// display_name are never overwritten by empty values.
	UpsertEntity(ctx context.Context, profile *types.EntityProfile) (int64, error)

	GetEntity(ctx context.Context, platform, entityName string) (*types.EntityProfile, error)
	GetEntityByID(ctx context.Context, id int64) (*types.EntityProfile, error)
	UpdateEntitySummary(ctx context.Context, id int64, summary string) error
	UpdateEntitySentiment(ctx context.Context, id int64, sentiment string, score float64) error
	UpdateEntityEmbedding(ctx context.Context, id int64, embedding []byte) error

	// FrequentEntities returns profiles ordered by interaction count
	// descending. Empty platform means all platforms.
	FrequentEntities(ctx context.Context, platform string, limit int) ([]types.EntityProfile, error)

	AddSentimentEntry(ctx context.Context, entry *types.SentimentEntry) error
	SentimentTrajectory(ctx context.Context, entityID int64, limit int) ([]types.SentimentEntry, error)
}

// ConsolidationLog is the append-only record of maintenance runs.
type ConsolidationLog interface {
	LogConsolidation(ctx context.Context, operation, details string, nodesAffected int) error

	// LastConsolidation returns the most recent entry for an
	// operation, or ErrNotFound if the operation never ran.
	LastConsolidation(ctx context.Context, operation string) (*types.ConsolidationEntry, error)
}

// SessionStore tracks conversational sessions.
type SessionStore interface {
	StartSession(ctx context.Context, platform string) (*types.MemorySession, error)
	EndSession(ctx context.Context, id, summary, topic string) error
	IncrementSessionTurns(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*types.MemorySession, error)
}

// KnowledgeStore is the complete persistence surface of the memory
// subsystem.
type KnowledgeStore interface {
	NodeStore
	SearchProvider
	GraphProvider
	EntityStore
	ConsolidationLog
	SessionStore

	// Close releases the underlying database handle.
	Close() error
}
