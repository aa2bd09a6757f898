package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// AddEdge inserts an edge. An edge that already exists on
// (source, target, relation) is left untouched.
func (s *Store) AddEdge(ctx context.Context, edge *types.KnowledgeEdge) error {
	if edge == nil || edge.Relation == "" {
		return fmt.Errorf("%w: edge relation is required", storage.ErrInvalidInput)
	}
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO knowledge_edges (id, source_id, target_id, relation, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.SourceID, edge.TargetID, edge.Relation, edge.Weight, edge.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: insert edge: %w", err)
	}
	return nil
}

// GetNeighbors returns edges incident to a node, strongest first.
func (s *Store) GetNeighbors(ctx context.Context, nodeID int64, limit int) ([]types.KnowledgeEdge, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, relation, weight, created_at
		FROM knowledge_edges
		WHERE source_id = ? OR target_id = ?
		ORDER BY weight DESC
		LIMIT ?`, nodeID, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get neighbors of %d: %w", nodeID, err)
	}
	defer rows.Close()

	var edges []types.KnowledgeEdge
	for rows.Next() {
		var e types.KnowledgeEdge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Weight, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate edges: %w", err)
	}
	return edges, nil
}

// ConnectedNodes expands breadth-first from all seeds at once. Edges are
// followed in both directions. Each node is visited at most once and
// carries the maximum edge weight seen on any path that discovered it;
// path weights never accumulate. Seeds are excluded from the result.
func (s *Store) ConnectedNodes(ctx context.Context, seedIDs []int64, maxHops, limit int) ([]types.GraphNeighbor, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}
	if maxHops < 1 {
		maxHops = 2
	}
	if limit < 1 {
		limit = 30
	}

	seeds := make(map[int64]bool, len(seedIDs))
	expanded := make(map[int64]bool, len(seedIDs))
	frontier := make([]int64, 0, len(seedIDs))
	for _, id := range seedIDs {
		if !seeds[id] {
			seeds[id] = true
			frontier = append(frontier, id)
		}
	}
	discovered := make(map[int64]float64)

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		args := make([]any, 0, len(frontier)*2)
		for _, id := range frontier {
			args = append(args, id)
		}
		for _, id := range frontier {
			args = append(args, id)
		}
		in := buildInClause(len(frontier))
		rows, err := s.db.QueryContext(ctx, `
			SELECT source_id, target_id, weight
			FROM knowledge_edges
			WHERE source_id IN (`+in+`) OR target_id IN (`+in+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("sqlite: traverse hop %d: %w", hop+1, err)
		}

		for _, id := range frontier {
			expanded[id] = true
		}
		nextSet := make(map[int64]bool)
		for rows.Next() {
			var source, target int64
			var weight float64
			if err := rows.Scan(&source, &target, &weight); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: scan traversal edge: %w", err)
			}
			for _, id := range []int64{source, target} {
				if seeds[id] {
					continue
				}
				if weight > discovered[id] {
					discovered[id] = weight
				}
				if !expanded[id] {
					nextSet[id] = true
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: iterate traversal edges: %w", err)
		}
		rows.Close()

		frontier = frontier[:0]
		for id := range nextSet {
			frontier = append(frontier, id)
		}
	}

	neighbors := make([]types.GraphNeighbor, 0, len(discovered))
	for id, weight := range discovered {
		neighbors = append(neighbors, types.GraphNeighbor{NodeID: id, Weight: weight})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Weight != neighbors[j].Weight {
			return neighbors[i].Weight > neighbors[j].Weight
		}
		return neighbors[i].NodeID < neighbors[j].NodeID
	})
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}
