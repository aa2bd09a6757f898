package types

import "time"

// Well-known edge relations. Extraction also writes triple predicates
// verbatim as relations, so this list is not exhaustive.
const (
	RelationRelatedTo   = "related_to"
	RelationMergedFrom  = "merged_from"  // Survivor of a merge points at the absorbed node
	RelationDerivedFrom = "derived_from" // Insight points at a source node
)

// KnowledgeEdge is a weighted directed edge between two nodes. Edges are
// unique on (source, target, relation); re-inserting an existing edge is
// a no-op.
type KnowledgeEdge struct {
	ID        string    `json:"id"` // UUID
	SourceID  int64     `json:"source_id"`
	TargetID  int64     `json:"target_id"`
	Relation  string    `json:"relation"`
	Weight    float64   `json:"weight"` // [0,1]
	CreatedAt time.Time `json:"created_at"`
}

// GraphNeighbor is a node reached by traversal together with the maximum
// edge weight seen on any path that discovered it.
type GraphNeighbor struct {
	NodeID int64   `json:"node_id"`
	Weight float64 `json:"weight"`
}
