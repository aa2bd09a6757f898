package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/logging"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/pkg/vector"
)

// MemoryEvolver consolidates the store: near-duplicate nodes are merged
// into their more important copy, and stale never-accessed trivia is
// pruned. A mutex serializes runs; Evolve is never concurrent with
// itself.
type MemoryEvolver struct {
	store  storage.KnowledgeStore
	cfg    config.MemoryConfig
	logger *zap.Logger

	mu sync.Mutex
}

// EvolutionResult reports what one Evolve pass changed.
type EvolutionResult struct {
	Merged int `json:"merged"`
	Pruned int `json:"pruned"`
}

// NewMemoryEvolver creates an evolver over store.
func NewMemoryEvolver(store storage.KnowledgeStore, cfg config.MemoryConfig, logger *zap.Logger) *MemoryEvolver {
	return &MemoryEvolver{
		store:  store,
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("evolver"),
	}
}

// Evolve runs one merge pass followed by one prune pass. The passes
// are strictly ordered: pruning only ever sees the post-merge store. A
// run that changed at least one node appends a consolidation entry.
func (v *MemoryEvolver) Evolve(ctx context.Context) (EvolutionResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var result EvolutionResult
	if !v.cfg.EvolutionEnabled {
		return result, nil
	}

	merged, err := v.mergePass(ctx)
	if err != nil {
		return result, err
	}
	result.Merged = merged

	pruned, err := v.prunePass(ctx)
	if err != nil {
		return result, err
	}
	result.Pruned = pruned

	if result.Merged+result.Pruned > 0 {
		details := fmt.Sprintf(`{"merged":%d,"pruned":%d}`, result.Merged, result.Pruned)
		if err := v.store.LogConsolidation(ctx, types.OpEvolution, details, result.Merged+result.Pruned); err != nil {
			return result, fmt.Errorf("evolve: log run: %w", err)
		}
		v.logger.Info("evolution pass complete",
			zap.Int("merged", result.Merged), zap.Int("pruned", result.Pruned))
	}
	return result, nil
}

// mergePass folds near-duplicate nodes together. Of each pair at or
// above the similarity threshold, the higher-importance node survives;
// on equal importance the older one does. A node absorbed by a merge is
// out of the running for the rest of the pass.
func (v *MemoryEvolver) mergePass(ctx context.Context) (int, error) {
	candidates, err := v.store.MergeCandidates(ctx, v.cfg.MergeMaxCandidates)
	if err != nil {
		return 0, fmt.Errorf("evolve: load merge candidates: %w", err)
	}
	if len(candidates) < 2 {
		return 0, nil
	}

	vectors := make([][]float32, len(candidates))
	for i, node := range candidates {
		vec, err := vector.FromBlob(node.Embedding)
		if err != nil {
			continue
		}
		vectors[i] = vec
	}

	merged := 0
	absorbed := make(map[int]bool)
	for i := 0; i < len(candidates); i++ {
		if absorbed[i] || vectors[i] == nil {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if absorbed[j] || vectors[j] == nil {
				continue
			}
			sim := vector.Cosine(vectors[i], vectors[j])
			if sim < v.cfg.MergeSimilarityThreshold {
				continue
			}

			keeperIdx, loserIdx := i, j
			if candidates[j].Importance > candidates[i].Importance {
				keeperIdx, loserIdx = j, i
			}
			keeper, loser := candidates[keeperIdx], candidates[loserIdx]

			if err := v.store.AddEdge(ctx, &types.KnowledgeEdge{
				SourceID: keeper.ID,
				TargetID: loser.ID,
				Relation: types.RelationMergedFrom,
				Weight:   sim,
			}); err != nil {
				return merged, fmt.Errorf("evolve: record merge: %w", err)
			}
			if err := v.store.DeleteNode(ctx, loser.ID); err != nil {
				return merged, fmt.Errorf("evolve: delete merged node %d: %w", loser.ID, err)
			}
			absorbed[loserIdx] = true
			merged++
			v.logger.Debug("merged duplicate memory",
				zap.Int64("keeper", keeper.ID), zap.Int64("absorbed", loser.ID),
				zap.Float64("similarity", sim))

			if loserIdx == i {
				break
			}
		}
	}
	return merged, nil
}

// prunePass deletes nodes that are unimportant, never accessed, and
// older than twice the recency half-life. All three conditions are
// required.
func (v *MemoryEvolver) prunePass(ctx context.Context) (int, error) {
	candidates, err := v.store.PruneCandidates(ctx, v.cfg.MergeMaxCandidates)
	if err != nil {
		return 0, fmt.Errorf("evolve: load prune candidates: %w", err)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(2*v.cfg.RecencyHalfLifeDays*24) * time.Hour)
	pruned := 0
	for _, node := range candidates {
		if node.Importance > v.cfg.PruneImportanceThreshold {
			continue
		}
		if node.AccessCount != 0 || node.CreatedAt.After(cutoff) {
			continue
		}
		if err := v.store.DeleteNode(ctx, node.ID); err != nil {
			return pruned, fmt.Errorf("evolve: prune node %d: %w", node.ID, err)
		}
		pruned++
	}
	return pruned, nil
}
