package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/logging"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// Channel weights for score fusion. A node found by only some channels
// is averaged over the channels that actually saw it, so absence from a
// channel never drags the fused score down.
const (
	fusionWeightVector = 0.5
	fusionWeightFTS    = 0.3
	fusionWeightGraph  = 0.2
)

// HybridRetriever surfaces memories through three channels: embedding
// similarity, full-text search, and graph expansion from the strongest
// hits of the first two. Channel scores are fused, then blended with
// recency and importance for the final ordering.
type HybridRetriever struct {
	store      storage.KnowledgeStore
	embeddings *EmbeddingService
	cfg        config.MemoryConfig
	logger     *zap.Logger
}

// NewHybridRetriever creates a retriever over store.
func NewHybridRetriever(store storage.KnowledgeStore, embeddings *EmbeddingService, cfg config.MemoryConfig, logger *zap.Logger) *HybridRetriever {
	return &HybridRetriever{
		store:      store,
		embeddings: embeddings,
		cfg:        cfg,
		logger:     logging.OrNop(logger).Named("retriever"),
	}
}

// Retrieve returns up to limit memories relevant to query, best first.
// An embedding provider failure degrades to text and graph channels; it
// is not an error. Every returned node has its access recorded.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, limit int) ([]types.RetrievalResult, error) {
	if query == "" {
		return nil, fmt.Errorf("retrieve: empty query")
	}
	if limit <= 0 {
		limit = r.cfg.RetrievalLimit
	}

	var (
		vecScores   map[int64]float64
		ftsScores   map[int64]float64
		graphScores map[int64]float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scores, err := r.vectorChannel(gctx, query)
		if err != nil {
			return err
		}
		vecScores = scores
		return nil
	})
	g.Go(func() error {
		scores, err := r.ftsChannel(gctx, query)
		if err != nil {
			return err
		}
		ftsScores = scores
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seeds := topSeeds(vecScores, ftsScores, r.cfg.GraphSeedTopK)
	if len(seeds) > 0 {
		neighbors, err := r.store.ConnectedNodes(ctx, seeds, r.cfg.GraphMaxHops, r.cfg.GraphLimit)
		if err != nil {
			return nil, fmt.Errorf("retrieve: graph expansion: %w", err)
		}
		graphScores = make(map[int64]float64, len(neighbors))
		for _, n := range neighbors {
			graphScores[n.NodeID] = clamp01(n.Weight)
		}
	}

	fused := fuseChannels(vecScores, ftsScores, graphScores)
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	nodes, err := r.store.GetNodesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("retrieve: load nodes: %w", err)
	}

	weights := ScoreWeights{
		Recency:    r.cfg.WeightRecency,
		Relevance:  r.cfg.WeightRelevance,
		Importance: r.cfg.WeightImportance,
	}
	now := time.Now().UTC()
	results := make([]types.RetrievalResult, 0, len(nodes))
	for _, node := range nodes {
		f := fused[node.ID]
		recency := Recency(node.LastAccessedAt, now, r.cfg.RecencyHalfLifeDays)
		results = append(results, types.RetrievalResult{
			Node:   node,
			Score:  CombinedScore(recency, f.score, node.Importance, weights),
			Source: f.source,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.ID < results[j].Node.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	for _, res := range results {
		if err := r.store.TouchNode(ctx, res.Node.ID); err != nil {
			r.logger.Warn("touch node failed", zap.Int64("node_id", res.Node.ID), zap.Error(err))
		}
	}
	return results, nil
}

// vectorChannel maps node ID to cosine similarity with the query. When
// the embedder is down the channel comes back empty and retrieval
// continues on the remaining channels.
func (r *HybridRetriever) vectorChannel(ctx context.Context, query string) (map[int64]float64, error) {
	queryVec, err := r.embeddings.EmbedText(ctx, query)
	if err != nil {
		r.logger.Warn("vector channel degraded", zap.Error(err))
		return nil, nil
	}

	scores := make(map[int64]float64)
	if vs, ok := r.store.(storage.VectorSearcher); ok {
		matches, err := vs.VectorSearch(ctx, queryVec, r.cfg.VectorCandidateLimit)
		if err != nil {
			return nil, fmt.Errorf("retrieve: vector search: %w", err)
		}
		for _, m := range matches {
			if m.Similarity >= r.cfg.SimilarityThreshold {
				scores[m.NodeID] = clamp01(m.Similarity)
			}
		}
		return scores, nil
	}

	candidates, err := r.store.EmbeddingCandidates(ctx, r.cfg.VectorCandidateLimit, storage.CandidateFilter{})
	if err != nil {
		return nil, fmt.Errorf("retrieve: load candidates: %w", err)
	}
	for _, s := range r.embeddings.RankBySimilarity(queryVec, candidates, r.cfg.SimilarityThreshold) {
		scores[s.Node.ID] = clamp01(s.Similarity)
	}
	return scores, nil
}

// ftsChannel maps node ID to full-text rank normalized by the best rank
// in the result set, so the top hit always scores 1.0.
func (r *HybridRetriever) ftsChannel(ctx context.Context, query string) (map[int64]float64, error) {
	if !r.cfg.FTSEnabled {
		return nil, nil
	}
	matches, err := r.store.FTSSearch(ctx, query, r.cfg.FTSLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieve: fts search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	maxRank := 0.0
	for _, m := range matches {
		if m.Rank > maxRank {
			maxRank = m.Rank
		}
	}
	scores := make(map[int64]float64, len(matches))
	for _, m := range matches {
		if maxRank > 0 {
			scores[m.NodeID] = clamp01(m.Rank / maxRank)
		} else {
			scores[m.NodeID] = 0
		}
	}
	return scores, nil
}

// topSeeds picks the k strongest nodes across the vector and text
// channels, summing the two scores where a node appears in both.
func topSeeds(vecScores, ftsScores map[int64]float64, k int) []int64 {
	if k <= 0 {
		return nil
	}
	combined := make(map[int64]float64, len(vecScores)+len(ftsScores))
	for id, s := range vecScores {
		combined[id] += s
	}
	for id, s := range ftsScores {
		combined[id] += s
	}
	if len(combined) == 0 {
		return nil
	}

	type seed struct {
		id    int64
		score float64
	}
	seeds := make([]seed, 0, len(combined))
	for id, s := range combined {
		seeds = append(seeds, seed{id: id, score: s})
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].score != seeds[j].score {
			return seeds[i].score > seeds[j].score
		}
		return seeds[i].id < seeds[j].id
	})
	if len(seeds) > k {
		seeds = seeds[:k]
	}
	ids := make([]int64, len(seeds))
	for i, s := range seeds {
		ids[i] = s.id
	}
	return ids
}

type fusedScore struct {
	score  float64
	source types.RetrievalSource
}

// fuseChannels merges per-channel scores into a single relevance per
// node, weighting each present channel and recording the channel that
// contributed the strongest raw score.
func fuseChannels(vecScores, ftsScores, graphScores map[int64]float64) map[int64]fusedScore {
	ids := make(map[int64]struct{}, len(vecScores)+len(ftsScores)+len(graphScores))
	for id := range vecScores {
		ids[id] = struct{}{}
	}
	for id := range ftsScores {
		ids[id] = struct{}{}
	}
	for id := range graphScores {
		ids[id] = struct{}{}
	}

	fused := make(map[int64]fusedScore, len(ids))
	for id := range ids {
		var weighted, totalWeight, best float64
		source := types.SourceVector
		if s, ok := vecScores[id]; ok {
			weighted += fusionWeightVector * s
			totalWeight += fusionWeightVector
			best = s
		}
		if s, ok := ftsScores[id]; ok {
			weighted += fusionWeightFTS * s
			totalWeight += fusionWeightFTS
			if s > best || totalWeight == fusionWeightFTS {
				best = s
				source = types.SourceFTS
			}
		}
		if s, ok := graphScores[id]; ok {
			weighted += fusionWeightGraph * s
			totalWeight += fusionWeightGraph
			if s > best || totalWeight == fusionWeightGraph {
				best = s
				source = types.SourceGraph
			}
		}
		if totalWeight == 0 {
			continue
		}
		fused[id] = fusedScore{score: weighted / totalWeight, source: source}
	}
	return fused
}
