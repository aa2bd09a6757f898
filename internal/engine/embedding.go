package engine

import (
	"context"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/llm"
	"github.com/engramlabs/engram/internal/logging"
	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/pkg/vector"
)

const embeddingCacheSize = 2048

// EmbeddingService wraps an llm.Embedder with an in-process LRU cache
// and the similarity helpers the engine components share. Provider
// failures surface as errors; callers degrade rather than retry.
type EmbeddingService struct {
	embedder llm.Embedder
	cache    *lru.Cache[string, []float32]
	logger   *zap.Logger
}

// NewEmbeddingService creates an embedding service around embedder.
func NewEmbeddingService(embedder llm.Embedder, logger *zap.Logger) (*EmbeddingService, error) {
	cache, err := lru.New[string, []float32](embeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding: create cache: %w", err)
	}
	return &EmbeddingService{
		embedder: embedder,
		cache:    cache,
		logger:   logging.OrNop(logger).Named("embedding"),
	}, nil
}

// EmbedText embeds text, serving repeats from the cache.
func (s *EmbeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embedding: empty text")
	}
	if vec, ok := s.cache.Get(text); ok {
		return vec, nil
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embed failed", zap.Error(err))
		return nil, fmt.Errorf("embedding: %w", err)
	}
	s.cache.Add(text, vec)
	return vec, nil
}

// Model returns the underlying embedding model name.
func (s *EmbeddingService) Model() string {
	return s.embedder.Model()
}

// Scored pairs a node with its similarity to a query vector.
type Scored struct {
	Node       types.KnowledgeNode
	Similarity float64
}

// RankBySimilarity scores candidates against query by cosine similarity,
// drops those below threshold or without a decodable embedding, and
// returns the rest in descending order.
func (s *EmbeddingService) RankBySimilarity(query []float32, candidates []types.KnowledgeNode, threshold float64) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, node := range candidates {
		vec, err := vector.FromBlob(node.Embedding)
		if err != nil || vec == nil {
			continue
		}
		sim := vector.Cosine(query, vec)
		if sim < threshold {
			continue
		}
		scored = append(scored, Scored{Node: node, Similarity: sim})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Node.ID < scored[j].Node.ID
	})
	return scored
}

// IsDuplicate reports whether vec is near-identical to any existing
// embedding, at or above dedupThreshold cosine similarity.
func (s *EmbeddingService) IsDuplicate(vec []float32, existing []types.KnowledgeNode, dedupThreshold float64) bool {
	for _, node := range existing {
		other, err := vector.FromBlob(node.Embedding)
		if err != nil || other == nil {
			continue
		}
		if vector.Cosine(vec, other) >= dedupThreshold {
			return true
		}
	}
	return false
}
