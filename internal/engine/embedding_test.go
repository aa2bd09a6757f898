package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/pkg/vector"
)

func TestEmbedTextCachesResults(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{0.5, 0.5, 0}}
	svc := newTestEmbeddings(t, embedder)

	first, err := svc.EmbedText(context.Background(), "hello world")
	require.NoError(t, err)
	second, err := svc.EmbedText(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, embedder.calls)
}

func TestEmbedTextRejectsEmptyInput(t *testing.T) {
	svc := newTestEmbeddings(t, &fakeEmbedder{})
	_, err := svc.EmbedText(context.Background(), "")
	assert.Error(t, err)
}

func TestEmbedTextPropagatesProviderFailure(t *testing.T) {
	svc := newTestEmbeddings(t, &fakeEmbedder{fail: true})
	_, err := svc.EmbedText(context.Background(), "hello")
	assert.Error(t, err)
}

func TestRankBySimilarityFiltersAndSorts(t *testing.T) {
	svc := newTestEmbeddings(t, &fakeEmbedder{})
	query := []float32{1, 0, 0}
	nodes := []types.KnowledgeNode{
		{ID: 1, Content: "close", Embedding: vector.ToBlob([]float32{0.9, 0.1, 0})},
		{ID: 2, Content: "exact", Embedding: vector.ToBlob([]float32{1, 0, 0})},
		{ID: 3, Content: "orthogonal", Embedding: vector.ToBlob([]float32{0, 1, 0})},
		{ID: 4, Content: "no embedding"},
	}

	ranked := svc.RankBySimilarity(query, nodes, 0.5)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(2), ranked[0].Node.ID)
	assert.Equal(t, int64(1), ranked[1].Node.ID)
	assert.Greater(t, ranked[0].Similarity, ranked[1].Similarity)
}

func TestRankBySimilarityTieBreaksByID(t *testing.T) {
	svc := newTestEmbeddings(t, &fakeEmbedder{})
	query := []float32{1, 0}
	blob := vector.ToBlob([]float32{1, 0})
	nodes := []types.KnowledgeNode{
		{ID: 9, Embedding: blob},
		{ID: 3, Embedding: blob},
	}
	ranked := svc.RankBySimilarity(query, nodes, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(3), ranked[0].Node.ID)
}

func TestIsDuplicate(t *testing.T) {
	svc := newTestEmbeddings(t, &fakeEmbedder{})
	vec := []float32{1, 0, 0}
	near := types.KnowledgeNode{ID: 1, Embedding: vector.ToBlob([]float32{0.99, 0.01, 0})}
	far := types.KnowledgeNode{ID: 2, Embedding: vector.ToBlob([]float32{0, 1, 0})}

	assert.True(t, svc.IsDuplicate(vec, []types.KnowledgeNode{far, near}, 0.95))
	assert.False(t, svc.IsDuplicate(vec, []types.KnowledgeNode{far}, 0.95))
	assert.False(t, svc.IsDuplicate(vec, nil, 0.95))
}
