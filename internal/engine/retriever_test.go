package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/storage/sqlite"
	"github.com/engramlabs/engram/pkg/types"
)

func newTestRetriever(t *testing.T, embedder *fakeEmbedder) (*HybridRetriever, *sqlite.Store) {
	t.Helper()
	store := newEngineStore(t)
	svc := newTestEmbeddings(t, embedder)
	r := NewHybridRetriever(store, svc, testMemoryConfig(), nil)
	return r, store
}

func TestRetrieveFusesVectorAndTextChannels(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0, 0}}
	r, fx := newTestRetriever(t, embedder)
	ctx := context.Background()

	gardenID := addEmbeddedNode(t, fx, "alice loves gardening and tomatoes", "alice", 0.7, []float32{1, 0, 0})
	rainID := addEmbeddedNode(t, fx, "bob prefers rainy afternoons", "bob", 0.5, []float32{0, 1, 0})

	results, err := r.Retrieve(ctx, "gardening rainy", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, gardenID, results[0].Node.ID)
	assert.Equal(t, rainID, results[1].Node.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestRetrieveRecordsAccess(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0, 0}}
	r, fx := newTestRetriever(t, embedder)
	ctx := context.Background()

	id := addEmbeddedNode(t, fx, "likes hiking in the alps", "carol", 0.6, []float32{1, 0, 0})

	_, err := r.Retrieve(ctx, "hiking", 5)
	require.NoError(t, err)

	node, err := fx.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, node.AccessCount)
}

func TestRetrieveDegradesWhenEmbedderFails(t *testing.T) {
	embedder := &fakeEmbedder{fail: true}
	r, fx := newTestRetriever(t, embedder)
	ctx := context.Background()

	id := addEmbeddedNode(t, fx, "collects vintage synthesizers", "dana", 0.5, []float32{1, 0, 0})

	results, err := r.Retrieve(ctx, "synthesizers", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Node.ID)
	assert.Equal(t, types.SourceFTS, results[0].Source)
}

func TestRetrieveExpandsGraphNeighbors(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0, 0}}
	r, fx := newTestRetriever(t, embedder)
	ctx := context.Background()

	seedID := addEmbeddedNode(t, fx, "works on quantum computing", "erin", 0.8, []float32{1, 0, 0})
	linkedID := addEmbeddedNode(t, fx, "xyzzy", "erin", 0.4, nil)
	err := fx.AddEdge(ctx, &types.KnowledgeEdge{
		SourceID: seedID,
		TargetID: linkedID,
		Relation: types.RelationRelatedTo,
		Weight:   0.9,
	})
	require.NoError(t, err)

	results, err := r.Retrieve(ctx, "quantum computing", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var linked *types.RetrievalResult
	for i := range results {
		if results[i].Node.ID == linkedID {
			linked = &results[i]
		}
	}
	require.NotNil(t, linked)
	assert.Equal(t, types.SourceGraph, linked.Source)
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	r, _ := newTestRetriever(t, &fakeEmbedder{})
	_, err := r.Retrieve(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestRetrieveNoMatchesReturnsEmpty(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{0, 0, 1}}
	r, _ := newTestRetriever(t, embedder)

	results, err := r.Retrieve(context.Background(), "nothing stored yet", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveHonorsLimit(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0, 0}}
	r, fx := newTestRetriever(t, embedder)

	addEmbeddedNode(t, fx, "enjoys chess openings", "finn", 0.5, []float32{1, 0, 0})
	addEmbeddedNode(t, fx, "studies chess endgames", "finn", 0.5, []float32{0.9, 0.1, 0})
	addEmbeddedNode(t, fx, "plays chess blindfolded", "finn", 0.5, []float32{0.8, 0.2, 0})

	results, err := r.Retrieve(context.Background(), "chess", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
