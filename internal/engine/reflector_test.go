package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/internal/storage/sqlite"
	"github.com/engramlabs/engram/pkg/types"
)

func newTestReflector(t *testing.T, gen *fakeGenerator) (*ReflectionEngine, *sqlite.Store) {
	t.Helper()
	store := newEngineStore(t)
	svc := newTestEmbeddings(t, &fakeEmbedder{fallback: []float32{0, 0, 1}})
	return NewReflectionEngine(store, gen, svc, testMemoryConfig(), nil), store
}

func upsertTestEntity(t *testing.T, store *sqlite.Store, name string) int64 {
	t.Helper()
	id, err := store.UpsertEntity(context.Background(), &types.EntityProfile{
		Platform:   "discord",
		EntityName: name,
	})
	require.NoError(t, err)
	return id
}

func TestShouldReflectThreshold(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReflector(t, &fakeGenerator{})

	for i := 0; i < 9; i++ {
		addEmbeddedNode(t, store, fmt.Sprintf("memory number %d", i), "alice", 0.5, nil)
	}
	ok, err := r.ShouldReflect(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	addEmbeddedNode(t, store, "the tenth memory", "alice", 0.5, nil)
	ok, err = r.ShouldReflect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReflectStoresInsightsAndLinksSources(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{
		`[{"content": "alice is building a garden oasis", "importance": 0.7, "confidence": 0.8}]`,
		"Alice is a devoted gardener who shares weekly progress.",
	}}
	r, store := newTestReflector(t, gen)

	entityID := upsertTestEntity(t, store, "alice")
	var sources []int64
	sources = append(sources, addEmbeddedNode(t, store, "alice planted roses", "alice", 0.5, nil))
	sources = append(sources, addEmbeddedNode(t, store, "alice built a trellis", "alice", 0.5, nil))
	sources = append(sources, addEmbeddedNode(t, store, "alice mulched the beds", "alice", 0.5, nil))

	result, err := r.Reflect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Insights)
	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 1, result.SummariesUpdated)

	recent, err := store.RecentNodes(ctx, storage.NodeFilter{Limit: 10})
	require.NoError(t, err)
	var insight *types.KnowledgeNode
	for i := range recent {
		if recent[i].MemoryType == types.MemoryInsight {
			insight = &recent[i]
		}
	}
	require.NotNil(t, insight)
	assert.Equal(t, types.SourceReflection, insight.SourceType)
	assert.Equal(t, "alice", insight.Author)

	edges, err := store.GetNeighbors(ctx, insight.ID, 10)
	require.NoError(t, err)
	linked := make(map[int64]bool)
	for _, e := range edges {
		if e.Relation == types.RelationDerivedFrom && e.SourceID == insight.ID {
			assert.InDelta(t, 0.8, e.Weight, 1e-9)
			linked[e.TargetID] = true
		}
	}
	for _, src := range sources {
		assert.True(t, linked[src], "insight must link back to source %d", src)
	}

	profile, err := store.GetEntityByID(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, "Alice is a devoted gardener who shares weekly progress.", profile.Summary)

	_, err = store.LastConsolidation(ctx, types.OpReflection)
	assert.NoError(t, err)
}

func TestReflectLoggedRunResetsTrigger(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{"[]"}}
	r, store := newTestReflector(t, gen)

	for i := 0; i < 10; i++ {
		addEmbeddedNode(t, store, fmt.Sprintf("alice did thing %d", i), "alice", 0.5, nil)
	}
	ok, err := r.ShouldReflect(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.Reflect(ctx)
	require.NoError(t, err)

	ok, err = r.ShouldReflect(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a logged run must reset the trigger")
}

func TestReflectAllGenerationsFailedDoesNotLog(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{fail: true}
	r, store := newTestReflector(t, gen)

	addEmbeddedNode(t, store, "alice planted roses", "alice", 0.5, nil)
	addEmbeddedNode(t, store, "alice built a trellis", "alice", 0.5, nil)
	addEmbeddedNode(t, store, "alice mulched the beds", "alice", 0.5, nil)

	_, err := r.Reflect(ctx)
	assert.Error(t, err)

	_, err = store.LastConsolidation(ctx, types.OpReflection)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "a fully failed run must not log")
}

func TestReflectSkipsSmallGroups(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	r, store := newTestReflector(t, gen)

	addEmbeddedNode(t, store, "bob mentioned espresso", "bob", 0.5, nil)
	addEmbeddedNode(t, store, "bob mentioned rain", "bob", 0.5, nil)

	result, err := r.Reflect(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Groups)
	assert.Zero(t, gen.calls)
}

func TestReflectStoresRelatedEntitiesInMetadata(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{
		`[{"content": "alice and bob garden together on weekends", "importance": 0.7, "confidence": 0.8,
		   "related_to": ["alice", "bob"]}]`,
	}}
	r, store := newTestReflector(t, gen)

	addEmbeddedNode(t, store, "alice planted roses with bob", "alice", 0.5, nil)
	addEmbeddedNode(t, store, "alice and bob compared seeds", "alice", 0.5, nil)
	addEmbeddedNode(t, store, "alice lent bob her trowel", "alice", 0.5, nil)

	result, err := r.Reflect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Insights)

	recent, err := store.RecentNodes(ctx, storage.NodeFilter{Limit: 5})
	require.NoError(t, err)
	var insight *types.KnowledgeNode
	for i := range recent {
		if recent[i].MemoryType == types.MemoryInsight {
			insight = &recent[i]
		}
	}
	require.NotNil(t, insight)
	assert.Equal(t, []string{"alice", "bob"}, insight.Metadata.RelatedTo)
}

func TestReflectGroupsAuthorlessNodesTogether(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{
		`[{"content": "the timeline keeps circling back to synth music", "importance": 0.6, "confidence": 0.7}]`,
	}}
	r, store := newTestReflector(t, gen)

	addEmbeddedNode(t, store, "a trending post about modular synths", "", 0.5, nil)
	addEmbeddedNode(t, store, "another thread argued about analog warmth", "", 0.5, nil)
	addEmbeddedNode(t, store, "someone shared a synth jam recording", "", 0.5, nil)

	result, err := r.Reflect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 1, result.Insights)
	assert.Zero(t, result.SummariesUpdated)

	recent, err := store.RecentNodes(ctx, storage.NodeFilter{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, types.MemoryInsight, recent[0].MemoryType)
	assert.Equal(t, generalAuthorGroup, recent[0].Author)
}

func TestReflectCrossEntityPass(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{
		`[{"content": "the whole group is planning a hiking trip", "importance": 0.6, "confidence": 0.7}]`,
	}}
	r, store := newTestReflector(t, gen)

	authors := []string{"alice", "bob", "carol", "dana", "erin"}
	for i := 0; i < 10; i++ {
		author := authors[i%len(authors)]
		addEmbeddedNode(t, store, fmt.Sprintf("%s mentioned trails %d", author, i), author, 0.5, nil)
	}

	result, err := r.Reflect(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Groups)
	assert.Equal(t, 1, result.Insights)

	recent, err := store.RecentNodes(ctx, storage.NodeFilter{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, types.MemoryInsight, recent[0].MemoryType)
	assert.Equal(t, "", recent[0].Author)
}

func TestReflectRecordsSentimentTrajectory(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{
		`[{"content": "alice warmed up to the agent", "importance": 0.6, "confidence": 0.7, "sentiment": "positive"}]`,
		"Alice is friendly and increasingly trusting.",
	}}
	r, store := newTestReflector(t, gen)

	entityID := upsertTestEntity(t, store, "alice")
	addEmbeddedNode(t, store, "alice thanked the agent", "alice", 0.5, nil)
	addEmbeddedNode(t, store, "alice asked for advice again", "alice", 0.5, nil)
	addEmbeddedNode(t, store, "alice shared a personal story", "alice", 0.5, nil)

	_, err := r.Reflect(ctx)
	require.NoError(t, err)

	trajectory, err := store.SentimentTrajectory(ctx, entityID, 10)
	require.NoError(t, err)
	require.Len(t, trajectory, 1)
	assert.Equal(t, "positive", trajectory[0].Sentiment)
	assert.Greater(t, trajectory[0].Score, 0.0)

	profile, err := store.GetEntityByID(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, "positive", profile.Sentiment)
}
