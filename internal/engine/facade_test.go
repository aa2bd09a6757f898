package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/internal/storage/sqlite"
	"github.com/engramlabs/engram/pkg/types"
)

func newTestMemory(t *testing.T, gen *fakeGenerator, emb *fakeEmbedder) (*Memory, *sqlite.Store) {
	t.Helper()
	store := newEngineStore(t)
	m, err := New(store, gen, emb, testMemoryConfig(), nil)
	require.NoError(t, err)
	return m, store
}

func TestProcessTurnExtractsAfterThreeTurns(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{`[
		{"type": "fact", "content": "alice adopted a corgi named biscuit", "author": "alice", "importance": 0.7, "confidence": 0.9}
	]`}}
	m, store := newTestMemory(t, gen, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	session, err := m.StartSession(ctx, "discord")
	require.NoError(t, err)

	require.NoError(t, m.ProcessTurn(ctx, session.ID, turn("user", "alice", "i adopted a puppy")))
	require.NoError(t, m.ProcessTurn(ctx, session.ID, turn("assistant", "", "what's their name?")))
	assert.Zero(t, gen.calls)

	require.NoError(t, m.ProcessTurn(ctx, session.ID, turn("user", "alice", "biscuit, she's a corgi")))
	assert.Equal(t, 1, gen.calls)

	n, err := store.NodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	profile, err := m.GetEntityProfile(ctx, "discord", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, profile.InteractionCount)

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TurnCount)
}

func TestEndSessionFlushesShortConversation(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{`[
		{"type": "fact", "content": "bob is learning italian", "author": "bob", "importance": 0.6, "confidence": 0.8}
	]`}}
	m, store := newTestMemory(t, gen, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	session, err := m.StartSession(ctx, "discord")
	require.NoError(t, err)
	require.NoError(t, m.ProcessTurn(ctx, session.ID, turn("user", "bob", "sto imparando l'italiano")))

	require.NoError(t, m.EndSession(ctx, session.ID, "short chat", "languages"))

	n, err := store.NodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.EndedAt)
	assert.Equal(t, "short chat", got.Summary)
}

func TestStoreFactDeduplicates(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t, &fakeGenerator{}, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	id, err := m.StoreFact(ctx, "carol speaks four languages", "discord", "carol", 0.6)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = m.StoreFact(ctx, "carol is fluent in four languages", "discord", "carol", 0.6)
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestStoreFactDeduplicatesAcrossAuthors(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t, &fakeGenerator{}, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	_, err := m.StoreFact(ctx, "the meetup moved to thursdays", "discord", "carol", 0.6)
	require.NoError(t, err)

	_, err = m.StoreFact(ctx, "the meetup now happens on thursdays", "discord", "dave", 0.6)
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestStoreFactRejectsEmptyContent(t *testing.T) {
	m, _ := newTestMemory(t, &fakeGenerator{}, &fakeEmbedder{})
	_, err := m.StoreFact(context.Background(), "   ", "discord", "carol", 0.5)
	assert.Error(t, err)
}

func TestGetAssembledContextIncludesProfileAndMemories(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMemory(t, &fakeGenerator{}, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	_, err := store.UpsertEntity(ctx, &types.EntityProfile{
		Platform:   "discord",
		EntityName: "alice",
		Summary:    "A keen gardener.",
	})
	require.NoError(t, err)
	_, err = m.StoreFact(ctx, "alice grows prize tomatoes", "discord", "alice", 0.6)
	require.NoError(t, err)

	out, err := m.GetAssembledContext(ctx, ContextRequest{
		SystemPrompt: "You are a friendly agent.",
		Platform:     "discord",
		Author:       "alice",
		UserContent:  "how are the tomatoes?",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "About alice")
	assert.Contains(t, out.Text, "A keen gardener.")
	assert.Contains(t, out.Text, "alice grows prize tomatoes")
	assert.Contains(t, out.Text, "how are the tomatoes?")
}

func TestGetAssembledContextUnknownAuthor(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t, &fakeGenerator{}, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	out, err := m.GetAssembledContext(ctx, ContextRequest{
		Platform:    "discord",
		Author:      "stranger",
		UserContent: "hello there",
	})
	require.NoError(t, err)
	assert.NotContains(t, out.Text, "About")
	assert.Contains(t, out.Text, "hello there")
}

func TestRunMaintenanceMergesAndReflects(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{responses: []string{`[
		{"content": "dana is renovating her apartment", "importance": 0.6, "confidence": 0.7}
	]`}}
	m, store := newTestMemory(t, gen, &fakeEmbedder{fallback: []float32{0, 1, 0}})

	addEmbeddedNode(t, store, "dana bought paint", "dana", 0.5, []float32{1, 0, 0})
	addEmbeddedNode(t, store, "dana bought some paint", "dana", 0.7, []float32{1, 0, 0})
	for i := 0; i < 9; i++ {
		addEmbeddedNode(t, store, fmt.Sprintf("dana renovation update %d", i), "dana", 0.5, nil)
	}

	result, err := m.RunMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evolution.Merged)
	assert.True(t, result.Reflected)
	assert.GreaterOrEqual(t, result.Reflection.Insights, 1)
}

func TestRunMaintenanceSkipsReflectionBelowThreshold(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	m, store := newTestMemory(t, gen, &fakeEmbedder{})

	addEmbeddedNode(t, store, "lone memory", "erin", 0.5, nil)

	result, err := m.RunMaintenance(ctx)
	require.NoError(t, err)
	assert.False(t, result.Reflected)
	assert.Zero(t, gen.calls)
}

func TestRememberInteraction(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMemory(t, &fakeGenerator{}, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	id, err := m.RememberInteraction(ctx, "bluesky", "frank", "frank shared my post about synthesizers")
	require.NoError(t, err)

	node, err := store.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryEpisode, node.MemoryType)
	assert.Equal(t, types.SourceAutoCapture, node.SourceType)

	profile, err := m.GetEntityProfile(ctx, "bluesky", "frank")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.InteractionCount)
}

func TestContextForPost(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t, &fakeGenerator{}, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	_, err := m.StoreFact(ctx, "followers enjoyed the modular synth thread", "bluesky", "", 0.6)
	require.NoError(t, err)

	out, err := m.ContextForPost(ctx, "synthesizers")
	require.NoError(t, err)
	assert.Contains(t, out.Text, "modular synth thread")
	assert.Contains(t, out.Text, "synthesizers")
}
