package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/engramlabs/engram/pkg/types"
)

// Postgres tests need a live database with the pgvector extension.
// They are skipped unless ENGRAM_TEST_POSTGRES_DSN is set.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ENGRAM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ENGRAM_TEST_POSTGRES_DSN not set")
	}
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNodeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddNode(ctx, &types.KnowledgeNode{
		Content:    "postgres round trip",
		MemoryType: types.MemoryFact,
		SourceType: types.SourceUserExplicit,
		Importance: 0.6,
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteNode(ctx, id) })

	got, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Content != "postgres round trip" || got.MemoryType != types.MemoryFact {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestFTSSearchFindsContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddNode(ctx, &types.KnowledgeNode{
		Content:    "zeppelin restoration project notes",
		MemoryType: types.MemoryFact,
		SourceType: types.SourceUserExplicit,
	})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteNode(ctx, id) })

	matches, err := s.FTSSearch(ctx, "zeppelin restoration", 10)
	if err != nil {
		t.Fatalf("FTSSearch: %v", err)
	}
	found := false
	for _, m := range matches {
		if m.NodeID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("inserted node not in matches: %v", matches)
	}
}
