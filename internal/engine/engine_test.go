package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/storage/sqlite"
	"github.com/engramlabs/engram/pkg/types"
	"github.com/engramlabs/engram/pkg/vector"
)

// fakeEmbedder returns canned vectors, keyed by substring match, with a
// fallback vector for everything else. Setting fail makes every call
// error, which the engine must treat as a degraded provider.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	fail     bool
	calls    int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedder offline")
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

// fakeGenerator replays scripted responses in order, then repeats the
// last one. Setting fail makes every call error.
type fakeGenerator struct {
	responses []string
	fail      bool
	calls     int
	prompts   []string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.fail {
		return "", errors.New("generator offline")
	}
	if len(f.responses) == 0 {
		return "[]", nil
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeGenerator) Model() string { return "fake-gen" }

func newEngineStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMemoryConfig() config.MemoryConfig {
	cfg := config.Load().Memory
	return cfg
}

func newTestEmbeddings(t *testing.T, embedder *fakeEmbedder) *EmbeddingService {
	t.Helper()
	svc, err := NewEmbeddingService(embedder, nil)
	if err != nil {
		t.Fatalf("embedding service: %v", err)
	}
	return svc
}

func addEmbeddedNode(t *testing.T, s *sqlite.Store, content, author string, importance float64, vec []float32) int64 {
	t.Helper()
	id, err := s.AddNode(context.Background(), &types.KnowledgeNode{
		Content:    content,
		MemoryType: types.MemoryFact,
		SourceType: types.SourceLLMExtract,
		Importance: importance,
		Confidence: 0.8,
		Platform:   "discord",
		Author:     author,
		Embedding:  vector.ToBlob(vec),
	})
	if err != nil {
		t.Fatalf("add node %q: %v", content, err)
	}
	return id
}
