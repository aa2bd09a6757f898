// Package llm provides the text generation and embedding providers used
// by the memory engine, with circuit breaker protection and client-side
// rate limiting around every provider call.
package llm

import "context"

// TextGenerator produces a completion for a prompt. Implementations are
// expected to fail fast: the engine treats any error as a transient
// provider failure and degrades rather than retrying.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Embedder converts text into a dense vector. Different implementations
// produce incompatible vector spaces; callers must not mix embeddings
// from different models.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}
