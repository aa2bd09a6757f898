package llm

import (
	"fmt"

	"github.com/engramlabs/engram/internal/config"
)

// NewProviders builds the TextGenerator and Embedder selected by the
// provider configuration. Both come from the same provider; mixing
// embedding spaces across providers would corrupt stored similarity.
func NewProviders(cfg config.ProviderConfig) (TextGenerator, Embedder, error) {
	guard := GuardConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.RequestBurst,
	}

	switch cfg.Provider {
	case "", "ollama":
		client := NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.OllamaURL,
			Model:          cfg.OllamaModel,
			EmbeddingModel: cfg.OllamaEmbeddingModel,
			Guard:          guard,
		})
		return client, ollamaEmbedder{client}, nil

	case "openai":
		client, err := NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.OpenAIModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Guard:          guard,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, openaiEmbedder{client}, nil
	}

	return nil, nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
}
