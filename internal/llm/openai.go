package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient wraps the OpenAI API for completions and embeddings.
type OpenAIClient struct {
	client         *openai.Client
	guard          *Guard
	model          string
	embeddingModel string
}

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // optional override for compatible endpoints
	Model          string // default: gpt-4o-mini
	EmbeddingModel string // default: text-embedding-3-small
	Guard          GuardConfig
}

// NewOpenAIClient creates an OpenAI client with defaults applied.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		guard:          NewGuard(cfg.Guard),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// Complete sends a single-message chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.guard.Do(ctx, func() (any, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no choices in response")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	return result.(string), nil
}

// Embed returns the embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.guard.Do(ctx, func() (any, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: []string{text},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding for model %s", c.embeddingModel)
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return result.([]float32), nil
}

// Model returns the chat model name.
func (c *OpenAIClient) Model() string { return c.model }

// openaiEmbedder adapts an OpenAIClient to report the embedding model
// through the Embedder interface.
type openaiEmbedder struct{ *OpenAIClient }

func (e openaiEmbedder) Model() string { return e.embeddingModel }
