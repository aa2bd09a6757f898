package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient talks to a local Ollama server. It implements both
// TextGenerator and Embedder; the generation and embedding models are
// configured separately because embedding models cannot complete text.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	guard          *Guard
	model          string
	embeddingModel string
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	BaseURL        string        // default: http://localhost:11434
	Model          string        // default: qwen2.5:7b
	EmbeddingModel string        // default: nomic-embed-text
	Timeout        time.Duration // per-request timeout, default: 60s
	Guard          GuardConfig
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// Ollama's embed endpoint returns a batch; single-input requests use the
// first row.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates an Ollama client with defaults applied.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL:        cfg.BaseURL,
		client:         &http.Client{Timeout: cfg.Timeout},
		guard:          NewGuard(cfg.Guard),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Complete sends a non-streaming generation request.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.guard.Do(ctx, func() (any, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("ollama complete: %w", err)
	}
	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return "", err
	}
	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return parsed.Response, nil
}

// Embed returns the embedding vector for text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.guard.Do(ctx, func() (any, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return result.([]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{
		Model: c.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, err
	}
	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding for model %s", c.embeddingModel)
	}
	return parsed.Embeddings[0], nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama %s returned status %d: %s", path, resp.StatusCode, raw)
	}
	return raw, nil
}

// Model returns the generation model name.
func (c *OllamaClient) Model() string { return c.model }

// EmbeddingModel returns the embedding model name.
func (c *OllamaClient) EmbeddingModel() string { return c.embeddingModel }

// ollamaEmbedder adapts an OllamaClient to report the embedding model
// through the Embedder interface.
type ollamaEmbedder struct{ *OllamaClient }

func (e ollamaEmbedder) Model() string { return e.embeddingModel }
