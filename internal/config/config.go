// Package config provides configuration for the memory subsystem. It
// loads settings from environment variables with the ENGRAM_ prefix and
// carries sensible defaults for every option; an optional YAML file can
// override the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the memory subsystem.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Memory   MemoryConfig   `yaml:"memory"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // "sqlite" or "postgres" (default: sqlite)
	SQLitePath  string `yaml:"sqlite_path"`  // SQLite database path (default: ./data/engram.db)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string
}

// ProviderConfig configures the LLM and embedding providers.
type ProviderConfig struct {
	Provider             string  `yaml:"provider"`          // "ollama" or "openai" (default: ollama)
	OllamaURL            string  `yaml:"ollama_url"`        // default: http://localhost:11434
	OllamaModel          string  `yaml:"ollama_model"`      // default: qwen2.5:7b
	OllamaEmbeddingModel string  `yaml:"ollama_embedding_model"` // default: nomic-embed-text
	OpenAIAPIKey         string  `yaml:"openai_api_key"`
	OpenAIModel          string  `yaml:"openai_model"`           // default: gpt-4o-mini
	OpenAIEmbeddingModel string  `yaml:"openai_embedding_model"` // default: text-embedding-3-small
	RequestsPerSecond    float64 `yaml:"requests_per_second"`    // client-side rate limit (default: 2)
	RequestBurst         int     `yaml:"request_burst"`          // default: 4
}

// MemoryConfig carries the retrieval, scoring, and consolidation knobs.
type MemoryConfig struct {
	RetrievalLimit       int `yaml:"retrieval_limit"`        // default: 10
	VectorCandidateLimit int `yaml:"vector_candidate_limit"` // default: 100
	FTSLimit             int `yaml:"fts_limit"`              // default: 20
	GraphSeedTopK        int `yaml:"graph_seed_top_k"`       // default: 5
	GraphMaxHops         int `yaml:"graph_max_hops"`         // default: 2
	GraphLimit           int `yaml:"graph_limit"`            // default: 30

	FTSEnabled bool `yaml:"fts_enabled"` // default: true

	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"` // default: 30
	WeightRecency       float64 `yaml:"weight_recency"`         // default: 0.3
	WeightRelevance     float64 `yaml:"weight_relevance"`       // default: 0.5
	WeightImportance    float64 `yaml:"weight_importance"`      // default: 0.2
	SimilarityThreshold float64 `yaml:"similarity_threshold"`   // default: 0.3

	ContextTotalBudget int `yaml:"context_total_budget"` // default: 4096

	ExtractionEnabled       bool    `yaml:"extraction_enabled"`        // default: true
	ExtractionMinTurns      int     `yaml:"extraction_min_turns"`      // default: 3
	ExtractionMinImportance float64 `yaml:"extraction_min_importance"` // default: 0.3
	DedupThreshold          float64 `yaml:"dedup_threshold"`           // default: 0.92
	DedupCandidateLimit     int     `yaml:"dedup_candidate_limit"`     // default: 50

	// LegacyTripleSelfEdge restores the old behavior of linking a triple
	// node to itself with the predicate relation instead of resolving
	// the subject and object to existing nodes.
	LegacyTripleSelfEdge bool `yaml:"legacy_triple_self_edge"` // default: false

	EvolutionEnabled         bool    `yaml:"evolution_enabled"`          // default: true
	MergeSimilarityThreshold float64 `yaml:"merge_similarity_threshold"` // default: 0.92
	MergeMaxCandidates       int     `yaml:"merge_max_candidates"`       // default: 500
	PruneImportanceThreshold float64 `yaml:"prune_importance_threshold"` // default: 0.2

	ReflectionEnabled   bool `yaml:"reflection_enabled"`   // default: true
	ReflectionThreshold int  `yaml:"reflection_threshold"` // default: 10
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Environment string `yaml:"environment"` // "development" or "production" (default: production)
	Level       string `yaml:"level"`       // default: info
}

// Load builds a Config from environment variables with defaults.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("ENGRAM_STORAGE_ENGINE", "sqlite"),
			SQLitePath:  getEnv("ENGRAM_SQLITE_PATH", "./data/engram.db"),
			PostgresDSN: getEnv("ENGRAM_POSTGRES_DSN", ""),
		},
		Provider: ProviderConfig{
			Provider:             getEnv("ENGRAM_PROVIDER", "ollama"),
			OllamaURL:            getEnv("ENGRAM_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("ENGRAM_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("ENGRAM_OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:         getEnv("ENGRAM_OPENAI_API_KEY", ""),
			OpenAIModel:          getEnv("ENGRAM_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbeddingModel: getEnv("ENGRAM_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			RequestsPerSecond:    getEnvFloat("ENGRAM_REQUESTS_PER_SECOND", 2),
			RequestBurst:         getEnvInt("ENGRAM_REQUEST_BURST", 4),
		},
		Memory: MemoryConfig{
			RetrievalLimit:       getEnvInt("ENGRAM_RETRIEVAL_LIMIT", 10),
			VectorCandidateLimit: getEnvInt("ENGRAM_VECTOR_CANDIDATE_LIMIT", 100),
			FTSLimit:             getEnvInt("ENGRAM_FTS_LIMIT", 20),
			GraphSeedTopK:        getEnvInt("ENGRAM_GRAPH_SEED_TOP_K", 5),
			GraphMaxHops:         getEnvInt("ENGRAM_GRAPH_MAX_HOPS", 2),
			GraphLimit:           getEnvInt("ENGRAM_GRAPH_LIMIT", 30),

			FTSEnabled: getEnvBool("ENGRAM_FTS_ENABLED", true),

			RecencyHalfLifeDays: getEnvFloat("ENGRAM_RECENCY_HALF_LIFE_DAYS", 30),
			WeightRecency:       getEnvFloat("ENGRAM_WEIGHT_RECENCY", 0.3),
			WeightRelevance:     getEnvFloat("ENGRAM_WEIGHT_RELEVANCE", 0.5),
			WeightImportance:    getEnvFloat("ENGRAM_WEIGHT_IMPORTANCE", 0.2),
			SimilarityThreshold: getEnvFloat("ENGRAM_SIMILARITY_THRESHOLD", 0.3),

			ContextTotalBudget: getEnvInt("ENGRAM_CONTEXT_TOTAL_BUDGET", 4096),

			ExtractionEnabled:       getEnvBool("ENGRAM_EXTRACTION_ENABLED", true),
			ExtractionMinTurns:      getEnvInt("ENGRAM_EXTRACTION_MIN_TURNS", 3),
			ExtractionMinImportance: getEnvFloat("ENGRAM_EXTRACTION_MIN_IMPORTANCE", 0.3),
			DedupThreshold:          getEnvFloat("ENGRAM_DEDUP_THRESHOLD", 0.92),
			DedupCandidateLimit:     getEnvInt("ENGRAM_DEDUP_CANDIDATE_LIMIT", 50),

			LegacyTripleSelfEdge: getEnvBool("ENGRAM_LEGACY_TRIPLE_SELF_EDGE", false),

			EvolutionEnabled:         getEnvBool("ENGRAM_EVOLUTION_ENABLED", true),
			MergeSimilarityThreshold: getEnvFloat("ENGRAM_MERGE_SIMILARITY_THRESHOLD", 0.92),
			MergeMaxCandidates:       getEnvInt("ENGRAM_MERGE_MAX_CANDIDATES", 500),
			PruneImportanceThreshold: getEnvFloat("ENGRAM_PRUNE_IMPORTANCE_THRESHOLD", 0.2),

			ReflectionEnabled:   getEnvBool("ENGRAM_REFLECTION_ENABLED", true),
			ReflectionThreshold: getEnvInt("ENGRAM_REFLECTION_THRESHOLD", 10),
		},
		Logging: LoggingConfig{
			Environment: getEnv("ENGRAM_ENV", "production"),
			Level:       getEnv("ENGRAM_LOG_LEVEL", "info"),
		},
	}
}

// LoadFile loads the environment-based config and overlays values from a
// YAML file. Fields absent from the file keep their environment values.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
