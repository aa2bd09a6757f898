package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Storage.Engine != "sqlite" {
		t.Errorf("default engine = %q, want sqlite", cfg.Storage.Engine)
	}
	if cfg.Memory.RetrievalLimit != 10 {
		t.Errorf("retrieval limit = %d, want 10", cfg.Memory.RetrievalLimit)
	}
	if cfg.Memory.WeightRecency != 0.3 || cfg.Memory.WeightRelevance != 0.5 || cfg.Memory.WeightImportance != 0.2 {
		t.Errorf("scoring weights = %v/%v/%v",
			cfg.Memory.WeightRecency, cfg.Memory.WeightRelevance, cfg.Memory.WeightImportance)
	}
	if !cfg.Memory.ExtractionEnabled || !cfg.Memory.EvolutionEnabled || !cfg.Memory.ReflectionEnabled {
		t.Error("consolidation features should default to enabled")
	}
	if cfg.Memory.LegacyTripleSelfEdge {
		t.Error("legacy triple self-edge should default to off")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENGRAM_STORAGE_ENGINE", "postgres")
	t.Setenv("ENGRAM_RETRIEVAL_LIMIT", "25")
	t.Setenv("ENGRAM_DEDUP_THRESHOLD", "0.8")
	t.Setenv("ENGRAM_REFLECTION_ENABLED", "no")

	cfg := Load()
	if cfg.Storage.Engine != "postgres" {
		t.Errorf("engine = %q", cfg.Storage.Engine)
	}
	if cfg.Memory.RetrievalLimit != 25 {
		t.Errorf("retrieval limit = %d", cfg.Memory.RetrievalLimit)
	}
	if cfg.Memory.DedupThreshold != 0.8 {
		t.Errorf("dedup threshold = %v", cfg.Memory.DedupThreshold)
	}
	if cfg.Memory.ReflectionEnabled {
		t.Error("reflection should be disabled by env")
	}
}

func TestLoadEnvBadValuesKeepDefaults(t *testing.T) {
	t.Setenv("ENGRAM_RETRIEVAL_LIMIT", "not-a-number")
	t.Setenv("ENGRAM_FTS_ENABLED", "maybe")

	cfg := Load()
	if cfg.Memory.RetrievalLimit != 10 {
		t.Errorf("retrieval limit = %d, want default 10", cfg.Memory.RetrievalLimit)
	}
	if !cfg.Memory.FTSEnabled {
		t.Error("unparseable bool should keep default true")
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	body := []byte("memory:\n  retrieval_limit: 7\n  graph_max_hops: 3\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Memory.RetrievalLimit != 7 {
		t.Errorf("file override lost: %d", cfg.Memory.RetrievalLimit)
	}
	if cfg.Memory.GraphMaxHops != 3 {
		t.Errorf("graph max hops = %d", cfg.Memory.GraphMaxHops)
	}
	// Untouched fields keep their defaults.
	if cfg.Memory.FTSLimit != 20 {
		t.Errorf("fts limit = %d, want default 20", cfg.Memory.FTSLimit)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
