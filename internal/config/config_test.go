package config

import (
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel should be 'info', got %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat should be 'json', got %s", cfg.LogFormat)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment should default to 'development', got %s", cfg.Environment)
	}
}

func TestDefaultConfig_SearchDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Search.RRFConstant != 60 {
		t.Errorf("RRFConstant should be 60, got %d", cfg.Search.RRFConstant)
	}
	if cfg.Search.BM25NormK != 8 {
		t.Errorf("BM25NormK should be 8, got %f", cfg.Search.BM25NormK)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("DefaultLimit should be 10, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.RefineSimilarityCutoff != 0.25 {
		t.Errorf("RefineSimilarityCutoff should be 0.25, got %f", cfg.Search.RefineSimilarityCutoff)
	}
}

func TestDefaultConfig_EmbeddingDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Embedding.Backend != "ollama" {
		t.Errorf("Embedding.Backend should default to 'ollama', got %s", cfg.Embedding.Backend)
	}
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("Embedding.Dimension should be 768, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Embedding.MaxAttempts != 8 {
		t.Errorf("Embedding.MaxAttempts should be 8, got %d", cfg.Embedding.MaxAttempts)
	}
}

func TestDefaultConfig_QdrantDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Qdrant.Host != "localhost" {
		t.Errorf("Qdrant.Host should be 'localhost', got %s", cfg.Qdrant.Host)
	}
	if cfg.Qdrant.Port != 6334 {
		t.Errorf("Qdrant.Port should be 6334, got %d", cfg.Qdrant.Port)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IsProduction() {
		t.Error("development config should not report IsProduction")
	}
	cfg.Environment = "production"
	if !cfg.IsProduction() {
		t.Error("production config should report IsProduction")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("DATABASE_URL", "/tmp/arabhybrid-test.db")
	os.Setenv("NODE_ENV", "production")
	os.Setenv("OPENROUTER_API_KEY", "test-key")
	defer os.Unsetenv("DATABASE_URL")
	defer os.Unsetenv("NODE_ENV")
	defer os.Unsetenv("OPENROUTER_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.DSN != "/tmp/arabhybrid-test.db" {
		t.Errorf("DATABASE_URL not applied, got %s", cfg.Database.DSN)
	}
	if !cfg.IsProduction() {
		t.Error("NODE_ENV=production should mark config as production")
	}
	if cfg.LLM.OpenRouterAPIKey != "test-key" {
		t.Errorf("OPENROUTER_API_KEY not applied, got %s", cfg.LLM.OpenRouterAPIKey)
	}
}

func TestConfig_EnsureDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{DataDir: tmpDir + "/nested"}

	if err := cfg.EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir failed: %v", err)
	}

	info, err := os.Stat(cfg.DataDir)
	if err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", cfg.DataDir)
	}
	if !strings.HasSuffix(cfg.DataDir, "nested") {
		t.Errorf("unexpected data dir %s", cfg.DataDir)
	}
}
