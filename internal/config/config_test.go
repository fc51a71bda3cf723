package config

import (
	"strings"
	"testing"
	"time"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != expected {
		t.Errorf("DSN() = %v, want %v", got, expected)
	}
}

func TestRedisConfig(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}

	if got := cfg.Addr(); got != "redis.example.com:6380" {
		t.Errorf("Addr() = %v, want redis.example.com:6380", got)
	}
	if !cfg.Enabled() {
		t.Error("Enabled() = false with host set")
	}
	if (RedisConfig{}).Enabled() {
		t.Error("Enabled() = true without host")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Chunking.Size != 550 || cfg.Chunking.Overlap != 120 {
		t.Errorf("chunking = %d/%d, want 550/120", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if cfg.Retrieval.TopK != 6 {
		t.Errorf("TopK = %d, want 6", cfg.Retrieval.TopK)
	}
	if cfg.Scripts.MinDelay != 4*time.Second {
		t.Errorf("MinDelay = %v, want 4s", cfg.Scripts.MinDelay)
	}
	if cfg.Scripts.SelectorK != 5 || cfg.Scripts.DocK != 3 {
		t.Errorf("script k = %d/%d, want 5/3", cfg.Scripts.SelectorK, cfg.Scripts.DocK)
	}
	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LLM_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CHUNK_SIZE", "300")
	t.Setenv("CHUNK_OVERLAP", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("Store.Backend = %q", cfg.Store.Backend)
	}
	if cfg.LLM.APIKey() != "sk-test" {
		t.Errorf("APIKey() = %q", cfg.LLM.APIKey())
	}
	if cfg.LLM.Model() != cfg.LLM.ClaudeModel {
		t.Errorf("Model() = %q, want %q", cfg.LLM.Model(), cfg.LLM.ClaudeModel)
	}
	if cfg.Chunking.Size != 300 || cfg.Chunking.Overlap != 50 {
		t.Errorf("chunking = %d/%d", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if err := cfg.RequireLLM(); err != nil {
		t.Errorf("RequireLLM() error = %v", err)
	}
}

func validConfig() *Config {
	return &Config{
		App:       AppConfig{Environment: EnvDevelopment},
		Store:     StoreConfig{Backend: StoreMemory},
		LLM:       LLMConfig{Provider: ProviderGemini},
		Embedding: EmbeddingConfig{Provider: EmbeddingHash, Dimensions: 384},
		Chunking:  ChunkingConfig{Size: 550, Overlap: 120},
		Retrieval: RetrievalConfig{TopK: 6},
		Scripts:   ScriptsConfig{Framework: "selenium-python", MinDelay: 4 * time.Second},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store.Backend = "chroma" }, "STORE_BACKEND"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "openai" }, "LLM_PROVIDER"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = EmbeddingOpenAI }, "OPENAI_API_KEY"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = 550 }, "CHUNK_OVERLAP"},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }, "RETRIEVAL_TOP_K"},
		{"bad framework", func(c *Config) { c.Scripts.Framework = "cypress" }, "SCRIPT_FRAMEWORK"},
		{"postgres prod without password", func(c *Config) {
			c.Store.Backend = StorePostgres
			c.App.Environment = EnvProduction
		}, "DB_PASSWORD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAll(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = "x"
	cfg.LLM.Provider = "y"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if !strings.Contains(err.Error(), "STORE_BACKEND") || !strings.Contains(err.Error(), "LLM_PROVIDER") {
		t.Errorf("Validate() = %v, want both problems reported", err)
	}
}

func TestConfig_RequireLLM(t *testing.T) {
	cfg := validConfig()
	if err := cfg.RequireLLM(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("RequireLLM() = %v, want GEMINI_API_KEY error", err)
	}
	cfg.LLM.Provider = ProviderClaude
	if err := cfg.RequireLLM(); err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("RequireLLM() = %v, want ANTHROPIC_API_KEY error", err)
	}
}
