package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreQdrant   = "qdrant"
)

// LLM providers
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Embedding providers
const (
	EmbeddingHash   = "hash"
	EmbeddingOpenAI = "openai"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Qdrant    QdrantConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Scripts   ScriptsConfig
	Breaker   BreakerConfig
	Browser   BrowserConfig
	Artifacts ArtifactsConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string      `envconfig:"APP_NAME" default:"docforge"`
	Version     string      `envconfig:"APP_VERSION" default:"1.0.0"`
	Environment Environment `envconfig:"APP_ENV" default:"development"`
	LogLevel    string      `envconfig:"APP_LOG_LEVEL" default:"info"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10m"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxRequestSize  int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"52428800"` // 50MB
	CORSOrigins     []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	APIKey          string        `envconfig:"SERVER_API_KEY" default:""` // empty disables auth
	RateLimitRPM    int           `envconfig:"SERVER_RATE_LIMIT_RPM" default:"60"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig selects and locates the knowledge store
type StoreConfig struct {
	Backend    string `envconfig:"STORE_BACKEND" default:"sqlite"` // memory, sqlite, postgres, qdrant
	SQLitePath string `envconfig:"STORE_SQLITE_PATH" default:"docforge.db"`
	Collection string `envconfig:"STORE_COLLECTION" default:"documentation_kb"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"docforge"`
	Password        string        `envconfig:"DB_PASSWORD" default:""`
	Database        string        `envconfig:"DB_NAME" default:"docforge"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// QdrantConfig holds Qdrant REST settings
type QdrantConfig struct {
	URL     string        `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	APIKey  string        `envconfig:"QDRANT_API_KEY" default:""`
	Timeout time.Duration `envconfig:"QDRANT_TIMEOUT" default:"30s"`
}

// RedisConfig holds Redis settings. An empty host disables the embedding cache.
type RedisConfig struct {
	Host         string        `envconfig:"REDIS_HOST" default:""`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
	CacheTTL     time.Duration `envconfig:"REDIS_CACHE_TTL" default:"168h"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis host is configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// EmbeddingConfig holds embedding model settings
type EmbeddingConfig struct {
	Provider   string        `envconfig:"EMBEDDING_PROVIDER" default:"hash"` // hash, openai
	Model      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	APIKey     string        `envconfig:"OPENAI_API_KEY" default:""`
	BaseURL    string        `envconfig:"EMBEDDING_BASE_URL" default:"https://api.openai.com/v1"`
	Dimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
	BatchSize  int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`
	Timeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"60s"`
}

// LLMConfig holds text generation backend settings
type LLMConfig struct {
	Provider     string        `envconfig:"LLM_PROVIDER" default:"gemini"` // claude, gemini
	Temperature  float64       `envconfig:"LLM_TEMPERATURE" default:"0.2"`
	MaxTokens    int           `envconfig:"LLM_MAX_TOKENS" default:"8192"`
	Timeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`
	RateLimitRPM int           `envconfig:"LLM_RATE_LIMIT_RPM" default:"15"`
	CacheTTL     time.Duration `envconfig:"LLM_CACHE_TTL" default:"0s"` // 0 disables response caching

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY" default:""`
	ClaudeModel     string `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	ClaudeBaseURL   string `envconfig:"CLAUDE_BASE_URL" default:"https://api.anthropic.com"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
}

// APIKey returns the key of the selected provider
func (c LLMConfig) APIKey() string {
	if c.Provider == ProviderClaude {
		return c.AnthropicAPIKey
	}
	return c.GeminiAPIKey
}

// Model returns the model of the selected provider
func (c LLMConfig) Model() string {
	if c.Provider == ProviderClaude {
		return c.ClaudeModel
	}
	return c.GeminiModel
}

// ChunkingConfig holds splitter settings
type ChunkingConfig struct {
	Size    int `envconfig:"CHUNK_SIZE" default:"550"`
	Overlap int `envconfig:"CHUNK_OVERLAP" default:"120"`
}

// RetrievalConfig holds retrieval defaults
type RetrievalConfig struct {
	TopK int `envconfig:"RETRIEVAL_TOP_K" default:"6"`
}

// ScriptsConfig holds script synthesis settings
type ScriptsConfig struct {
	Framework string        `envconfig:"SCRIPT_FRAMEWORK" default:"selenium-python"`
	MinDelay  time.Duration `envconfig:"SCRIPT_MIN_DELAY" default:"4s"`
	SelectorK int           `envconfig:"SCRIPT_SELECTOR_K" default:"5"`
	DocK      int           `envconfig:"SCRIPT_DOC_K" default:"3"`
}

// BreakerConfig holds circuit breaker settings for the LLM backend
type BreakerConfig struct {
	Enabled          bool          `envconfig:"BREAKER_ENABLED" default:"true"`
	FailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	SuccessThreshold int           `envconfig:"BREAKER_SUCCESS_THRESHOLD" default:"1"`
	Timeout          time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

// BrowserConfig holds headless browser settings for the live selector check
type BrowserConfig struct {
	Headless bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	Timeout  time.Duration `envconfig:"BROWSER_TIMEOUT" default:"30s"`
}

// ArtifactsConfig holds MinIO settings for the artifact sink
type ArtifactsConfig struct {
	Endpoint  string `envconfig:"ARTIFACTS_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"ARTIFACTS_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"ARTIFACTS_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"ARTIFACTS_BUCKET" default:"docforge"`
	Region    string `envconfig:"ARTIFACTS_REGION" default:"us-east-1"`
	UseSSL    bool   `envconfig:"ARTIFACTS_USE_SSL" default:"false"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	switch c.Store.Backend {
	case StoreMemory, StoreSQLite, StorePostgres, StoreQdrant:
	default:
		errors = append(errors, fmt.Sprintf("STORE_BACKEND %q is not one of memory, sqlite, postgres, qdrant", c.Store.Backend))
	}
	if c.Store.Backend == StoreSQLite && c.Store.SQLitePath == "" {
		errors = append(errors, "STORE_SQLITE_PATH is required for the sqlite backend")
	}
	if c.Store.Backend == StorePostgres && c.App.Environment != EnvDevelopment && c.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required in non-development mode")
	}

	switch c.LLM.Provider {
	case ProviderClaude, ProviderGemini:
	default:
		errors = append(errors, fmt.Sprintf("LLM_PROVIDER %q is not one of claude, gemini", c.LLM.Provider))
	}

	switch c.Embedding.Provider {
	case EmbeddingHash:
	case EmbeddingOpenAI:
		if c.Embedding.APIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required for the openai embedding provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("EMBEDDING_PROVIDER %q is not one of hash, openai", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errors = append(errors, "EMBEDDING_DIMENSIONS must be positive")
	}

	if c.Chunking.Size <= 0 {
		errors = append(errors, "CHUNK_SIZE must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errors = append(errors, "CHUNK_OVERLAP must be non-negative and smaller than CHUNK_SIZE")
	}

	if c.Retrieval.TopK <= 0 {
		errors = append(errors, "RETRIEVAL_TOP_K must be positive")
	}

	switch c.Scripts.Framework {
	case "selenium-python", "playwright-ts":
	default:
		errors = append(errors, fmt.Sprintf("SCRIPT_FRAMEWORK %q is not one of selenium-python, playwright-ts", c.Scripts.Framework))
	}
	if c.Scripts.MinDelay < 0 {
		errors = append(errors, "SCRIPT_MIN_DELAY must not be negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// RequireLLM reports a missing key for the selected text generation
// provider. Ingestion runs without one; generation does not.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey() != "" {
		return nil
	}
	if c.LLM.Provider == ProviderClaude {
		return fmt.Errorf("ANTHROPIC_API_KEY is required for the claude provider")
	}
	return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
