// Package config handles orchestrator configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all orchestrator configuration.
type Config struct {
	Environment string `mapstructure:"environment"` // "production" disables debugStats
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	DataDir string `mapstructure:"data_dir"`

	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	FalkorDB      FalkorDBConfig      `mapstructure:"falkordb"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Search        SearchConfig        `mapstructure:"search"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// HTTPConfig configures the search daemon's HTTP listener.
type HTTPConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// ElasticsearchConfig holds the lexical engine's connection settings (ES_*).
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	APIKey    string   `mapstructure:"api_key"`
}

// QdrantConfig holds the vector engine's connection settings (QDRANT_*).
type QdrantConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds the relational metadata store's DSN (DATABASE_URL).
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the persistent embedding cache's connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FalkorDBConfig holds the graph context resolver's connection settings.
type FalkorDBConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	GraphName string `mapstructure:"graph_name"`
}

// EmbeddingConfig selects and configures the embedding back-end.
type EmbeddingConfig struct {
	// Backend is "ollama" (local) or "openrouter" (hosted, OPENROUTER_API_KEY).
	Backend      string        `mapstructure:"backend"`
	OllamaHost   string        `mapstructure:"ollama_host"`
	Model        string        `mapstructure:"model"`
	Dimension    int           `mapstructure:"dimension"`
	BatchSize    int           `mapstructure:"batch_size"`
	CallDeadline time.Duration `mapstructure:"call_deadline"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// LLMConfig configures the reranker and query-expander LLM calls.
type LLMConfig struct {
	OpenRouterAPIKey string `mapstructure:"-"` // from OPENROUTER_API_KEY only
	JinaAPIKey       string `mapstructure:"-"` // from JINA_API_KEY only
	OllamaHost       string `mapstructure:"ollama_host"`
	SmallModel       string `mapstructure:"small_model"`
	LargeModel       string `mapstructure:"large_model"`
	FastModel        string `mapstructure:"fast_model"`
}

// SearchConfig holds tuning parameters for the fusion/refine pipeline.
type SearchConfig struct {
	RRFConstant            int           `mapstructure:"rrf_constant"`
	BM25NormK              float64       `mapstructure:"bm25_norm_k"`
	DefaultLimit           int           `mapstructure:"default_limit"`
	MaxLimit               int           `mapstructure:"max_limit"`
	RequestDeadline        time.Duration `mapstructure:"request_deadline"`
	LexicalDeadline        time.Duration `mapstructure:"lexical_deadline"`
	SemanticDeadline       time.Duration `mapstructure:"semantic_deadline"`
	ExpansionDeadline      time.Duration `mapstructure:"expansion_deadline"`
	GraphDeadline          time.Duration `mapstructure:"graph_deadline"`
	RefineSimilarityCutoff float64       `mapstructure:"refine_similarity_cutoff"`
	IndexedBookSetTTL      time.Duration `mapstructure:"indexed_book_set_ttl"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".arabhybrid")

	return &Config{
		Environment: "development",
		LogLevel:    "info",
		LogFormat:   "json",
		DataDir:     dataDir,

		Elasticsearch: ElasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
		},
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Database: DatabaseConfig{
			DSN: filepath.Join(dataDir, "arabhybrid.db"),
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		FalkorDB: FalkorDBConfig{
			Host:      "localhost",
			Port:      6379,
			GraphName: "arabhybrid_kg",
		},
		Embedding: EmbeddingConfig{
			Backend:      "ollama",
			OllamaHost:   "http://localhost:11434",
			Model:        "nomic-embed-text",
			Dimension:    768,
			BatchSize:    10,
			CallDeadline: 15 * time.Second,
			MaxAttempts:  8,
		},
		LLM: LLMConfig{
			OllamaHost: "http://localhost:11434",
			SmallModel: "qwen2.5:7b-instruct",
			LargeModel: "qwen2.5:32b-instruct",
			FastModel:  "qwen2.5:3b-instruct",
		},
		Search: SearchConfig{
			RRFConstant:            60,
			BM25NormK:              8,
			DefaultLimit:           10,
			MaxLimit:               50,
			RequestDeadline:        30 * time.Second,
			LexicalDeadline:        5 * time.Second,
			SemanticDeadline:       5 * time.Second,
			ExpansionDeadline:      10 * time.Second,
			GraphDeadline:          3 * time.Second,
			RefineSimilarityCutoff: 0.25,
			IndexedBookSetTTL:      5 * time.Minute,
		},
		HTTP: HTTPConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Load loads configuration from files and environment, recognizing
// OPENROUTER_API_KEY, JINA_API_KEY, ES_*, QDRANT_*, DATABASE_URL, NODE_ENV.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("arabhybrid")
	v.SetConfigType("yaml")

	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".arabhybrid"))
	v.AddConfigPath("/etc/arabhybrid")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ARABHYBRID")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// These legacy-named env vars outrank the generic ARABHYBRID_* bindings.
	if v := os.Getenv("NODE_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ES_URL"); v != "" {
		cfg.Elasticsearch.Addresses = []string{v}
	}
	if v := os.Getenv("ES_API_KEY"); v != "" {
		cfg.Elasticsearch.APIKey = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	cfg.LLM.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.LLM.JinaAPIKey = os.Getenv("JINA_API_KEY")

	return cfg, nil
}

// IsProduction reports whether debugStats must be omitted from responses.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// EnsureDataDir creates the data directory used for the SQLite metadata store.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}
