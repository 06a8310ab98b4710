package config

import (
	"context"
	"time"
)

// Config is the complete gnoskos configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"   json:"database"`
	OpenAI     OpenAIConfig     `koanf:"openai"     json:"openai"`
	Embedder   EmbedderConfig   `koanf:"embedder"   json:"embedder"`
	LLM        LLMConfig        `koanf:"llm"        json:"llm"`
	Chunking   ChunkingConfig   `koanf:"chunking"   json:"chunking"`
	Ingest     IngestConfig     `koanf:"ingest"     json:"ingest"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"  json:"retrieval"`
	Corpus     CorpusConfig     `koanf:"corpus"     json:"corpus"`
	Server     ServerConfig     `koanf:"server"     json:"server"`
	Monitoring MonitoringConfig `koanf:"monitoring" json:"monitoring"`
	Runtime    RuntimeConfig    `koanf:"runtime"    json:"runtime"`
}

// DatabaseConfig selects and tunes the vector store.
type DatabaseConfig struct {
	Provider     string          `koanf:"provider"      json:"provider"      validate:"oneof=pgvector memory"     env:"VECTOR_STORE"`
	URL          SensitiveString `koanf:"url"           json:"url"                                                env:"DATABASE_URL"     sensitive:"true"`
	Table        string          `koanf:"table"         json:"table"         validate:"required"                  env:"VECTOR_TABLE"`
	Index        string          `koanf:"index"         json:"index"         validate:"omitempty,oneof=hnsw ivfflat" env:"VECTOR_INDEX"`
	MaxConns     int32           `koanf:"max_conns"     json:"max_conns"     validate:"min=1"                     env:"DB_MAX_CONNS"`
	MinConns     int32           `koanf:"min_conns"     json:"min_conns"     validate:"min=0"                     env:"DB_MIN_CONNS"`
	QueryTimeout time.Duration   `koanf:"query_timeout" json:"query_timeout" validate:"min=0"                     env:"DB_QUERY_TIMEOUT"`
}

// OpenAIConfig holds the credentials shared by the embedder and the chat model.
type OpenAIConfig struct {
	APIKey  SensitiveString `koanf:"api_key"  json:"api_key"  env:"OPENAI_API_KEY"  sensitive:"true"`
	BaseURL string          `koanf:"base_url" json:"base_url" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
}

type EmbedderConfig struct {
	Provider  string              `koanf:"provider"  json:"provider"  validate:"oneof=openai hash" env:"EMBEDDING_PROVIDER"`
	Model     string              `koanf:"model"     json:"model"     validate:"required"         env:"EMBEDDING_MODEL"`
	Dimension int                 `koanf:"dimension" json:"dimension" validate:"min=1"            env:"EMBEDDING_DIMENSION"`
	BatchSize int                 `koanf:"batch_size" json:"batch_size" validate:"min=0"`
	Timeout   time.Duration       `koanf:"timeout"   json:"timeout"   validate:"min=0"            env:"EMBEDDING_TIMEOUT"`
	Retries   int                 `koanf:"retries"   json:"retries"   validate:"min=0"            env:"EMBEDDING_RETRIES"`
	Cache     EmbedderCacheConfig `koanf:"cache"     json:"cache"`
}

// EmbedderCacheConfig configures the query embedding cache. A Redis URL takes
// precedence over the in-process LRU; a zero size with no URL disables caching.
type EmbedderCacheConfig struct {
	Size     int             `koanf:"size"      json:"size"      validate:"min=0" env:"EMBEDDING_CACHE_SIZE"`
	RedisURL SensitiveString `koanf:"redis_url" json:"redis_url"                  env:"EMBEDDING_CACHE_REDIS_URL" sensitive:"true"`
	Prefix   string          `koanf:"prefix"    json:"prefix"`
	TTL      time.Duration   `koanf:"ttl"       json:"ttl"       validate:"min=0"`
}

type LLMConfig struct {
	Provider    string        `koanf:"provider"    json:"provider"    validate:"oneof=openai"   env:"CHAT_PROVIDER"`
	Model       string        `koanf:"model"       json:"model"       validate:"required"       env:"CHAT_MODEL"`
	Temperature float64       `koanf:"temperature" json:"temperature" validate:"min=0,max=2"    env:"CHAT_TEMPERATURE"`
	MaxTokens   int           `koanf:"max_tokens"  json:"max_tokens"  validate:"min=0"          env:"CHAT_MAX_TOKENS"`
	Timeout     time.Duration `koanf:"timeout"     json:"timeout"     validate:"min=0"          env:"CHAT_TIMEOUT"`
	Retries     int           `koanf:"retries"     json:"retries"     validate:"min=0"          env:"CHAT_RETRIES"`
}

type ChunkingConfig struct {
	Strategy  string `koanf:"strategy"   json:"strategy"   validate:"oneof=boundary recursive" env:"CHUNK_STRATEGY"`
	MaxLength int    `koanf:"max_length" json:"max_length" validate:"min=1"                    env:"CHUNK_SIZE"`
	Overlap   int    `koanf:"overlap"    json:"overlap"    validate:"min=0"                    env:"CHUNK_OVERLAP"`
}

type IngestConfig struct {
	BatchSize   int           `koanf:"batch_size"  json:"batch_size"  validate:"min=1" env:"INGEST_BATCH_SIZE"`
	BatchDelay  time.Duration `koanf:"batch_delay" json:"batch_delay" validate:"min=0" env:"INGEST_BATCH_DELAY"`
	Concurrency int           `koanf:"concurrency" json:"concurrency" validate:"min=1" env:"INGEST_CONCURRENCY"`
	// RateLimit caps external calls per second. Zero disables it.
	RateLimit float64 `koanf:"rate_limit" json:"rate_limit" validate:"min=0" env:"INGEST_RATE_LIMIT"`
	Burst     int     `koanf:"burst"      json:"burst"      validate:"min=0" env:"INGEST_RATE_BURST"`
}

type RetrievalConfig struct {
	TopK             int    `koanf:"top_k"              json:"top_k"              validate:"min=1" env:"RETRIEVAL_TOP_K"`
	PreviewLength    int    `koanf:"preview_length"     json:"preview_length"     validate:"min=1"`
	MaxContextTokens int    `koanf:"max_context_tokens" json:"max_context_tokens" validate:"min=0" env:"RETRIEVAL_MAX_CONTEXT_TOKENS"`
	Subject          string `koanf:"subject"            json:"subject"`
	Collection       string `koanf:"collection"         json:"collection"`
}

type CorpusConfig struct {
	Path        string `koanf:"path"          json:"path"          env:"CORPUS_PATH"`
	Author      string `koanf:"author"        json:"author"        env:"CORPUS_AUTHOR"`
	StartMarker string `koanf:"start_marker"  json:"start_marker"`
	EndMarker   string `koanf:"end_marker"    json:"end_marker"`
	MaxFileSize int64  `koanf:"max_file_size" json:"max_file_size" validate:"min=0"`
	// Works lists the titles to cut out of the corpus. Empty uses the built-in
	// Jane Austen collection.
	Works []WorkConfig `koanf:"works" json:"works" validate:"dive"`
}

type WorkConfig struct {
	Title  string `koanf:"title"  json:"title"  mapstructure:"title"  validate:"required"`
	Marker string `koanf:"marker" json:"marker" mapstructure:"marker"`
}

type ServerConfig struct {
	Host            string          `koanf:"host"             json:"host"             validate:"required"        env:"HOST"`
	Port            int             `koanf:"port"             json:"port"             validate:"min=1,max=65535" env:"PORT"`
	RequestTimeout  time.Duration   `koanf:"request_timeout"  json:"request_timeout"  validate:"min=0"           env:"SERVER_REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration   `koanf:"shutdown_timeout" json:"shutdown_timeout" validate:"min=1"`
	MaxBodyBytes    int64           `koanf:"max_body_bytes"   json:"max_body_bytes"   validate:"min=1"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"       json:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled       bool            `koanf:"enabled"        json:"enabled"        env:"RATE_LIMIT_ENABLED"`
	Rate          string          `koanf:"rate"           json:"rate"           env:"RATE_LIMIT"           validate:"required,limiter_rate"`
	Prefix        string          `koanf:"prefix"         json:"prefix"`
	RedisURL      SensitiveString `koanf:"redis_url"      json:"redis_url"      env:"RATE_LIMIT_REDIS_URL" sensitive:"true"`
	MaxRetry      int             `koanf:"max_retry"      json:"max_retry"      validate:"min=0"`
	ExcludedPaths []string        `koanf:"excluded_paths" json:"excluded_paths"`
}

type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    json:"path"    env:"MONITORING_PATH" validate:"required,startswith=/"`
}

type RuntimeConfig struct {
	Environment string `koanf:"environment" json:"environment" env:"APP_ENV"    validate:"oneof=development production test"`
	LogLevel    string `koanf:"log_level"   json:"log_level"   env:"LOG_LEVEL"  validate:"oneof=debug info warn error disabled"`
	LogJSON     bool   `koanf:"log_json"    json:"log_json"    env:"LOG_JSON"`
	LogSource   bool   `koanf:"log_source"  json:"log_source"  env:"LOG_SOURCE"`
}

// Service loads and validates configuration from layered sources.
type Service interface {
	Load(ctx context.Context, sources ...Source) (*Config, error)
	Validate(config *Config) error
	GetSource(key string) SourceType
}

// Source provides one configuration layer.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceCLI     SourceType = "cli"
)

// Metadata records where each key came from.
type Metadata struct {
	Sources  map[string]SourceType
	LoadedAt time.Time
}

// Load reads defaults and environment variables.
func Load() (*Config, error) {
	return NewService().Load(context.Background())
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Provider:     "pgvector",
			Table:        "documents",
			MaxConns:     10,
			MinConns:     0,
			QueryTimeout: 30 * time.Second,
		},
		Embedder: EmbedderConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 512,
			Timeout:   30 * time.Second,
			Retries:   2,
			Cache: EmbedderCacheConfig{
				Size:   1024,
				Prefix: "gnoskos:embed:",
				TTL:    24 * time.Hour,
			},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			Retries:     2,
		},
		Chunking: ChunkingConfig{
			Strategy:  "boundary",
			MaxLength: 1000,
			Overlap:   200,
		},
		Ingest: IngestConfig{
			BatchSize:   50,
			BatchDelay:  time.Second,
			Concurrency: 1,
		},
		Retrieval: RetrievalConfig{
			TopK:          3,
			PreviewLength: 200,
			Subject:       "Jane Austen's works",
			Collection:    "Jane Austen's novels",
		},
		Corpus: CorpusConfig{
			Path:        "pg31100.txt",
			Author:      "Jane Austen",
			StartMarker: "*** START OF",
			EndMarker:   "*** END OF",
			MaxFileSize: 64 << 20,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:       false,
				Rate:          "60-M",
				Prefix:        "gnoskos:ratelimit:",
				MaxRetry:      3,
				ExcludedPaths: []string{"/health", "/metrics"},
			},
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
	}
}
