package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/infra/monitoring"
	"github.com/gnoskos/gnoskos/engine/infra/server"
	"github.com/gnoskos/gnoskos/engine/infra/server/middleware/ratelimit"
	"github.com/gnoskos/gnoskos/engine/knowledge/chunk"
	"github.com/gnoskos/gnoskos/engine/knowledge/corpus"
	"github.com/gnoskos/gnoskos/engine/knowledge/embedder"
	"github.com/gnoskos/gnoskos/engine/knowledge/ingest"
	"github.com/gnoskos/gnoskos/engine/knowledge/retriever"
	"github.com/gnoskos/gnoskos/engine/knowledge/vectordb"
	"github.com/gnoskos/gnoskos/engine/llm"
	"github.com/gnoskos/gnoskos/pkg/config"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

// Components holds the collaborators one command builds from configuration.
type Components struct {
	Config   *config.Config
	Store    vectordb.Store
	Embedder embedder.Embedder
	closers  []func(context.Context) error
}

// BuildComponents opens the vector store and the embedder.
func BuildComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{Config: cfg}
	store, err := vectordb.New(ctx, VectorStoreConfig(cfg))
	if err != nil {
		return nil, err
	}
	c.Store = store
	c.closers = append(c.closers, store.Close)
	emb, err := c.buildEmbedder(ctx)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Embedder = emb
	return c, nil
}

func (c *Components) buildEmbedder(ctx context.Context) (embedder.Embedder, error) {
	adapter, err := embedder.New(ctx, EmbedderConfig(c.Config))
	if err != nil {
		return nil, err
	}
	cacheCfg := c.Config.Embedder.Cache
	switch {
	case cacheCfg.RedisURL != "":
		client, err := NewRedisClient(cacheCfg.RedisURL.Value())
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		adapter.WithCache(embedder.NewRedisCache(client, cacheCfg.Prefix, cacheCfg.TTL))
		logger.FromContext(ctx).Debug("Using redis query embedding cache")
	case cacheCfg.Size > 0:
		cache, err := embedder.NewLRUCache(cacheCfg.Size)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
		}
		adapter.WithCache(cache)
	}
	return adapter, nil
}

// Pipeline builds the ingestion pipeline over the opened components.
func (c *Components) Pipeline(progress func(ingest.Progress)) (*ingest.Pipeline, error) {
	splitter, err := chunk.NewSplitter(ChunkSettings(c.Config))
	if err != nil {
		return nil, err
	}
	opts := IngestOptions(c.Config)
	opts.Progress = progress
	return ingest.NewPipeline(splitter, c.Embedder, c.Store, opts)
}

// Retriever builds the question answering service, including the chat model.
func (c *Components) Retriever(ctx context.Context) (*retriever.Service, error) {
	completer, err := llm.New(ctx, LLMConfig(c.Config))
	if err != nil {
		return nil, err
	}
	return retriever.NewService(c.Embedder, c.Store, completer, RetrieverOptions(c.Config))
}

// Close releases everything in reverse order of acquisition.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %s", core.ErrInvalidConfiguration, core.RedactError(err))
	}
	return redis.NewClient(opts), nil
}

func VectorStoreConfig(cfg *config.Config) *vectordb.Config {
	return &vectordb.Config{
		Provider:     vectordb.Provider(cfg.Database.Provider),
		DSN:          cfg.Database.URL.Value(),
		Table:        cfg.Database.Table,
		Dimension:    cfg.Embedder.Dimension,
		Index:        vectordb.IndexKind(cfg.Database.Index),
		MaxConns:     cfg.Database.MaxConns,
		MinConns:     cfg.Database.MinConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	}
}

func EmbedderConfig(cfg *config.Config) *embedder.Config {
	return &embedder.Config{
		Provider:      embedder.Provider(cfg.Embedder.Provider),
		Model:         cfg.Embedder.Model,
		APIKey:        cfg.OpenAI.APIKey.Value(),
		BaseURL:       cfg.OpenAI.BaseURL,
		Dimension:     cfg.Embedder.Dimension,
		BatchSize:     cfg.Embedder.BatchSize,
		StripNewLines: true,
		Policy: core.CallPolicy{
			Timeout:  cfg.Embedder.Timeout,
			Attempts: cfg.Embedder.Retries,
		},
	}
}

func LLMConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		Model:       cfg.LLM.Model,
		APIKey:      cfg.OpenAI.APIKey.Value(),
		BaseURL:     cfg.OpenAI.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Policy: core.CallPolicy{
			Timeout:  cfg.LLM.Timeout,
			Attempts: cfg.LLM.Retries,
		},
	}
}

func ChunkSettings(cfg *config.Config) chunk.Settings {
	return chunk.Settings{
		Strategy:  chunk.Strategy(cfg.Chunking.Strategy),
		MaxLength: cfg.Chunking.MaxLength,
		Overlap:   cfg.Chunking.Overlap,
	}
}

func IngestOptions(cfg *config.Config) ingest.Options {
	return ingest.Options{
		BatchSize:       cfg.Ingest.BatchSize,
		InterBatchDelay: cfg.Ingest.BatchDelay,
		Concurrency:     cfg.Ingest.Concurrency,
		Limiter:         ingest.NewRateLimiter(cfg.Ingest.RateLimit, cfg.Ingest.Burst),
	}
}

func RetrieverOptions(cfg *config.Config) retriever.Options {
	return retriever.Options{
		TopK:             cfg.Retrieval.TopK,
		PreviewLength:    cfg.Retrieval.PreviewLength,
		MaxContextTokens: cfg.Retrieval.MaxContextTokens,
		Subject:          cfg.Retrieval.Subject,
		Collection:       cfg.Retrieval.Collection,
	}
}

func CorpusOptions(cfg *config.Config) corpus.Options {
	opts := corpus.Options{
		Author:      cfg.Corpus.Author,
		StartMarker: cfg.Corpus.StartMarker,
		EndMarker:   cfg.Corpus.EndMarker,
		MaxFileSize: cfg.Corpus.MaxFileSize,
		Works:       corpus.DefaultWorks(),
	}
	if len(cfg.Corpus.Works) > 0 {
		opts.Works = make([]corpus.Work, len(cfg.Corpus.Works))
		for i, w := range cfg.Corpus.Works {
			marker := w.Marker
			if marker == "" {
				marker = strings.ToUpper(w.Title)
			}
			opts.Works[i] = corpus.Work{Title: w.Title, Marker: marker}
		}
	}
	return opts
}

func MonitoringConfig(cfg *config.Config) *monitoring.Config {
	return &monitoring.Config{Enabled: cfg.Monitoring.Enabled, Path: cfg.Monitoring.Path}
}

func ServerConfig(cfg *config.Config) *server.Config {
	rl := cfg.Server.RateLimit
	return &server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		RateLimit: ratelimit.Config{
			Enabled:       rl.Enabled,
			Rate:          rl.Rate,
			Prefix:        rl.Prefix,
			RedisURL:      rl.RedisURL.Value(),
			MaxRetry:      rl.MaxRetry,
			ExcludedPaths: rl.ExcludedPaths,
		},
	}
}
