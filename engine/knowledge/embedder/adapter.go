package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

// Embedder maps text to fixed-length vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Adapter wraps a langchaingo embedder with per-call timeouts, bounded retry
// for transient failures, dimension checks and an optional query cache.
type Adapter struct {
	provider  Provider
	model     string
	dimension int
	policy    core.CallPolicy
	impl      embeddings.Embedder
	cache     Cache
}

var _ Embedder = (*Adapter)(nil)

// New constructs a provider-backed adapter.
func New(_ context.Context, cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: embedder config is required", core.ErrInvalidConfiguration)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	impl, err := buildProviderEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return newAdapter(cfg, impl), nil
}

// Wrap constructs an adapter around an existing langchaingo embedder.
func Wrap(cfg *Config, impl embeddings.Embedder) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: embedder config is required", core.ErrInvalidConfiguration)
	}
	if impl == nil {
		return nil, fmt.Errorf("%w: embedder implementation is required", core.ErrInvalidConfiguration)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return newAdapter(cfg, impl), nil
}

func newAdapter(cfg *Config, impl embeddings.Embedder) *Adapter {
	return &Adapter{
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		policy:    cfg.Policy,
		impl:      impl,
	}
}

// WithCache enables query caching. A nil cache disables it.
func (a *Adapter) WithCache(cache Cache) *Adapter {
	a.cache = cache
	return a
}

func (a *Adapter) Dimension() int {
	return a.dimension
}

func (a *Adapter) Model() string {
	return a.model
}

func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := core.Call(ctx, a.policy, func(ctx context.Context) error {
		var callErr error
		vectors, callErr = a.impl.EmbedDocuments(ctx, texts)
		return callErr
	})
	if err != nil {
		return nil, a.fail("embed documents", err)
	}
	if len(vectors) != len(texts) {
		return nil, a.fail("embed documents", fmt.Errorf("received %d embeddings for %d texts", len(vectors), len(texts)))
	}
	for i := range vectors {
		if err := a.checkDimension(vectors[i]); err != nil {
			return nil, a.fail("embed documents", err)
		}
	}
	return vectors, nil
}

func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := a.cacheKey(text)
	if a.cache != nil {
		vector, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			logger.FromContext(ctx).Warn("Embedding cache lookup failed", "model", a.model, "error", err)
		}
		if ok && a.checkDimension(vector) == nil {
			return vector, nil
		}
	}
	start := time.Now()
	var vector []float32
	err := core.Call(ctx, a.policy, func(ctx context.Context) error {
		var callErr error
		vector, callErr = a.impl.EmbedQuery(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, a.fail("embed query", err)
	}
	if err := a.checkDimension(vector); err != nil {
		return nil, a.fail("embed query", err)
	}
	logger.FromContext(ctx).Debug("Embedded query", "model", a.model, "duration", time.Since(start))
	if a.cache != nil {
		if err := a.cache.Set(ctx, key, vector); err != nil {
			logger.FromContext(ctx).Warn("Embedding cache store failed", "model", a.model, "error", err)
		}
	}
	return vector, nil
}

var errDimensionMismatch = errors.New("embedding dimension mismatch")

func (a *Adapter) checkDimension(vector []float32) error {
	if len(vector) != a.dimension {
		return fmt.Errorf("%w: got %d, want %d", errDimensionMismatch, len(vector), a.dimension)
	}
	return nil
}

func (a *Adapter) fail(op string, err error) error {
	return core.WrapKind(core.ErrEmbeddingFailure, fmt.Sprintf("embedder %s/%s: %s", a.provider, a.model, op), err)
}

func (a *Adapter) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return a.model + ":" + hex.EncodeToString(sum[:])
}

func buildProviderEmbedder(cfg *Config) (embeddings.Embedder, error) {
	options := []embeddings.Option{embeddings.WithStripNewLines(cfg.StripNewLines)}
	if cfg.BatchSize > 0 {
		options = append(options, embeddings.WithBatchSize(cfg.BatchSize))
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return buildOpenAIEmbedder(cfg, options...)
	case ProviderHash:
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: embedder provider %q is not supported", core.ErrInvalidConfiguration, cfg.Provider)
	}
}

func buildOpenAIEmbedder(cfg *Config, opts ...embeddings.Option) (embeddings.Embedder, error) {
	openaiOpts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		openaiOpts = append(openaiOpts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(openaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: embedder: initialize openai client: %w", core.ErrInvalidConfiguration, err)
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: embedder: construct openai embedder: %w", core.ErrInvalidConfiguration, err)
	}
	return embedder, nil
}
