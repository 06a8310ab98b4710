package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gnoskos/gnoskos/engine/core"
)

var (
	errMissingDSN       = errors.New("vector_db dsn is required")
	errInvalidDimension = errors.New("vector_db dimension must be greater than zero")
	errInvalidIndex     = errors.New("vector_db index must be hnsw or ivfflat")
)

// New builds the store selected by cfg.Provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: vector_db config is required", core.ErrInvalidConfiguration)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderPGVector, "":
		return NewPGStore(ctx, cfg)
	case ProviderMemory:
		return NewMemoryStore(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: vector_db provider %q is not supported", core.ErrInvalidConfiguration, cfg.Provider)
	}
}

func validateConfig(cfg *Config) error {
	var err error
	switch {
	case cfg.Dimension <= 0:
		err = errInvalidDimension
	case cfg.Provider != ProviderMemory && strings.TrimSpace(cfg.DSN) == "":
		err = errMissingDSN
	case cfg.Index != IndexNone && cfg.Index != IndexHNSW && cfg.Index != IndexIVFFlat:
		err = errInvalidIndex
	}
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}
	return nil
}

func checkRecord(rec *Record, dimension int) error {
	if len(rec.Embedding) != dimension {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(rec.Embedding), dimension)
	}
	if rec.Content == "" {
		return errors.New("record content is empty")
	}
	return rec.Metadata.Validate()
}
