package embedder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gnoskos/gnoskos/engine/core"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	// ProviderHash is a deterministic offline embedder built on feature hashing.
	ProviderHash Provider = "hash"
)

const (
	DefaultModel     = "text-embedding-3-small"
	DefaultDimension = 1536
)

var (
	errMissingProvider  = errors.New("embedder provider is required")
	errMissingModel     = errors.New("embedder model is required")
	errInvalidDimension = errors.New("embedder dimension must be greater than zero")
)

// Config describes how to reach an embedding model.
type Config struct {
	Provider      Provider
	Model         string
	APIKey        string
	BaseURL       string
	Dimension     int
	BatchSize     int
	StripNewLines bool
	Policy        core.CallPolicy
}

func validateConfig(cfg *Config) error {
	var err error
	switch {
	case strings.TrimSpace(string(cfg.Provider)) == "":
		err = errMissingProvider
	case strings.TrimSpace(cfg.Model) == "":
		err = errMissingModel
	case cfg.Dimension <= 0:
		err = errInvalidDimension
	}
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}
	return nil
}
