package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

// Completer turns a fully rendered prompt into model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client adapts a langchaingo model to Completer.
type Client struct {
	model       llms.Model
	name        string
	temperature float64
	maxTokens   int
	policy      core.CallPolicy
}

var _ Completer = (*Client)(nil)

// New builds a client for the configured provider.
func New(_ context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: llm: initialize openai client: %w", core.ErrInvalidConfiguration, err)
		}
		return Wrap(cfg, model)
	default:
		return nil, fmt.Errorf("%w: llm provider %q is not supported", core.ErrInvalidConfiguration, cfg.Provider)
	}
}

// Wrap builds a client around an existing langchaingo model.
func Wrap(cfg Config, model llms.Model) (*Client, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: llm model implementation is required", core.ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		model:       model,
		name:        cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		policy:      cfg.Policy,
	}, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	start := time.Now()
	var text string
	err := core.Call(ctx, c.policy, func(ctx context.Context) error {
		var callErr error
		text, callErr = llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
		return callErr
	})
	if err != nil {
		return "", core.WrapKind(core.ErrCompletionFailure, "llm "+c.name+": complete", err)
	}
	logger.FromContext(ctx).Debug("Completed prompt", "model", c.name, "duration", time.Since(start))
	return text, nil
}
