package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gnoskos/gnoskos/engine/core"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

var (
	errMissingModel       = errors.New("llm model is required")
	errInvalidTemperature = errors.New("llm temperature must be between 0 and 2")
)

// Config selects the chat model used to answer questions.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Policy      core.CallPolicy
}

func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
	}
}

func (c *Config) Validate() error {
	var err error
	switch {
	case strings.TrimSpace(c.Model) == "":
		err = errMissingModel
	case c.Temperature < 0 || c.Temperature > 2:
		err = errInvalidTemperature
	}
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}
	return nil
}
