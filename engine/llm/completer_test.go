package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/gnoskos/gnoskos/engine/core"
)

type stubModel struct {
	reply    string
	errs     []error
	calls    atomic.Int32
	prompt   string
	options  llms.CallOptions
	blocking bool
}

func (s *stubModel) GenerateContent(
	ctx context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	n := int(s.calls.Add(1))
	for _, opt := range options {
		opt(&s.options)
	}
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if text, ok := messages[0].Parts[0].(llms.TextContent); ok {
			s.prompt = text.Text
		}
	}
	if s.blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= len(s.errs) && s.errs[n-1] != nil {
		return nil, s.errs[n-1]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.reply}}}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Policy = core.CallPolicy{Attempts: 2, Backoff: time.Millisecond}
	return cfg
}

func TestClient_Complete(t *testing.T) {
	t.Run("Should send the prompt with the configured temperature", func(t *testing.T) {
		model := &stubModel{reply: "Emma is handsome, clever, and rich."}
		client, err := Wrap(testConfig(), model)
		require.NoError(t, err)

		out, err := client.Complete(t.Context(), "Question: Who is Emma?")
		require.NoError(t, err)
		assert.Equal(t, "Emma is handsome, clever, and rich.", out)
		assert.Equal(t, "Question: Who is Emma?", model.prompt)
		assert.InDelta(t, 0.7, model.options.Temperature, 1e-9)
	})

	t.Run("Should retry a rate-limited call", func(t *testing.T) {
		model := &stubModel{reply: "ok", errs: []error{errors.New("API returned unexpected status code: 429")}}
		client, err := Wrap(testConfig(), model)
		require.NoError(t, err)

		out, err := client.Complete(t.Context(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.EqualValues(t, 2, model.calls.Load())
	})

	t.Run("Should not retry a permanent failure", func(t *testing.T) {
		model := &stubModel{errs: []error{errors.New("invalid api key")}}
		client, err := Wrap(testConfig(), model)
		require.NoError(t, err)

		_, err = client.Complete(t.Context(), "prompt")
		assert.ErrorIs(t, err, core.ErrCompletionFailure)
		assert.EqualValues(t, 1, model.calls.Load())
	})

	t.Run("Should make a single attempt when retry is disabled", func(t *testing.T) {
		model := &stubModel{errs: []error{errors.New("503 service unavailable")}}
		cfg := DefaultConfig()
		client, err := Wrap(cfg, model)
		require.NoError(t, err)

		_, err = client.Complete(t.Context(), "prompt")
		assert.ErrorIs(t, err, core.ErrCompletionFailure)
		assert.EqualValues(t, 1, model.calls.Load())
	})

	t.Run("Should report a timeout when the model hangs", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Policy = core.CallPolicy{Timeout: 20 * time.Millisecond}
		client, err := Wrap(cfg, &stubModel{blocking: true})
		require.NoError(t, err)

		_, err = client.Complete(t.Context(), "prompt")
		assert.ErrorIs(t, err, core.ErrCompletionFailure)
		assert.ErrorIs(t, err, core.ErrTimeout)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Should accept the defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Should reject a missing model or wild temperature", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Model = " "
		assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfiguration)
		cfg = DefaultConfig()
		cfg.Temperature = 3
		assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfiguration)
	})

	t.Run("Should reject unknown providers and nil models", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider = "cohere"
		_, err := New(t.Context(), cfg)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		_, err = Wrap(DefaultConfig(), nil)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})
}
