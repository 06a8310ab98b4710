package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitiveString(t *testing.T) {
	t.Run("Should redact non-empty values", func(t *testing.T) {
		s := SensitiveString("sk-secret-123")
		assert.Equal(t, "[REDACTED]", s.String())
		assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
		assert.Equal(t, "sk-secret-123", s.Value())
	})

	t.Run("Should keep empty values empty", func(t *testing.T) {
		assert.Equal(t, "", SensitiveString("").String())
	})

	t.Run("Should marshal as redacted and unmarshal the real value", func(t *testing.T) {
		data, err := json.Marshal(OpenAIConfig{APIKey: "sk-secret"})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"api_key":"[REDACTED]"`)
		assert.NotContains(t, string(data), "sk-secret")

		var cfg OpenAIConfig
		require.NoError(t, json.Unmarshal([]byte(`{"api_key":"sk-real"}`), &cfg))
		assert.Equal(t, "sk-real", cfg.APIKey.Value())
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("Should map the documented variables", func(t *testing.T) {
		m := GenerateEnvToConfigMap()
		expected := map[string]string{
			"DATABASE_URL":       "database.url",
			"OPENAI_API_KEY":     "openai.api_key",
			"PORT":               "server.port",
			"HOST":               "server.host",
			"EMBEDDING_MODEL":    "embedder.model",
			"CHAT_MODEL":         "llm.model",
			"CHUNK_SIZE":         "chunking.max_length",
			"CHUNK_OVERLAP":      "chunking.overlap",
			"INGEST_BATCH_SIZE":  "ingest.batch_size",
			"INGEST_BATCH_DELAY": "ingest.batch_delay",
			"LOG_LEVEL":          "runtime.log_level",
			"RATE_LIMIT":         "server.rate_limit.rate",
		}
		for env, path := range expected {
			assert.Equal(t, path, m[env], env)
			assert.Equal(t, env, GetEnvVarForConfigPath(path), path)
		}
	})

	t.Run("Should flag secrets", func(t *testing.T) {
		assert.True(t, IsSensitiveConfigPath("database.url"))
		assert.True(t, IsSensitiveConfigPath("openai.api_key"))
		assert.True(t, IsSensitiveConfigPath("embedder.cache.redis_url"))
		assert.False(t, IsSensitiveConfigPath("server.port"))
		assert.False(t, IsSensitiveConfigPath("server.missing"))
		assert.False(t, IsSensitiveConfigPath("server.port.deeper"))
	})
}

func TestContext(t *testing.T) {
	t.Run("Should return the attached config", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 4242
		ctx := ContextWithConfig(t.Context(), cfg)
		assert.Same(t, cfg, FromContext(ctx))
	})

	t.Run("Should fall back to defaults", func(t *testing.T) {
		assert.Equal(t, Default(), FromContext(t.Context()))
	})
}

func TestCLIProvider(t *testing.T) {
	t.Run("Should map known flags and ignore others", func(t *testing.T) {
		data, err := NewCLIProvider(map[string]any{
			"log-level": "debug",
			"port":      8081,
			"unknown":   true,
		}).Load()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"runtime": map[string]any{"log_level": "debug"},
			"server":  map[string]any{"port": 8081},
		}, data)
	})
}
