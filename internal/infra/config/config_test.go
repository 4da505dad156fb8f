package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RetrievalParameters_Defaults(t *testing.T) {
	envVars := []string{
		"RETRIEVAL_BROAD_K",
		"RETRIEVAL_MAX_UNITS",
		"RETRIEVAL_PER_UNIT_K",
		"RETRIEVAL_MAX_CONTEXT",
		"RETRIEVAL_STORE_RETRIES",
		"RETRIEVAL_STORE_TIMEOUT",
	}
	for _, key := range envVars {
		_ = os.Unsetenv(key)
	}

	cfg := Load()

	assert.Equal(t, 5, cfg.BroadK, "broad search k should default to 5")
	assert.Equal(t, 3, cfg.MaxUnits, "max units should default to 3")
	assert.Equal(t, 4, cfg.PerUnitK, "per-unit k should default to 4")
	assert.Equal(t, 8, cfg.MaxContext, "max context should default to 8")
	assert.Equal(t, 2, cfg.StoreRetries)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
}

func TestLoad_RetrievalParameters_FromEnv(t *testing.T) {
	t.Setenv("RETRIEVAL_BROAD_K", "10")
	t.Setenv("RETRIEVAL_MAX_UNITS", "2")
	t.Setenv("RETRIEVAL_PER_UNIT_K", "6")
	t.Setenv("RETRIEVAL_MAX_CONTEXT", "12")
	t.Setenv("RETRIEVAL_STORE_TIMEOUT", "2s")

	cfg := Load()

	assert.Equal(t, 10, cfg.BroadK)
	assert.Equal(t, 2, cfg.MaxUnits)
	assert.Equal(t, 6, cfg.PerUnitK)
	assert.Equal(t, 12, cfg.MaxContext)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
}

func TestLoad_EmbedderConfig(t *testing.T) {
	_ = os.Unsetenv("EMBEDDER_URL")
	_ = os.Unsetenv("OLLAMA_URL")
	_ = os.Unsetenv("EMBEDDING_MODEL")

	cfg := Load()
	assert.Equal(t, "http://embedder:11434", cfg.EmbedderURL)
	assert.Equal(t, "bge-m3", cfg.EmbeddingModel)

	t.Setenv("OLLAMA_URL", "http://localhost:11434")
	cfg = Load()
	assert.Equal(t, "http://localhost:11434", cfg.EmbedderURL, "OLLAMA_URL should serve as alternate key")

	t.Setenv("EMBEDDER_URL", "http://embed.internal:8080")
	cfg = Load()
	assert.Equal(t, "http://embed.internal:8080", cfg.EmbedderURL, "EMBEDDER_URL should take precedence")
}

func TestGetSecret_FromFile(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "api_key")
	require.NoError(t, os.WriteFile(secretFile, []byte("file-secret\n"), 0o600))

	_ = os.Unsetenv("GEMINI_API_KEY")
	t.Setenv("GEMINI_API_KEY_FILE", secretFile)

	value := getSecret("GEMINI_API_KEY", "GEMINI_API_KEY_FILE", "fallback")
	assert.Equal(t, "file-secret", value, "secret file content should be trimmed")
}

func TestGetSecret_DirectEnvWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-secret")
	t.Setenv("GEMINI_API_KEY_FILE", "/nonexistent")

	value := getSecret("GEMINI_API_KEY", "GEMINI_API_KEY_FILE", "fallback")
	assert.Equal(t, "env-secret", value)
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback time.Duration
		expected time.Duration
	}{
		{
			name:     "valid value",
			envValue: "30s",
			fallback: 5 * time.Second,
			expected: 30 * time.Second,
		},
		{
			name:     "invalid value uses fallback",
			envValue: "not-a-duration",
			fallback: 5 * time.Second,
			expected: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)

			result := getEnvDuration("TEST_DURATION", tt.fallback)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoad_AnswerCacheDefaults(t *testing.T) {
	_ = os.Unsetenv("ANSWER_CACHE_SIZE")
	_ = os.Unsetenv("ANSWER_CACHE_TTL")

	cfg := Load()

	assert.Equal(t, 256, cfg.AnswerCacheSize)
	assert.Equal(t, 10*time.Minute, cfg.AnswerCacheTTL)
}
