package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 35, cfg.Retrieval.TopK)
	assert.Equal(t, "cosine", cfg.Retrieval.SemanticMetric)
	assert.InDelta(t, 0.35, cfg.Retrieval.SemanticThreshold, 1e-9)
	assert.Equal(t, "tfidf", cfg.Embedding.Type)
	assert.Equal(t, 90*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 2, cfg.AI.MaxRetries)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_TOP_K", "10")
	t.Setenv("SEMANTIC_METRIC", "l2")
	t.Setenv("SEMANTIC_THRESHOLD", "0.8")
	t.Setenv("AI_TIMEOUT", "30s")
	t.Setenv("EMBEDDER", "openai")

	cfg := LoadConfig()
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, "l2", cfg.Retrieval.SemanticMetric)
	assert.InDelta(t, 0.8, cfg.Retrieval.SemanticThreshold, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "openai", cfg.Embedding.Type)
}

func TestLoadKeyPool(t *testing.T) {
	t.Run("comma separated", func(t *testing.T) {
		t.Setenv("AI_PRIMARY_KEYS", " k1, k2 ,k3,")
		cfg := LoadConfig()
		assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.AI.PrimaryKeys)
	})

	t.Run("numbered variables", func(t *testing.T) {
		t.Setenv("AI_PRIMARY_KEY_1", "first")
		t.Setenv("AI_PRIMARY_KEY_2", "second")
		cfg := LoadConfig()
		assert.Equal(t, []string{"first", "second"}, cfg.AI.PrimaryKeys)
	})

	t.Run("comma list wins over numbered", func(t *testing.T) {
		t.Setenv("AI_PRIMARY_KEYS", "pool")
		t.Setenv("AI_PRIMARY_KEY_1", "numbered")
		cfg := LoadConfig()
		assert.Equal(t, []string{"pool"}, cfg.AI.PrimaryKeys)
	})
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		t.Setenv("AI_FALLBACK_KEY", "fb")
		return LoadConfig()
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("bad top-k", func(t *testing.T) {
		cfg := base()
		cfg.Retrieval.TopK = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("bad metric", func(t *testing.T) {
		cfg := base()
		cfg.Retrieval.SemanticMetric = "manhattan"
		assert.Error(t, cfg.Validate())
	})

	t.Run("openai embedder needs key", func(t *testing.T) {
		cfg := base()
		cfg.Embedding.Type = "openai"
		cfg.Embedding.APIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("no AI credentials", func(t *testing.T) {
		cfg := base()
		cfg.AI.PrimaryKeys = nil
		cfg.AI.FallbackKey = ""
		assert.Error(t, cfg.Validate())
	})
}
