package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Retrieval RetrievalConfig
	Embedding EmbeddingConfig
	AI        AIConfig
	Pipeline  PipelineConfig
}

// DatabaseConfig holds persistence configuration. When DSN is empty the
// repository falls back to SQLite at Path (":memory:" is accepted).
type DatabaseConfig struct {
	DSN         string
	Path        string
	DialTimeout time.Duration
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	TopK              int
	SemanticMetric    string // "cosine" or "l2"
	SemanticThreshold float64
	TermsFile         string // optional YAML taxonomy override
}

// EmbeddingConfig selects and configures the passage embedder.
type EmbeddingConfig struct {
	Type    string // "tfidf" or "openai"
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// AIConfig holds refinement provider settings. PrimaryKeys is the rotatable
// credential pool; the fallback provider gets a single key.
type AIConfig struct {
	PrimaryBaseURL  string
	PrimaryModel    string
	PrimaryKeys     []string
	FallbackBaseURL string
	FallbackModel   string
	FallbackKey     string
	Timeout         time.Duration
	MaxRetries      int
	MaxPromptBytes  int
}

// PipelineConfig holds concurrency and timeout settings.
type PipelineConfig struct {
	Workers           int
	QueueSize         int
	RefineConcurrency int
	DocumentTimeout   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:         getEnv("DB_URL", ""),
			Path:        getEnv("DB_PATH", "specsift.db"),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:              getEnvAsInt("RETRIEVAL_TOP_K", 35),
			SemanticMetric:    getEnv("SEMANTIC_METRIC", "cosine"),
			SemanticThreshold: getEnvAsFloat64("SEMANTIC_THRESHOLD", 0.35),
			TermsFile:         getEnv("TERMS_FILE", ""),
		},
		Embedding: EmbeddingConfig{
			Type:    getEnv("EMBEDDER", "tfidf"),
			BaseURL: getEnv("EMBED_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getEnv("EMBED_API_KEY", ""),
			Model:   getEnv("EMBED_MODEL", "text-embedding-3-small"),
			Timeout: getEnvAsDuration("EMBED_TIMEOUT", 30*time.Second),
		},
		AI: AIConfig{
			PrimaryBaseURL:  getEnv("AI_PRIMARY_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			PrimaryModel:    getEnv("AI_PRIMARY_MODEL", "gemini-2.0-flash"),
			PrimaryKeys:     loadKeyPool("AI_PRIMARY_KEY"),
			FallbackBaseURL: getEnv("AI_FALLBACK_BASE_URL", "https://openrouter.ai/api/v1"),
			FallbackModel:   getEnv("AI_FALLBACK_MODEL", "google/gemma-3n-e2b-it:free"),
			FallbackKey:     getEnv("AI_FALLBACK_KEY", ""),
			Timeout:         getEnvAsDuration("AI_TIMEOUT", 90*time.Second),
			MaxRetries:      getEnvAsInt("AI_MAX_RETRIES", 2),
			MaxPromptBytes:  getEnvAsInt("AI_MAX_PROMPT_BYTES", 24_000),
		},
		Pipeline: PipelineConfig{
			Workers:           getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:         getEnvAsInt("PIPELINE_QUEUE_SIZE", 64),
			RefineConcurrency: getEnvAsInt("REFINE_CONCURRENCY", 3),
			DocumentTimeout:   getEnvAsDuration("DOCUMENT_TIMEOUT", 10*time.Minute),
		},
	}
}

// loadKeyPool reads either a comma-separated list from <prefix>S, or the
// numbered variables <prefix>_1, <prefix>_2, ... (the form the hosted
// deployments use).
func loadKeyPool(prefix string) []string {
	if v := os.Getenv(prefix + "S"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}
	var keys []string
	for i := 1; ; i++ {
		v := os.Getenv(prefix + "_" + strconv.Itoa(i))
		if v == "" {
			break
		}
		keys = append(keys, v)
	}
	return keys
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Retrieval.TopK <= 0 {
		return NewAppError("CONFIG_ERROR", "RETRIEVAL_TOP_K must be positive", ErrInvalidInput)
	}
	if m := c.Retrieval.SemanticMetric; m != "cosine" && m != "l2" {
		return NewAppError("CONFIG_ERROR", "SEMANTIC_METRIC must be cosine or l2", ErrInvalidInput)
	}
	if c.Embedding.Type == "openai" && c.Embedding.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "EMBED_API_KEY is required for the openai embedder", ErrInvalidInput)
	}
	if len(c.AI.PrimaryKeys) == 0 && c.AI.FallbackKey == "" {
		return NewAppError("CONFIG_ERROR", "no AI credentials configured; refinement will be skipped", ErrInvalidInput)
	}
	return nil
}
