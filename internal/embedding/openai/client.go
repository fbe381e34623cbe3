package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client is an OpenAI-compatible embeddings client. Any endpoint that speaks
// the /embeddings wire shape works (OpenAI, Gemini's compat layer, Ollama
// behind a shim).
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger

	// Learned from the first successful response; the client is shared
	// across concurrent document runs, so the write must be atomic.
	dimension atomic.Int64
}

// Config configures the embeddings client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates an embeddings client with the given configuration.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Prepare is a no-op for remote embedding; the dimension is learned lazily on
// the first successful Embed call.
func (c *Client) Prepare(_ []string) error { return nil }

// Dimension returns the dimensionality of the produced vectors (0 until the
// first Embed).
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed requests embeddings for a batch of texts, retrying transient failures
// with exponential backoff.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	body := map[string]any{"model": c.cfg.Model, "input": texts}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		vecs, retryable, err := c.embedOnce(ctx, url, body)
		if err == nil {
			if len(vecs) > 0 {
				c.dimension.CompareAndSwap(0, int64(len(vecs[0])))
			}
			return vecs, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.log.Warn("embed.retry", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("embed %d texts: %w", len(texts), lastErr)
}

func (c *Client) embedOnce(ctx context.Context, url string, body map[string]any) ([][]float32, bool, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("encode json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("embeddings http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("embeddings response body close error", "error", cerr)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("embeddings status %d: %s", resp.StatusCode, string(payload))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("embeddings status %d: %s", resp.StatusCode, string(payload))
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, false, errors.New("no embeddings in response")
	}
	vecs := make([][]float32, len(out.Data))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, false, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, false, nil
}

func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
