package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider is one generative-AI backend. Complete sends the prompt under the
// given credential and returns the raw model text. Implementations map their
// wire-level failures onto the package error taxonomy.
type Provider interface {
	Name() string
	Complete(ctx context.Context, apiKey, prompt string) (string, error)
}

// ChatClient is an OpenAI-compatible chat/completions provider. Both the
// primary (Gemini's OpenAI-compat endpoint) and the fallback (OpenRouter)
// speak this shape, so one client type covers both.
type ChatClient struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

// NewChatClient builds a provider for the given endpoint and model.
func NewChatClient(name, baseURL, model string, timeout time.Duration, logger *slog.Logger) *ChatClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &ChatClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
}

// Name returns the provider identifier used in logs and stored records.
func (c *ChatClient) Name() string { return c.name }

// Complete sends one chat completion request. Errors are mapped onto the
// taxonomy: 429/401/403 count against the credential (quota), 5xx and
// transport failures are unavailability, deadline hits are timeouts, and an
// undecodable body is a malformed response.
func (c *ChatClient) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":       c.model,
		"temperature": 0.1,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return "", fmt.Errorf("%s: %w", c.name, ErrTimeout)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s http error: %w", c.name, ErrUnavailable)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("refine.response_body_close_error", "req_id", rid, "error", cerr)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s read response: %w", c.name, ErrUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		c.log.Warn("refine.quota_error",
			"req_id", rid, "provider", c.name, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%s status %d: %w", c.name, resp.StatusCode, ErrQuotaExceeded)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return "", fmt.Errorf("%s status %d: %w", c.name, resp.StatusCode, ErrTimeout)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%s status %d: %w", c.name, resp.StatusCode, ErrUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%s status %d: %s: %w", c.name, resp.StatusCode, truncateForLog(payload), ErrUnavailable)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &cc); err != nil {
		return "", fmt.Errorf("%s decode response: %w", c.name, ErrMalformedResponse)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response: %w", c.name, ErrMalformedResponse)
	}

	c.log.Debug("refine.complete.ok",
		"req_id", rid, "provider", c.name,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func truncateForLog(b []byte) string {
	const n = 200
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
