// Package ollama fronts a remote model server speaking the Ollama HTTP
// API: /api/embed for embeddings, /api/chat for completions, /api/tags
// as a liveness probe. The client never surfaces transport errors to
// callers: embedding failures degrade to a zero vector of the
// configured dimension and chat failures degrade to a fixed reply, with
// the failure recorded in the health state.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is the capability bundle the indexer and retriever depend on.
type Client interface {
	Embed(ctx context.Context, text string) []float32
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	Chat(ctx context.Context, userPrompt, systemPrompt string) string
	IsHealthy(ctx context.Context) bool
}

// Config enumerates the model-server settings.
type Config struct {
	BaseURL           string
	EmbeddingModel    string
	ChatModel         string
	RequestTimeout    time.Duration // per embed/chat request, default 5m
	MaxRetries        int           // default 3
	RetryDelayBase    int           // seconds; delay = base^attempt, default 2
	FallbackDimension int           // zero-vector length on failure, default 384
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelayBase <= 0 {
		c.RetryDelayBase = 2
	}
	if c.FallbackDimension <= 0 {
		c.FallbackDimension = 384
	}
}

const (
	healthCacheTTL = 30 * time.Second
	healthTimeout  = 10 * time.Second

	// ChatFailureReply is returned when the chat endpoint cannot be
	// reached after retries.
	ChatFailureReply = "I'm sorry, I wasn't able to reach the language model. Please try again in a moment."

	// ChatEmptyReply is returned when the model answers with an empty
	// message body.
	ChatEmptyReply = "The language model returned an empty response."
)

type client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	healthy   bool
	lastCheck time.Time
}

// New creates a client for the given model server.
func New(cfg Config, logger *zap.Logger) Client {
	cfg.applyDefaults()
	return &client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Embed returns the embedding vector for text. Any failure, including
// an empty vector from the server, yields a zero vector of the fallback
// dimension and marks the service unhealthy.
func (c *client) Embed(ctx context.Context, text string) []float32 {
	var vec []float32
	err := c.withRetry(ctx, "embed", func() error {
		v, err := c.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		c.logger.Warn("embedding failed, substituting zero vector", zap.Error(err))
		c.markUnhealthy()
		return make([]float32, c.cfg.FallbackDimension)
	}
	if len(vec) == 0 {
		c.logger.Warn("model returned empty embedding, substituting zero vector")
		c.markUnhealthy()
		return make([]float32, c.cfg.FallbackDimension)
	}
	c.markHealthy()
	return vec
}

// EmbedBatch embeds each text independently, preserving order. A
// failed item becomes a zero vector without aborting the rest.
func (c *client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = c.Embed(ctx, text)
	}
	return vectors
}

// Chat sends the user and system prompts to the chat model and returns
// its reply. Failures degrade to fixed reply strings.
func (c *client) Chat(ctx context.Context, userPrompt, systemPrompt string) string {
	var reply string
	err := c.withRetry(ctx, "chat", func() error {
		r, err := c.chatOnce(ctx, userPrompt, systemPrompt)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		c.logger.Warn("chat request failed", zap.Error(err))
		c.markUnhealthy()
		return ChatFailureReply
	}
	c.markHealthy()
	if reply == "" {
		return ChatEmptyReply
	}
	return reply
}

// IsHealthy reports whether the model server is reachable. A healthy
// result is cached for 30 seconds; anything else triggers a fresh probe
// of /api/tags with a 10 second timeout.
func (c *client) IsHealthy(ctx context.Context) bool {
	c.mu.Lock()
	if c.healthy && time.Since(c.lastCheck) < healthCacheTTL {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		c.markUnhealthy()
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("health probe failed", zap.Error(err))
		c.markUnhealthy()
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.markUnhealthy()
		return false
	}
	c.markHealthy()
	return true
}

func (c *client) markHealthy() {
	c.mu.Lock()
	c.healthy = true
	c.lastCheck = time.Now()
	c.mu.Unlock()
}

func (c *client) markUnhealthy() {
	c.mu.Lock()
	c.healthy = false
	c.lastCheck = time.Now()
	c.mu.Unlock()
}

// retryableError marks failures worth another attempt (timeouts,
// connection resets, 5xx responses).
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// withRetry runs fn up to MaxRetries times, sleeping base^attempt
// seconds between attempts. Non-retryable errors stop immediately.
func (c *client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var re *retryableError
		if !errors.As(lastErr, &re) {
			return lastErr
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := time.Duration(math.Pow(float64(c.cfg.RetryDelayBase), float64(attempt))) * time.Second
		c.logger.Debug("retrying model request",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (c *client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := c.post(ctx, "/api/embed", embedRequest{
		Model: c.cfg.EmbeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	return parsed.Embedding, nil
}

func (c *client) chatOnce(ctx context.Context, userPrompt, systemPrompt string) (string, error) {
	messages := []chatMessage{}
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := c.post(ctx, "/api/chat", chatRequest{
		Model:    c.cfg.ChatModel,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	return parsed.Message.Content, nil
}

// post issues one JSON request. Transport failures and 5xx responses
// come back wrapped as retryable; 4xx responses are permanent.
func (c *client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("%s: %w", path, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{fmt.Errorf("reading %s response: %w", path, err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &retryableError{fmt.Errorf("%s returned %d", path, resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// IsZeroVector reports whether every component is zero, which is the
// fallback shape produced when embedding fails.
func IsZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
