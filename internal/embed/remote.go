package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// RemoteConfig holds configuration for a hosted, OpenAI-compatible
// embeddings endpoint.
type RemoteConfig struct {
	Provider    string // "ollama", "openai", "deepseek", "openrouter", "custom"
	Model       string
	Endpoint    string
	APIKey      string
	MaxRetries  int // default 3
	TimeoutSecs int // default 60
	dimensions  int // learned from the most recent successful response
}

// SplitProviderModel splits a "provider/model" flag value (e.g.
// "ollama/nomic-embed-text" or "local/all-MiniLM-L6-v2") into its two
// halves. The provider is not validated here — callers route "local" to a
// LocalEmbedder instead of a RemoteConfig.
func SplitProviderModel(flag string) (provider, model string, err error) {
	if flag == "" {
		return "", "", fmt.Errorf("empty embedding flag")
	}

	slashIdx := strings.Index(flag, "/")
	if slashIdx == -1 {
		return "", "", fmt.Errorf("invalid embed flag: expected 'provider/model', got %q", flag)
	}

	provider = flag[:slashIdx]
	model = flag[slashIdx+1:]
	if provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid embed flag: provider and model are both required, got %q", flag)
	}
	return provider, model, nil
}

// ParseRemoteFlag parses a "provider/model" flag value into a RemoteConfig,
// filling in the provider's default endpoint and API key environment
// variable.
func ParseRemoteFlag(flag string) (*RemoteConfig, error) {
	provider, model, err := SplitProviderModel(flag)
	if err != nil {
		return nil, err
	}

	cfg := &RemoteConfig{
		Provider:    provider,
		Model:       model,
		MaxRetries:  3,
		TimeoutSecs: 60,
	}

	switch provider {
	case "ollama":
		cfg.Endpoint = "http://localhost:11434/v1/embeddings"
	case "openai":
		cfg.Endpoint = "https://api.openai.com/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "deepseek":
		cfg.Endpoint = "https://api.deepseek.com/v1/embeddings"
		cfg.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	case "openrouter":
		cfg.Endpoint = "https://openrouter.ai/api/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "custom":
		cfg.Endpoint = os.Getenv("CTXCACHE_EMBED_ENDPOINT")
		cfg.APIKey = os.Getenv("CTXCACHE_EMBED_API_KEY")
	default:
		return nil, fmt.Errorf("unknown provider %q: supported are ollama, openai, deepseek, openrouter, custom", provider)
	}

	if endpoint := os.Getenv("CTXCACHE_EMBED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if key := os.Getenv("CTXCACHE_EMBED_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	return cfg, nil
}

// Validate checks that cfg is complete enough to build a RemoteEmbedder.
func (c *RemoteConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Provider != "ollama" && c.APIKey == "" {
		return fmt.Errorf("API key is required for provider %q", c.Provider)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.TimeoutSecs <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

type remoteRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type remoteResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// HTTPError carries the status code and body of a failed embeddings call.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// RemoteEmbedder calls a hosted OpenAI-compatible /v1/embeddings endpoint.
type RemoteEmbedder struct {
	cfg  RemoteConfig
	http *http.Client
}

// NewRemoteEmbedder validates cfg and returns a ready RemoteEmbedder.
func NewRemoteEmbedder(cfg *RemoteConfig) (*RemoteEmbedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote embedder config: %w", err)
	}
	return &RemoteEmbedder{
		cfg:  *cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
	}, nil
}

// Embed generates an embedding for a single text, retrying transient HTTP
// failures with exponential backoff (1s, 2s, 4s, ...), honoring a
// Retry-After header on 429 responses.
func (c *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text")
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		vec, err := c.attemptEmbed(ctx, text)
		if err == nil {
			c.cfg.dimensions = len(vec)
			return vec, nil
		}
		lastErr = err

		if attempt == c.cfg.MaxRetries {
			break
		}

		backoff := time.Duration(1<<attempt) * time.Second
		if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode == 429 && httpErr.RetryAfter > 0 {
			backoff = httpErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// Dimensions returns the dimensionality learned from the last successful
// response, or 0 if none has succeeded yet.
func (c *RemoteEmbedder) Dimensions() int {
	return c.cfg.dimensions
}

func (c *RemoteEmbedder) attemptEmbed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(remoteRequest{Model: c.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Provider == "openrouter" {
		req.Header.Set("HTTP-Referer", "https://github.com/ctxcache/contextcache")
		req.Header.Set("X-Title", "Context Cache")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var retryAfter time.Duration
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, err := strconv.Atoi(h); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody), RetryAfter: retryAfter}
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	if len(parsed.Data) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(parsed.Data))
	}
	return parsed.Data[0].Embedding, nil
}
