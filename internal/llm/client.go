package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quickhelp/quickhelp/internal/config"
	"github.com/quickhelp/quickhelp/internal/logger"
)

var (
	ErrUnknownProvider = errors.New("llm: unknown provider")
	ErrEmptyResponse   = errors.New("llm: empty response")
	ErrNotConfigured   = errors.New("llm: client not configured")
)

// ErrorPrefix starts every reply produced from a failed answer call.
const ErrorPrefix = "Error: "

// Usage is the token accounting reported by a provider, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is a single-call chat model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, *Usage, error)
	CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, *Usage, error)
}

// NewProvider builds the backend named by provider.
func NewProvider(provider, token, endpoint, model string) (Provider, error) {
	switch strings.ToLower(provider) {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(token, endpoint, model), nil
	case config.ProviderGemini:
		return NewGeminiProvider(token, endpoint, model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// Client answers questions through a Provider.
type Client struct {
	provider Provider
	timeout  time.Duration
}

// NewClient builds the answering client from cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	provider, err := NewProvider(cfg.LLMProvider, cfg.LLMToken, cfg.LLMEndpoint, cfg.LLMModel)
	if err != nil {
		return nil, err
	}
	return NewClientWithProvider(provider, cfg.LLMTimeout), nil
}

func NewClientWithProvider(provider Provider, timeout time.Duration) *Client {
	return &Client{provider: provider, timeout: timeout}
}

// Ask forwards question verbatim and returns the trimmed model answer.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	if c == nil || c.provider == nil {
		return "", ErrNotConfigured
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	content, usage, err := c.provider.Complete(ctx, question)
	if err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyResponse
	}

	fields := logger.Fields{
		"provider": c.provider.Name(),
		"duration": time.Since(start).String(),
	}
	if usage != nil {
		fields["prompt_tokens"] = usage.PromptTokens
		fields["completion_tokens"] = usage.CompletionTokens
		fields["total_tokens"] = usage.TotalTokens
	}
	logger.Debug("LLM answer received", fields)

	return content, nil
}

// Answer is Ask for chat replies: it always returns text to send. On
// failure the text is the error itself, prefixed with ErrorPrefix, and
// the error is returned alongside for logging.
func (c *Client) Answer(ctx context.Context, question string) (string, error) {
	answer, err := c.Ask(ctx, question)
	if err != nil {
		return ErrorPrefix + err.Error(), err
	}
	return answer, nil
}

// Close releases provider resources.
func (c *Client) Close() error {
	return nil
}
