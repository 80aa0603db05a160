// Package inference asks a generative model about the conversation and the current frame.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInference is the single failure kind surfaced to callers.
var ErrInference = errors.New("inference failed")

// Client answers text-only and text-plus-image prompts.
type Client interface {
	Infer(ctx context.Context, prompt string) (string, error)
	InferImage(ctx context.Context, prompt string, jpeg []byte) (string, error)
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// Config selects and authenticates one provider. BaseURL overrides the
// provider endpoint, e.g. for a compatible gateway.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	MaxTokens  int
	BaseURL    string
	HTTPClient *http.Client
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("inference api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	switch cfg.Provider {
	case ProviderGemini:
		return newGemini(ctx, cfg)
	case ProviderOpenAI:
		return newOpenAI(cfg), nil
	case ProviderClaude:
		return newClaude(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// DefaultModel is the vision-capable model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return "gemini-1.5-flash"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderClaude:
		return "claude-sonnet-4-20250514"
	default:
		return ""
	}
}

// DefaultAPIKeyEnv names the environment variable holding the provider credential.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderClaude:
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// KnownProviders lists every accepted provider id.
func KnownProviders() []string {
	return []string{ProviderGemini, ProviderOpenAI, ProviderClaude}
}

func wrap(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInference, provider, err)
}

func emptyAnswer(provider string) error {
	return fmt.Errorf("%w: %s: empty response", ErrInference, provider)
}
