// Package resolve builds chat and embedding providers from provider names,
// so configuration can pick a backend without importing every provider.
package resolve

import (
	"fmt"
	"log/slog"

	"github.com/nevindra/lumen"
	"github.com/nevindra/lumen/provider/anthropic"
	"github.com/nevindra/lumen/provider/gemini"
	"github.com/nevindra/lumen/provider/openaicompat"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "openai", "deepseek", "groq", "together", "mistral", "ollama", "anthropic", "gemini"
	APIKey   string
	Model    string
	BaseURL  string // auto-filled for known providers when empty

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
	MaxTokens   int

	Logger *slog.Logger
}

// EmbeddingConfig holds provider-agnostic configuration for creating an EmbeddingProvider.
type EmbeddingConfig struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// Provider creates a lumen.Provider from a provider-agnostic Config.
func Provider(cfg Config) (lumen.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return geminiProvider(cfg), nil
	case "anthropic":
		return anthropicProvider(cfg), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiCompatProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

// EmbeddingProvider creates a lumen.EmbeddingProvider from a provider-agnostic EmbeddingConfig.
func EmbeddingProvider(cfg EmbeddingConfig) (lumen.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "gemini":
		var opts []gemini.EmbeddingOption
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithEmbeddingBaseURL(cfg.BaseURL))
		}
		return gemini.NewEmbedding(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...), nil
	case "openai", "together", "mistral", "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		return openaicompat.NewEmbedding(cfg.APIKey, cfg.Model, baseURL, cfg.Dimensions,
			openaicompat.WithEmbeddingName(cfg.Provider)), nil
	default:
		return nil, fmt.Errorf("resolve: embedding provider %q not supported", cfg.Provider)
	}
}

func geminiProvider(cfg Config) lumen.Provider {
	var opts []gemini.Option
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, gemini.WithMaxOutputTokens(cfg.MaxTokens))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Logger != nil {
		opts = append(opts, gemini.WithLogger(cfg.Logger))
	}
	return gemini.New(cfg.APIKey, cfg.Model, opts...)
}

func anthropicProvider(cfg Config) lumen.Provider {
	var opts []anthropic.Option
	if cfg.Temperature != nil {
		opts = append(opts, anthropic.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, anthropic.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(cfg.APIKey, cfg.Model, opts...)
}

func openaiCompatProvider(cfg Config) lumen.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	var provOpts []openaicompat.ProviderOption
	provOpts = append(provOpts, openaicompat.WithName(cfg.Provider))

	var reqOpts []openaicompat.Option
	if cfg.Temperature != nil {
		reqOpts = append(reqOpts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		reqOpts = append(reqOpts, openaicompat.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		reqOpts = append(reqOpts, openaicompat.WithMaxTokens(cfg.MaxTokens))
	}
	if len(reqOpts) > 0 {
		provOpts = append(provOpts, openaicompat.WithOptions(reqOpts...))
	}
	if cfg.Logger != nil {
		provOpts = append(provOpts, openaicompat.WithLogger(cfg.Logger))
	}
	return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, provOpts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
