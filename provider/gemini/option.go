package gemini

import (
	"log/slog"
	"net/http"
)

// Option configures a Gemini provider.
type Option func(*Gemini)

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float64) Option {
	return func(g *Gemini) { g.temperature = t }
}

// WithTopP sets nucleus sampling top-p (default 0.9).
func WithTopP(p float64) Option {
	return func(g *Gemini) { g.topP = p }
}

// WithMaxOutputTokens caps the reply length. Zero leaves the model default.
func WithMaxOutputTokens(n int) Option {
	return func(g *Gemini) { g.maxOutputTokens = n }
}

// WithThinking enables or disables thinking mode (default false).
// When enabled, sends thinkingConfig with budget -1 (dynamic).
// When disabled (default), thinkingConfig is omitted entirely.
func WithThinking(enabled bool) Option {
	return func(g *Gemini) { g.thinkingEnabled = enabled }
}

// WithBaseURL overrides the API base URL, mainly for proxies and tests.
func WithBaseURL(u string) Option {
	return func(g *Gemini) { g.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) { g.httpClient = c }
}

// WithLogger sets a structured logger for the provider.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gemini) { g.logger = l }
}
