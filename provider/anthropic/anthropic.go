// Package anthropic implements lumen.Provider on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nevindra/lumen"
)

const defaultMaxTokens = 1024

// Provider sends chat requests to Claude models.
type Provider struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature *float64
	name        string
}

// Option configures a Provider.
type Option func(*config)

type config struct {
	baseURL     string
	httpClient  *http.Client
	maxTokens   int64
	temperature *float64
	name        string
}

// WithBaseURL points the client at a different API host (proxies, tests).
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) { c.httpClient = h }
}

// WithMaxTokens caps the reply length (default 1024).
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = int64(n) }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = &t }
}

// WithName sets the name returned by Name() (default "anthropic").
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// New creates a Provider. The SDK's own retries are disabled; wrap the
// provider with lumen.WithRetry to retry transient failures.
func New(apiKey, model string, opts ...Option) *Provider {
	cfg := config{maxTokens: defaultMaxTokens, name: "anthropic"}
	for _, o := range opts {
		o(&cfg)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	return &Provider{
		client:      sdk.NewClient(reqOpts...),
		model:       model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
		name:        cfg.name,
	}
}

func (p *Provider) Name() string { return p.name }

// Chat sends the conversation as a single Messages request. System messages
// become the system prompt; tool observations are sent as user turns.
func (p *Provider) Chat(ctx context.Context, req lumen.ChatRequest) (lumen.ChatResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: p.maxTokens,
	}
	system, msgs := buildMessages(req.Messages)
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	params.Messages = msgs
	if p.temperature != nil {
		params.Temperature = sdk.Float(*p.temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return lumen.ChatResponse{}, p.wrapErr(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return lumen.ChatResponse{
		Content: sb.String(),
		Usage: lumen.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// buildMessages splits out the system prompt and merges consecutive turns
// of the same role, since the API expects user and assistant to alternate.
func buildMessages(messages []lumen.ChatMessage) (string, []sdk.MessageParam) {
	var system []string
	type turn struct {
		assistant bool
		parts     []string
	}
	var turns []turn
	for _, m := range messages {
		if m.Role == lumen.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		assistant := m.Role == lumen.RoleAssistant
		if n := len(turns); n > 0 && turns[n-1].assistant == assistant {
			turns[n-1].parts = append(turns[n-1].parts, m.Content)
			continue
		}
		turns = append(turns, turn{assistant: assistant, parts: []string{m.Content}})
	}

	out := make([]sdk.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := sdk.NewTextBlock(strings.Join(t.parts, "\n\n"))
		if t.assistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return strings.Join(system, "\n\n"), out
}

// wrapErr converts SDK API errors into *lumen.ErrHTTP so the retry
// decorator can classify them.
func (p *Provider) wrapErr(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		httpErr := &lumen.ErrHTTP{Status: apiErr.StatusCode, Body: apiErr.RawJSON()}
		if apiErr.Response != nil {
			httpErr.RetryAfter = lumen.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return &lumen.ErrProvider{Provider: p.name, Err: httpErr}
	}
	return &lumen.ErrProvider{Provider: p.name, Err: err}
}

var _ lumen.Provider = (*Provider)(nil)
