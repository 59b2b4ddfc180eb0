package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nevindra/lumen"
)

// Provider implements lumen.Provider for any OpenAI-compatible API.
// It uses the helpers in this package (BuildBody, ParseResponse) for the
// wire format.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
	logger  *slog.Logger
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.groq.com/openai/v1", "http://localhost:11434/v1").
// The /chat/completions path is appended automatically.
//
// Request-level options (WithTemperature, etc.) passed through WithOptions
// are applied to every request.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Chat sends a chat completion request and returns the complete response.
func (p *Provider) Chat(ctx context.Context, req lumen.ChatRequest) (lumen.ChatResponse, error) {
	body := BuildBody(req.Messages, p.model, p.opts...)
	var chatResp ChatResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, p.name, body, &chatResp); err != nil {
		return lumen.ChatResponse{}, err
	}
	if len(chatResp.Choices) == 0 {
		return lumen.ChatResponse{}, &lumen.ErrProvider{Provider: p.name, Message: "response has no choices"}
	}
	out := ParseResponse(chatResp)
	if p.logger != nil {
		p.logger.Debug("chat completed", "provider", p.name, "model", p.model,
			"input_tokens", out.Usage.InputTokens, "output_tokens", out.Usage.OutputTokens)
	}
	return out, nil
}

// postJSON marshals body, posts it to url and decodes a 200 response into out.
// Every failure is returned as a *lumen.ErrProvider; non-200 statuses wrap
// an *lumen.ErrHTTP so retry middleware can inspect them.
func postJSON(ctx context.Context, client *http.Client, url, apiKey, name string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &lumen.ErrProvider{Provider: name, Message: "marshal request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &lumen.ErrProvider{Provider: name, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return &lumen.ErrProvider{Provider: name, Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &lumen.ErrProvider{Provider: name, Err: httpErr(resp)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &lumen.ErrProvider{Provider: name, Message: "decode response", Err: err}
	}
	return nil
}

// httpErr reads the response body and returns an ErrHTTP for retry middleware.
// Parses the Retry-After header when present (429/503 responses).
func httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &lumen.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: lumen.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface check.
var _ lumen.Provider = (*Provider)(nil)
