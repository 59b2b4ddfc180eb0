// Package gemini implements the Google Gemini chat and embedding providers
// over the generativelanguage REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nevindra/lumen"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements lumen.Provider for Google Gemini models.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	temperature     float64
	topP            float64
	maxOutputTokens int
	thinkingEnabled bool
}

// New creates a new Gemini chat provider with functional options.
func New(apiKey, model string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{},
		temperature: 0.1,
		topP:        0.9,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.baseURL = strings.TrimRight(g.baseURL, "/")
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Chat sends a generateContent request and returns the text of the first
// candidate. Thinking parts are skipped.
func (g *Gemini) Chat(ctx context.Context, req lumen.ChatRequest) (lumen.ChatResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	var parsed generateResponse
	if err := post(ctx, g.httpClient, url, g.apiKey, g.buildBody(req.Messages), &parsed); err != nil {
		return lumen.ChatResponse{}, err
	}
	if len(parsed.Candidates) == 0 {
		msg := "response has no candidates"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			msg += " (blocked: " + parsed.PromptFeedback.BlockReason + ")"
		}
		return lumen.ChatResponse{}, &lumen.ErrProvider{Provider: "gemini", Message: msg}
	}

	var content strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		content.WriteString(part.Text)
	}

	var usage lumen.Usage
	if parsed.UsageMetadata != nil {
		usage.InputTokens = parsed.UsageMetadata.PromptTokenCount
		usage.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
	}
	if g.logger != nil {
		g.logger.Debug("chat completed", "provider", "gemini", "model", g.model,
			"finish_reason", parsed.Candidates[0].FinishReason,
			"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}
	return lumen.ChatResponse{Content: content.String(), Usage: usage}, nil
}

// buildBody maps chat messages onto Gemini contents. System messages become
// the system instruction; assistant turns use the "model" role and tool
// observations are sent as user turns.
func (g *Gemini) buildBody(messages []lumen.ChatMessage) generateRequest {
	var system []string
	var contents []content
	for _, m := range messages {
		switch m.Role {
		case lumen.RoleSystem:
			system = append(system, m.Content)
			continue
		case lumen.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	body := generateRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			Temperature:     &g.temperature,
			TopP:            &g.topP,
			MaxOutputTokens: g.maxOutputTokens,
		},
	}
	if len(system) > 0 {
		body.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}
	if g.thinkingEnabled {
		body.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: -1}
	}
	return body
}

// post sends body as JSON and decodes a 2xx response into out. The API key
// travels in the x-goog-api-key header, never in the URL.
func post(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &lumen.ErrProvider{Provider: "gemini", Message: "marshal body", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &lumen.ErrProvider{Provider: "gemini", Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return &lumen.ErrProvider{Provider: "gemini", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &lumen.ErrProvider{Provider: "gemini", Message: "read response body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &lumen.ErrProvider{Provider: "gemini", Err: httpErr(resp, string(respBody))}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &lumen.ErrProvider{Provider: "gemini", Message: "parse response JSON", Err: err}
	}
	return nil
}

// httpErr creates an ErrHTTP from an HTTP response, extracting the retry delay
// from the Retry-After header or from the Gemini-specific google.rpc.RetryInfo
// detail in the JSON error body.
func httpErr(resp *http.Response, body string) *lumen.ErrHTTP {
	ra := lumen.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if ra == 0 {
		ra = parseRetryInfo(body)
	}
	return &lumen.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: ra,
	}
}

// parseRetryInfo extracts the retryDelay from a Gemini error body containing
// a google.rpc.RetryInfo detail. Returns 0 if not found or unparseable.
func parseRetryInfo(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}

var _ lumen.Provider = (*Gemini)(nil)
