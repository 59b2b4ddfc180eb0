package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nevindra/lumen"
)

func okResponse(content string) ChatResponse {
	return ChatResponse{
		ID: "chatcmpl-1",
		Choices: []Choice{{
			Index:   0,
			Message: &ChoiceMessage{Role: "assistant", Content: content},
		}},
		Usage: &Usage{PromptTokens: 5, CompletionTokens: 2},
	}
}

func TestProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request.
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("expected model gpt-4o, got %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "Hi" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("Hello!"))
	}))
	defer srv.Close()

	p := NewProvider("test-key", "gpt-4o", srv.URL+"/")

	resp, err := p.Chat(context.Background(), lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.SystemMessage("Be nice."), lumen.UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	if resp.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 5 {
		t.Errorf("expected 5 input tokens, got %d", resp.Usage.InputTokens)
	}
	if resp.Usage.OutputTokens != 2 {
		t.Errorf("expected 2 output tokens, got %d", resp.Usage.OutputTokens)
	}
}

func TestProvider_Chat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	p := NewProvider("test-key", "gpt-4o", srv.URL)

	_, err := p.Chat(context.Background(), lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	var pe *lumen.ErrProvider
	if !errors.As(err, &pe) || pe.Provider != "openai" {
		t.Fatalf("expected *lumen.ErrProvider from openai, got %T %v", err, err)
	}
	var httpErr *lumen.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected wrapped *lumen.ErrHTTP, got %v", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", httpErr.Status)
	}
	if httpErr.RetryAfter != 7*time.Second {
		t.Errorf("expected Retry-After 7s, got %v", httpErr.RetryAfter)
	}
}

func TestProvider_Chat_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewProvider("k", "m", srv.URL).Chat(context.Background(), lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.UserMessage("Hi")},
	})
	var pe *lumen.ErrProvider
	if !errors.As(err, &pe) || pe.Message != "decode response" {
		t.Fatalf("expected decode ErrProvider, got %v", err)
	}
}

func TestProvider_Chat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ChatResponse{ID: "empty"})
	}))
	defer srv.Close()

	_, err := NewProvider("k", "m", srv.URL).Chat(context.Background(), lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.UserMessage("Hi")},
	})
	var pe *lumen.ErrProvider
	if !errors.As(err, &pe) {
		t.Fatalf("expected ErrProvider for empty choices, got %v", err)
	}
}

func TestProvider_Chat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewProvider("k", "m", url).Chat(context.Background(), lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.UserMessage("Hi")},
	})
	var pe *lumen.ErrProvider
	if !errors.As(err, &pe) || pe.Message != "send request" {
		t.Fatalf("expected transport ErrProvider, got %v", err)
	}
}

func TestProvider_Name(t *testing.T) {
	p := NewProvider("key", "model", "http://localhost")
	if p.Name() != "openai" {
		t.Errorf("expected default name 'openai', got %q", p.Name())
	}

	p = NewProvider("key", "model", "http://localhost", WithName("groq"))
	if p.Name() != "groq" {
		t.Errorf("expected name 'groq', got %q", p.Name())
	}
}

func TestProvider_NoAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no auth header for empty API key")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("OK"))
	}))
	defer srv.Close()

	// Ollama and other local providers don't need API keys.
	p := NewProvider("", "llama3", srv.URL)

	resp, err := p.Chat(context.Background(), lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "OK" {
		t.Errorf("expected content 'OK', got %q", resp.Content)
	}
}

func TestProvider_WithOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// Temperature 0 must be sent explicitly, not omitted.
		if temp, ok := raw["temperature"]; !ok || temp.(float64) != 0 {
			t.Errorf("expected temperature 0, got %v (present=%v)", temp, ok)
		}
		if raw["max_tokens"].(float64) != 2048 {
			t.Errorf("expected max_tokens 2048, got %v", raw["max_tokens"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("OK"))
	}))
	defer srv.Close()

	p := NewProvider("key", "gpt-4o", srv.URL,
		WithOptions(WithTemperature(0), WithMaxTokens(2048)),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
	)

	_, err := p.Chat(context.Background(), lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
}
