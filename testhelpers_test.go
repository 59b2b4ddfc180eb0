package lumen

import (
	"context"
	"errors"
	"sync"
)

// --- Provider mocks (shared across agent_test.go, retry_test.go, ratelimit_test.go) ---

// scriptedProvider returns its responses in order and records every request.
// Once the script is exhausted the last response repeats.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	requests  []ChatRequest
	err       error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return ChatResponse{}, p.err
	}
	i := len(p.requests) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return ChatResponse{Content: p.responses[i], Usage: Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) lastRequest() ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

// --- Tool mocks (shared across tool_test.go, agent_test.go) ---

func echoTool() Tool {
	return NewTool("echo", "Repeats the input", func(_ context.Context, in string) (string, error) {
		return "echo: " + in, nil
	})
}

func failingTool() Tool {
	return NewTool("broken", "Always fails", func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})
}

func panickingTool() Tool {
	return NewTool("panics", "Always panics", func(context.Context, string) (string, error) {
		panic("kaboom")
	})
}

// --- Embedding mock ---

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	dims  int
}

func (e *countingEmbedder) Name() string    { return "counting" }
func (e *countingEmbedder) Dimensions() int { return e.dims }

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dims)
		for j := range v {
			v[j] = float32(len(t) + j)
		}
		out[i] = v
	}
	return out, nil
}

func (e *countingEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
