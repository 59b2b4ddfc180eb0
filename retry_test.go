package lumen

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// stubProvider returns pre-configured results in order.
type stubProvider struct {
	calls   int
	results []stubResult
}

type stubResult struct {
	resp ChatResponse
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Chat(_ context.Context, _ ChatRequest) (ChatResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i].resp, s.results[i].err
	}
	return ChatResponse{}, nil
}

var _ Provider = (*stubProvider)(nil)

func TestWithRetry_Chat_SucceedsFirstAttempt(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: ChatResponse{Content: "hello"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_Chat_RetriesTransient(t *testing.T) {
	for _, status := range []int{429, 503} {
		stub := &stubProvider{results: []stubResult{
			{err: &ErrProvider{Provider: "stub", Err: &ErrHTTP{Status: status}}},
			{resp: ChatResponse{Content: "ok"}},
		}}
		p := WithRetry(stub, RetryBaseDelay(0))

		resp, err := p.Chat(context.Background(), ChatRequest{})
		if err != nil {
			t.Fatalf("status %d: unexpected error: %v", status, err)
		}
		if resp.Content != "ok" || stub.calls != 2 {
			t.Errorf("status %d: content=%q calls=%d", status, resp.Content, stub.calls)
		}
	}
}

func TestWithRetry_Chat_DoesNotRetryNonTransient(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 400, Body: "bad request"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	_, err := p.Chat(context.Background(), ChatRequest{})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 400 {
		t.Fatalf("err = %v, want http 400", err)
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_Chat_ExhaustsMaxAttempts(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 503}},
		{err: &ErrHTTP{Status: 503}},
		{err: &ErrHTTP{Status: 503}},
		{resp: ChatResponse{Content: "never"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryMaxAttempts(3))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls != 3 {
		t.Errorf("got %d calls, want 3", stub.calls)
	}
}

func TestWithRetry_Chat_RespectsRetryAfter(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 429, Body: "rate limited", RetryAfter: 100 * time.Millisecond}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	start := time.Now()
	_, err := p.Chat(context.Background(), ChatRequest{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 80*time.Millisecond {
		t.Errorf("retry was too fast: %v, expected at least ~100ms from Retry-After", elapsed)
	}
}

func TestWithRetry_Chat_TimeoutExceeded(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &ErrHTTP{Status: 429, RetryAfter: 100 * time.Millisecond}},
		{err: &ErrHTTP{Status: 429, RetryAfter: 100 * time.Millisecond}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryTimeout(50*time.Millisecond))

	_, err := p.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

type flakyEmbedder struct {
	calls int
	fails int
}

func (f *flakyEmbedder) Name() string    { return "flaky" }
func (f *flakyEmbedder) Dimensions() int { return 2 }
func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, &ErrHTTP{Status: 429}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestWithEmbeddingRetry(t *testing.T) {
	inner := &flakyEmbedder{fails: 2}
	e := WithEmbeddingRetry(inner, RetryBaseDelay(0))

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 || inner.calls != 3 {
		t.Errorf("vecs=%d calls=%d", len(vecs), inner.calls)
	}
	if e.Name() != "flaky" || e.Dimensions() != 2 {
		t.Error("Name/Dimensions should delegate")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("seconds: got %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("empty: got %v", got)
	}
	if got := ParseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage: got %v", got)
	}
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(future); got < 59*time.Minute {
		t.Errorf("http date: got %v", got)
	}
}
