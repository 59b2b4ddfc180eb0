package lumen

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter holds the request and token budgets shared by the chat and
// embedding decorators. Requests are blocked until both budgets allow them.
type rateLimiter struct {
	requests *rate.Limiter // nil = no request limit

	mu        sync.Mutex
	tpm       int
	tpmWindow []tpmEntry // sliding one-minute window of recorded token counts
}

type tpmEntry struct {
	at     time.Time
	tokens int
}

// RateLimitOption configures WithRateLimit and WithEmbeddingRateLimit.
type RateLimitOption func(*rateLimiter)

// RPM sets the maximum requests per minute. Up to n requests may burst.
func RPM(n int) RateLimitOption {
	return func(r *rateLimiter) {
		if n > 0 {
			r.requests = rate.NewLimiter(rate.Limit(float64(n)/60), n)
		}
	}
}

// TPM sets the maximum tokens per minute (input + output) recorded from
// ChatResponse.Usage. It is a soft limit: the request that crosses the
// budget completes, later requests wait for the window to slide.
func TPM(n int) RateLimitOption {
	return func(r *rateLimiter) { r.tpm = n }
}

func newRateLimiter(opts []RateLimitOption) *rateLimiter {
	r := &rateLimiter{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// wait blocks until the token budget and then the request budget allow a
// call, or ctx is done.
func (r *rateLimiter) wait(ctx context.Context) error {
	if err := r.waitTokens(ctx); err != nil {
		return err
	}
	if r.requests != nil {
		return r.requests.Wait(ctx)
	}
	return nil
}

func (r *rateLimiter) waitTokens(ctx context.Context) error {
	if r.tpm <= 0 {
		return nil
	}
	for {
		r.mu.Lock()
		now := time.Now()
		r.tpmWindow = pruneTpm(r.tpmWindow, now.Add(-time.Minute))
		var total int
		for _, e := range r.tpmWindow {
			total += e.tokens
		}
		if total < r.tpm {
			r.mu.Unlock()
			return nil
		}
		wait := r.tpmWindow[0].at.Add(time.Minute).Sub(now)
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *rateLimiter) record(u Usage) {
	total := u.InputTokens + u.OutputTokens
	if r.tpm <= 0 || total <= 0 {
		return
	}
	r.mu.Lock()
	r.tpmWindow = append(r.tpmWindow, tpmEntry{at: time.Now(), tokens: total})
	r.mu.Unlock()
}

// pruneTpm removes entries older than cutoff from a time-sorted slice.
func pruneTpm(s []tpmEntry, cutoff time.Time) []tpmEntry {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}

type rateLimitProvider struct {
	inner Provider
	limit *rateLimiter
}

// WithRateLimit wraps p with proactive rate limiting. Compose with other wrappers:
//
//	llm = lumen.WithRateLimit(provider, lumen.RPM(60))
//	llm = lumen.WithRateLimit(lumen.WithRetry(provider), lumen.RPM(60), lumen.TPM(100000))
func WithRateLimit(p Provider, opts ...RateLimitOption) Provider {
	return &rateLimitProvider{inner: p, limit: newRateLimiter(opts)}
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := r.limit.wait(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := r.inner.Chat(ctx, req)
	if err == nil {
		r.limit.record(resp.Usage)
	}
	return resp, err
}

type rateLimitEmbedding struct {
	inner EmbeddingProvider
	limit *rateLimiter
}

// WithEmbeddingRateLimit wraps p with a request budget. TPM has no effect
// because embedding responses carry no usage.
func WithEmbeddingRateLimit(p EmbeddingProvider, opts ...RateLimitOption) EmbeddingProvider {
	return &rateLimitEmbedding{inner: p, limit: newRateLimiter(opts)}
}

func (r *rateLimitEmbedding) Name() string    { return r.inner.Name() }
func (r *rateLimitEmbedding) Dimensions() int { return r.inner.Dimensions() }

func (r *rateLimitEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limit.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// compile-time checks
var (
	_ Provider          = (*rateLimitProvider)(nil)
	_ EmbeddingProvider = (*rateLimitEmbedding)(nil)
)
