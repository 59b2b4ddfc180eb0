package lumen

import (
	"context"
	"errors"
	"testing"
)

func TestErrProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrProvider
		want string
	}{
		{"message only", &ErrProvider{Provider: "openai", Message: "empty response"}, "openai: empty response"},
		{"cause only", &ErrProvider{Provider: "anthropic", Err: &ErrHTTP{Status: 429, Body: "slow down"}}, "anthropic: http 429: slow down"},
		{"both", &ErrProvider{Provider: "openai", Message: "decode", Err: errors.New("bad json")}, "openai: decode: bad json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrProviderUnwrapsHTTP(t *testing.T) {
	err := error(&ErrProvider{Provider: "openai", Err: &ErrHTTP{Status: 503, Body: "down"}})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatal("errors.As should find *ErrHTTP inside *ErrProvider")
	}
	if httpErr.Status != 503 {
		t.Errorf("Status = %d, want 503", httpErr.Status)
	}
}

func TestErrHTTPError(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{429, "too many requests", "http 429: too many requests"},
		{500, "internal server error", "http 500: internal server error"},
		{0, "", "http 0: "},
	}
	for _, tt := range tests {
		e := &ErrHTTP{Status: tt.status, Body: tt.body}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrHTTP{%d, %q}.Error() = %q, want %q", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestToolErrorMessage(t *testing.T) {
	e := &ToolError{Tool: "calculator", Input: "1/", Err: errors.New("unexpected end")}
	want := `tool "calculator" failed on input "1/": unexpected end`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRunErrorUnwrap(t *testing.T) {
	e := &RunError{Kind: FailureTimeout, Iteration: 2, Err: context.DeadlineExceeded}
	if !errors.Is(e, context.DeadlineExceeded) {
		t.Error("RunError should unwrap to its cause")
	}
	want := "agent run failed (timeout) at iteration 2: context deadline exceeded"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRunErrorMentionsTool(t *testing.T) {
	e := &RunError{Kind: FailureTimeout, Iteration: 1, Tool: "weather", Err: context.Canceled}
	want := `agent run failed (timeout) at iteration 1 after tool "weather": context canceled`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
