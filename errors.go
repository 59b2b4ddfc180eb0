package lumen

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateTool      = errors.New("duplicate tool name")
	ErrToolNotFound       = errors.New("tool not found")
	ErrDuplicateEntry     = errors.New("duplicate index entry")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrIterationLimit     = errors.New("iteration limit exceeded")
	ErrUnparsableResponse = errors.New("unparsable model response")
	// ErrEmptyIndex is returned when answering against an index with no entries.
	// Querying an empty index is not an error.
	ErrEmptyIndex = errors.New("vector index is empty")
)

// ErrProvider reports a failed model or embedding call. Err carries the
// underlying cause (an *ErrHTTP, a transport error, or a decode error).
type ErrProvider struct {
	Provider string
	Message  string
	Err      error
}

func (e *ErrProvider) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *ErrProvider) Unwrap() error { return e.Err }

type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed Retry-After header; 0 when absent
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ToolError describes a tool that failed or panicked. Its message is what
// the agent sees as the observation.
type ToolError struct {
	Tool  string
	Input string
	Err   error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed on input %q: %v", e.Tool, e.Input, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// FailureKind classifies why an agent run ended in StateFailed.
type FailureKind string

const (
	FailureProvider       FailureKind = "provider_error"
	FailureParse          FailureKind = "parse_error"
	FailureIterationLimit FailureKind = "iteration_limit_exceeded"
	FailureTimeout        FailureKind = "timeout"
)

// RunError is returned by ReActAgent.Run for every failed run. Steps holds
// the steps completed before the failure.
type RunError struct {
	Kind      FailureKind
	Iteration int
	Raw       string // last raw model output, if any
	Tool      string // last tool the model called, if any
	ToolInput string
	Input     string // the run's question
	Steps     []AgentStep
	Err       error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("agent run failed (%s) at iteration %d", e.Kind, e.Iteration)
	if e.Tool != "" {
		msg += fmt.Sprintf(" after tool %q", e.Tool)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }
