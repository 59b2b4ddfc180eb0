package lumen

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tool is a named capability the agent can invoke with a single text input.
type Tool interface {
	Name() string
	// Description is rendered into the agent prompt so the model knows when to use the tool.
	Description() string
	Execute(ctx context.Context, input string) (string, error)
}

// ToolFunc is the signature of a plain function usable as a tool.
type ToolFunc func(ctx context.Context, input string) (string, error)

// NewTool adapts fn into a Tool.
func NewTool(name, description string, fn ToolFunc) Tool {
	return &funcTool{name: name, description: description, fn: fn}
}

type funcTool struct {
	name        string
	description string
	fn          ToolFunc
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }
func (t *funcTool) Execute(ctx context.Context, input string) (string, error) {
	return t.fn(ctx, input)
}

// ToolRegistry holds tools keyed by unique name and invokes them.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  []Tool // registration order
	byName map[string]Tool
	logger *slog.Logger
}

// RegistryOption configures a ToolRegistry.
type RegistryOption func(*ToolRegistry)

// WithRegistryLogger sets the logger used for invocation records.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *ToolRegistry) { r.logger = l }
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(opts ...RegistryOption) *ToolRegistry {
	r := &ToolRegistry{byName: make(map[string]Tool)}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// Register adds t. A second tool with the same name is rejected with ErrDuplicateTool.
func (r *ToolRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateTool)
	}
	r.byName[name] = t
	r.tools = append(r.tools, t)
	return nil
}

// Tools returns the registered tools in registration order.
func (r *ToolRegistry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named tool. An unknown name returns ErrToolNotFound. A tool
// that fails or panics does not produce an error: the failure is described
// in the returned observation so the agent can react to it.
func (r *ToolRegistry) Invoke(ctx context.Context, name, input string) (string, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("invoke %q: %w", name, ErrToolNotFound)
	}

	start := time.Now()
	out, err := safeExecute(ctx, t, input)
	if err != nil {
		terr := &ToolError{Tool: name, Input: input, Err: err}
		r.logger.Debug("tool failed",
			"tool", name,
			"input", truncateStr(input, 200),
			"duration", time.Since(start),
			"error", err)
		return "error: " + terr.Error(), nil
	}
	r.logger.Debug("tool invoked",
		"tool", name,
		"input", truncateStr(input, 200),
		"output", truncateStr(out, 200),
		"duration", time.Since(start))
	return out, nil
}

// safeExecute runs the tool, converting a panic into an error.
func safeExecute(ctx context.Context, t Tool, input string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = "", fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Execute(ctx, input)
}

// describeTools renders "name: description" lines in registration order.
func describeTools(tools []Tool) string {
	var sb strings.Builder
	for i, t := range tools {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.Name())
		sb.WriteString(": ")
		sb.WriteString(t.Description())
	}
	return sb.String()
}

// truncateStr returns s truncated to n runes with "..." appended if needed.
func truncateStr(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
