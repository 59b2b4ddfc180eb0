package lumen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RunState is a state of the ReAct run state machine.
type RunState string

const (
	StateAwaitingModel   RunState = "awaiting_model"
	StateParsingResponse RunState = "parsing_response"
	StateInvokingTool    RunState = "invoking_tool"
	StateDone            RunState = "done"
	StateFailed          RunState = "failed"
)

// DefaultMaxIterations bounds the model calls of one run.
const DefaultMaxIterations = 5

// RunResult is the terminal value of a run. On failure State is StateFailed,
// Steps holds the partial trace, and Run also returns a *RunError.
type RunResult struct {
	State      RunState    `json:"state"`
	Output     string      `json:"output,omitempty"`
	Steps      []AgentStep `json:"steps,omitempty"`
	Iterations int         `json:"iterations"`
	Usage      Usage       `json:"usage"`
}

// ReActAgent answers a question by alternating model calls and tool
// invocations until the model emits a Final Answer.
type ReActAgent struct {
	provider Provider
	tools    *ToolRegistry
	memory   Memory
	maxIter  int
	timeout  time.Duration
	preamble string
	logger   *slog.Logger
	tracer   Tracer
}

// AgentOption configures a ReActAgent.
type AgentOption func(*ReActAgent)

// WithMemory sets the conversation memory. Defaults to an unbounded BufferMemory.
func WithMemory(m Memory) AgentOption {
	return func(a *ReActAgent) { a.memory = m }
}

// WithMaxIterations caps the number of model calls per run (default 5).
func WithMaxIterations(n int) AgentOption {
	return func(a *ReActAgent) { a.maxIter = n }
}

// WithRunTimeout bounds the wall-clock duration of a run. The deadline is
// checked between steps; a tool call in flight runs to completion.
func WithRunTimeout(d time.Duration) AgentOption {
	return func(a *ReActAgent) { a.timeout = d }
}

// WithPreamble replaces DefaultPreamble. The template may use {tools} and {tool_names}.
func WithPreamble(tmpl string) AgentOption {
	return func(a *ReActAgent) { a.preamble = tmpl }
}

// WithAgentLogger sets the structured logger for run events.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *ReActAgent) { a.logger = l }
}

// WithAgentTracer enables span creation for runs and iterations.
func WithAgentTracer(t Tracer) AgentOption {
	return func(a *ReActAgent) { a.tracer = t }
}

// NewReActAgent creates an agent over provider and the tools in registry.
func NewReActAgent(provider Provider, registry *ToolRegistry, opts ...AgentOption) *ReActAgent {
	a := &ReActAgent{
		provider: provider,
		tools:    registry,
		maxIter:  DefaultMaxIterations,
		preamble: DefaultPreamble,
	}
	for _, o := range opts {
		o(a)
	}
	if a.tools == nil {
		a.tools = NewToolRegistry()
	}
	if a.memory == nil {
		a.memory = NewBufferMemory()
	}
	if a.maxIter <= 0 {
		a.maxIter = DefaultMaxIterations
	}
	if a.logger == nil {
		a.logger = nopLogger
	}
	return a
}

// Memory returns the agent's conversation memory.
func (a *ReActAgent) Memory() Memory { return a.memory }

// run holds the mutable state of one Run call.
type run struct {
	input      string
	history    []ChatMessage
	preamble   string
	steps      []AgentStep
	iterations int
	raw        string
	pending    ToolCall
	malformed  *Unparsed
	usage      Usage
	output     string
}

// Run executes one question to completion. Runs are sequential: a single
// agent must not be used by concurrent Run calls.
func (a *ReActAgent) Run(ctx context.Context, input string) (RunResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	ctx, span := StartSpan(ctx, a.tracer, "agent.run",
		StringAttr("agent.provider", a.provider.Name()),
		IntAttr("agent.max_iterations", a.maxIter))
	defer span.End()

	a.logger.Info("agent started", "provider", a.provider.Name(), "input", truncateStr(input, 200))
	res, err := a.loop(ctx, input)

	span.SetAttr(
		IntAttr("agent.iterations", res.Iterations),
		IntAttr("agent.steps", len(res.Steps)),
		IntAttr("tokens.input", res.Usage.InputTokens),
		IntAttr("tokens.output", res.Usage.OutputTokens))
	if err != nil {
		span.Error(err)
		span.SetAttr(StringAttr("agent.status", "error"))
	} else {
		span.SetAttr(StringAttr("agent.status", "ok"))
	}
	a.logger.Info("agent completed",
		"state", res.State,
		"iterations", res.Iterations,
		"steps", len(res.Steps),
		"tokens.input", res.Usage.InputTokens,
		"tokens.output", res.Usage.OutputTokens)
	return res, err
}

func (a *ReActAgent) loop(ctx context.Context, input string) (RunResult, error) {
	r := &run{
		input:    input,
		history:  a.memory.Load(ctx),
		preamble: renderPreamble(a.preamble, a.tools.Tools()),
	}

	state := StateAwaitingModel
	for {
		switch state {
		case StateAwaitingModel:
			if err := ctx.Err(); err != nil {
				return a.fail(r, FailureTimeout, err)
			}
			r.iterations++
			if r.iterations > a.maxIter {
				r.iterations = a.maxIter
				return a.fail(r, FailureIterationLimit, fmt.Errorf("%w: %d model calls", ErrIterationLimit, a.maxIter))
			}
			msgs := buildMessages(r.preamble, r.history, r.input, r.steps, r.malformed)
			resp, err := a.provider.Chat(ctx, ChatRequest{Messages: msgs})
			if err != nil {
				if ctx.Err() != nil {
					return a.fail(r, FailureTimeout, ctx.Err())
				}
				return a.fail(r, FailureProvider, err)
			}
			r.usage = r.usage.Add(resp.Usage)
			r.raw = resp.Content
			a.logger.Debug("model replied", "iteration", r.iterations, "content", truncateStr(r.raw, 300))
			state = StateParsingResponse

		case StateParsingResponse:
			switch p := ParseResponse(r.raw).(type) {
			case FinalAnswer:
				r.output = p.Text
				r.malformed = nil
				state = StateDone
			case ToolCall:
				r.pending = p
				r.malformed = nil
				state = StateInvokingTool
			case Unparsed:
				if r.malformed != nil {
					return a.fail(r, FailureParse, fmt.Errorf("%w: %s", ErrUnparsableResponse, p.Reason))
				}
				a.logger.Warn("unparsable model reply, re-prompting", "iteration", r.iterations, "reason", p.Reason)
				r.malformed = &p
				state = StateAwaitingModel
			}

		case StateInvokingTool:
			obs := a.observe(ctx, r.pending)
			r.steps = append(r.steps, AgentStep{
				Thought:     r.pending.Thought,
				Action:      r.pending.Name,
				ActionInput: r.pending.Input,
				Observation: obs,
			})
			r.pending = ToolCall{}
			state = StateAwaitingModel

		case StateDone:
			a.memory.SaveTurn(ctx, r.input, r.output)
			return RunResult{
				State:      StateDone,
				Output:     r.output,
				Steps:      r.steps,
				Iterations: r.iterations,
				Usage:      r.usage,
			}, nil
		}
	}
}

// observe invokes the pending tool call. The run deadline does not cancel
// a tool that has already started.
func (a *ReActAgent) observe(ctx context.Context, call ToolCall) string {
	ctx, span := StartSpan(ctx, a.tracer, "agent.tool",
		StringAttr("tool.name", call.Name))
	defer span.End()

	obs, err := a.tools.Invoke(context.WithoutCancel(ctx), call.Name, call.Input)
	if errors.Is(err, ErrToolNotFound) {
		a.logger.Warn("model chose unknown tool", "tool", call.Name)
		span.SetAttr(BoolAttr("tool.found", false))
		return fmt.Sprintf("tool not found: %q is not a valid tool, try one of [%s].",
			call.Name, strings.Join(a.tools.Names(), ", "))
	}
	if err != nil {
		span.Error(err)
		return "error: " + err.Error()
	}
	return obs
}

func (a *ReActAgent) fail(r *run, kind FailureKind, err error) (RunResult, error) {
	runErr := &RunError{
		Kind:      kind,
		Iteration: r.iterations,
		Raw:       r.raw,
		Input:     r.input,
		Steps:     r.steps,
		Err:       err,
	}
	if n := len(r.steps); n > 0 {
		runErr.Tool = r.steps[n-1].Action
		runErr.ToolInput = r.steps[n-1].ActionInput
	}
	a.logger.Error("agent run failed", "kind", kind, "iteration", r.iterations, "error", err)
	return RunResult{
		State:      StateFailed,
		Steps:      r.steps,
		Iterations: r.iterations,
		Usage:      r.usage,
	}, runErr
}
