package lumen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Memory is the conversation transcript an agent reads from and appends to.
type Memory interface {
	// Load returns the retained transcript, oldest first.
	Load(ctx context.Context) []ChatMessage
	// LoadWindowed returns at most the last k complete turns, plus any
	// leading non-turn messages and unanswered user messages.
	LoadWindowed(ctx context.Context, k int) []ChatMessage
	// Append adds one message. It never fails.
	Append(ctx context.Context, msg ChatMessage)
	// SaveTurn appends a user input and the assistant's answer.
	SaveTurn(ctx context.Context, input, output string)
}

// BufferMemory is an in-memory transcript. With a window of K turns, the
// oldest whole turns are evicted as soon as more than K complete turns are
// held. A turn is a user message plus the non-user messages that follow it.
type BufferMemory struct {
	mu       sync.Mutex
	messages []ChatMessage
	window   int // 0 = unbounded
	store    TranscriptStore
	logger   *slog.Logger
}

// MemoryOption configures a BufferMemory.
type MemoryOption func(*BufferMemory)

// WithTranscriptStore writes every appended message through to s.
// Write failures are logged and never returned.
func WithTranscriptStore(s TranscriptStore) MemoryOption {
	return func(m *BufferMemory) { m.store = s }
}

// WithMemoryLogger sets the logger for transcript write failures.
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(m *BufferMemory) { m.logger = l }
}

// NewBufferMemory returns a memory that keeps every message.
func NewBufferMemory(opts ...MemoryOption) *BufferMemory {
	return newBufferMemory(0, opts)
}

// NewWindowMemory returns a memory that retains the last k turns.
// k <= 0 means unbounded.
func NewWindowMemory(k int, opts ...MemoryOption) *BufferMemory {
	if k < 0 {
		k = 0
	}
	return newBufferMemory(k, opts)
}

func newBufferMemory(window int, opts []MemoryOption) *BufferMemory {
	m := &BufferMemory{window: window}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = nopLogger
	}
	return m
}

// Window returns the configured turn window, 0 when unbounded.
func (m *BufferMemory) Window() int { return m.window }

// Len returns the number of retained messages.
func (m *BufferMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *BufferMemory) Load(ctx context.Context) []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *BufferMemory) LoadWindowed(ctx context.Context, k int) []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k < 0 {
		k = 0
	}
	return retainTurns(m.messages, k)
}

func (m *BufferMemory) Append(ctx context.Context, msg ChatMessage) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.evict()
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.AppendMessage(ctx, msg); err != nil {
			m.logger.Error("persist transcript message", "role", msg.Role, "error", err)
		}
	}
}

func (m *BufferMemory) SaveTurn(ctx context.Context, input, output string) {
	m.Append(ctx, UserMessage(input))
	m.Append(ctx, AssistantMessage(output))
}

// Restore replaces the in-memory transcript with the one held by the
// transcript store, applying the window. It is a no-op without a store.
func (m *BufferMemory) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	msgs, err := m.store.Messages(ctx)
	if err != nil {
		return fmt.Errorf("restore memory: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append([]ChatMessage(nil), msgs...)
	m.evict()
	return nil
}

// evict drops the oldest complete turns beyond the window. Caller holds mu.
func (m *BufferMemory) evict() {
	if m.window <= 0 {
		return
	}
	m.messages = retainTurns(m.messages, m.window)
}

// segment is a run of consecutive messages. A paired segment is a complete
// turn: a user message and the non-user messages answering it. Messages
// before the first user message and a user message with no reply form
// unpaired segments.
type segment struct {
	msgs   []ChatMessage
	paired bool
}

func splitTurns(msgs []ChatMessage) []segment {
	var segs []segment
	i := 0
	for i < len(msgs) && msgs[i].Role != RoleUser {
		i++
	}
	if i > 0 {
		segs = append(segs, segment{msgs: msgs[:i]})
	}
	for i < len(msgs) {
		j := i + 1
		for j < len(msgs) && msgs[j].Role != RoleUser {
			j++
		}
		segs = append(segs, segment{msgs: msgs[i:j], paired: j > i+1})
		i = j
	}
	return segs
}

// retainTurns returns msgs without the oldest complete turns beyond k.
// Unpaired segments are kept in place and do not count against k.
func retainTurns(msgs []ChatMessage, k int) []ChatMessage {
	segs := splitTurns(msgs)
	turns := 0
	for _, s := range segs {
		if s.paired {
			turns++
		}
	}
	drop := turns - k
	out := make([]ChatMessage, 0, len(msgs))
	for _, s := range segs {
		if s.paired && drop > 0 {
			drop--
			continue
		}
		out = append(out, s.msgs...)
	}
	return out
}

var _ Memory = (*BufferMemory)(nil)
