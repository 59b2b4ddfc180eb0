package lumen

import "context"

// TranscriptStore persists the full conversation transcript behind a memory.
// Implementations: store/sqlite, store/postgres.
type TranscriptStore interface {
	// AppendMessage durably records msg at the end of the transcript.
	AppendMessage(ctx context.Context, msg ChatMessage) error
	// Messages returns the whole transcript, oldest first.
	Messages(ctx context.Context) ([]ChatMessage, error)
}
