// Package postgres implements lumen.TranscriptStore and lumen.VectorIndex
// on PostgreSQL. The index relies on the pgvector extension for cosine
// distance search.
//
// Both Store and Index accept an externally-owned *pgxpool.Pool via
// constructor injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/lumen"
)

// DefaultSession is the transcript session used when none is configured.
const DefaultSession = "default"

// Store implements lumen.TranscriptStore backed by PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	session string
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSession scopes the transcript to one conversation session.
func WithSession(id string) StoreOption {
	return func(s *Store) { s.session = id }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

var _ lumen.TranscriptStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler            { return d }

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...StoreOption) *Store {
	s := &Store{pool: pool, session: DefaultSession}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = nopLogger
	}
	if s.session == "" {
		s.session = DefaultSession
	}
	return s
}

// Init creates the messages table. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lumen_messages (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS lumen_messages_session_idx ON lumen_messages(session, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// AppendMessage records msg at the end of the session transcript.
func (s *Store) AppendMessage(ctx context.Context, msg lumen.ChatMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lumen_messages (id, session, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		lumen.NewID(), s.session, msg.Role, msg.Content, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

// Messages returns the session transcript, oldest first.
func (s *Store) Messages(ctx context.Context) ([]lumen.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM lumen_messages WHERE session = $1 ORDER BY seq`,
		s.session)
	if err != nil {
		return nil, fmt.Errorf("postgres: get messages: %w", err)
	}
	defer rows.Close()

	var messages []lumen.ChatMessage
	for rows.Next() {
		var m lumen.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate messages: %w", err)
	}
	return messages, nil
}

// Clear deletes the session transcript and reports how many messages were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lumen_messages WHERE session = $1`, s.session)
	if err != nil {
		return 0, fmt.Errorf("postgres: clear messages: %w", err)
	}
	s.logger.Debug("postgres: transcript cleared", "session", s.session, "deleted", tag.RowsAffected())
	return int(tag.RowsAffected()), nil
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
