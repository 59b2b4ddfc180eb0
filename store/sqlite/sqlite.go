// Package sqlite implements lumen.TranscriptStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/lumen"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// DefaultSession is the session used when WithSession is not set.
const DefaultSession = "default"

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and row counts. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithSession scopes the store to one conversation. Messages of other
// sessions in the same file are not visible.
func WithSession(id string) StoreOption {
	return func(s *Store) { s.session = id }
}

// Store persists a conversation transcript in a local SQLite file.
// Messages are returned in the order they were appended.
type Store struct {
	db      *sql.DB
	session string
	logger  *slog.Logger
}

var _ lumen.TranscriptStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler            { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, session: DefaultSession, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = nopLogger
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath, "session", s.session)
	return s
}

// Init creates the messages table.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session, seq)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// AppendMessage stores msg at the end of the session transcript.
func (s *Store) AppendMessage(ctx context.Context, msg lumen.ChatMessage) error {
	start := time.Now()
	id := lumen.NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, s.session, msg.Role, msg.Content, time.Now().Unix(),
	)
	if err != nil {
		s.logger.Error("sqlite: append message failed", "session", s.session, "error", err, "duration", time.Since(start))
		return fmt.Errorf("append message: %w", err)
	}
	s.logger.Debug("sqlite: append message ok", "id", id, "role", msg.Role, "duration", time.Since(start))
	return nil
}

// Messages returns the full session transcript, oldest first.
func (s *Store) Messages(ctx context.Context) ([]lumen.ChatMessage, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session = ? ORDER BY seq`,
		s.session,
	)
	if err != nil {
		s.logger.Error("sqlite: get messages failed", "session", s.session, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []lumen.ChatMessage
	for rows.Next() {
		var m lumen.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	s.logger.Debug("sqlite: get messages ok", "session", s.session, "count", len(messages), "duration", time.Since(start))
	return messages, nil
}

// Clear deletes the session transcript and returns how many messages were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session = ?`, s.session)
	if err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("sqlite: cleared session", "session", s.session, "removed", n)
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}
