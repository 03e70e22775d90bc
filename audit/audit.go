// Package audit keeps a persistent log of tool invocations in SQLite.
//
// Store implements registry.Recorder, so a broker can record every call
// it dispatches. Arguments are stored as JSON; results are not stored, only
// whether the call failed and why.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jonwraymond/toolbridge/registry"
)

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded invocation.
type Entry struct {
	ID         string
	RequestID  string
	Backend    string
	Tool       string
	Arguments  json.RawMessage
	IsError    bool
	ErrorKind  string
	Message    string
	StartedAt  time.Time
	DurationMS int64
}

// Store is a SQLite-backed invocation log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the log at path. The schema is created if it
// doesn't exist and parent directories are created if needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "audit")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("audit log initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			backend TEXT NOT NULL,
			tool TEXT NOT NULL,
			arguments TEXT,
			is_error INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT,
			message TEXT,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_started ON tool_calls(started_at);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_backend ON tool_calls(backend);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCall stores one invocation.
func (s *Store) RecordCall(ctx context.Context, rec registry.CallRecord) error {
	var args []byte
	if rec.Arguments != nil {
		var err error
		args, err = json.Marshal(rec.Arguments)
		if err != nil {
			return fmt.Errorf("encoding arguments: %w", err)
		}
	}

	query := `
		INSERT INTO tool_calls (
			id, request_id, backend, tool, arguments,
			is_error, error_kind, message, started_at, duration_ms
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		rec.RequestID,
		rec.Backend,
		rec.Tool,
		nullString(string(args)),
		boolInt(rec.IsError),
		nullString(rec.ErrorKind),
		nullString(rec.Message),
		rec.StartedAt.UTC().Format(timeLayout),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("recorded tool call",
		"request_id", rec.RequestID,
		"backend", rec.Backend,
		"tool", rec.Tool,
		"is_error", rec.IsError,
	)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, request_id, backend, tool, arguments,
		       is_error, error_kind, message, started_at, duration_ms
		FROM tool_calls
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e               Entry
			args, kind, msg sql.NullString
			isError         int
			startedAt       string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Backend, &e.Tool, &args,
			&isError, &kind, &msg, &startedAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		if args.Valid {
			e.Arguments = json.RawMessage(args.String)
		}
		e.IsError = isError != 0
		e.ErrorKind = kind.String
		e.Message = msg.String
		e.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary aggregates calls per backend.
type Summary struct {
	Backend  string
	Calls    int
	Failures int
}

// Summarize returns call and failure counts per backend sorted by name.
func (s *Store) Summarize(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT backend, COUNT(*), SUM(is_error)
		FROM tool_calls
		GROUP BY backend
		ORDER BY backend
	`)
	if err != nil {
		return nil, fmt.Errorf("summarizing tool calls: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Backend, &sum.Calls, &sum.Failures); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
