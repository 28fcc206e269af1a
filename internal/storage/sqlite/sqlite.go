// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// querier is the subset of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements storage.Store using SQLite.
//
// A store returned by New runs every statement on the connection pool.
// Inside WithinTx the callback receives a copy bound to one *sql.Tx.
type SQLiteStore struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		return nil, err
	}

	// Foreign keys and the busy timeout are per connection, so they go in the DSN
	// to reach every connection of the pool. Immediate transactions take the
	// write lock up front: two writers queue instead of failing mid-transaction.
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStore{db: db, q: db}, nil
}

func dsn(dbPath string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_txlock=immediate",
	}
	return "file:" + dbPath + "?" + strings.Join(params, "&")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithinTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &SQLiteStore{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

// atomic runs fn against a transaction, joining the current one if any.
func (s *SQLiteStore) atomic(ctx context.Context, fn func(q querier) error) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return fn(tx.(*SQLiteStore).q)
	})
}

// wrapErr maps driver errors onto the storage sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if storage.IsDeadline(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, storage.ErrTransient, err)
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("failed to %s: %w: %w", op, storage.ErrDuplicateKey, err)
		}
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("failed to %s: %w: %w", op, storage.ErrTransient, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// notFound reports ErrNotFound for a write that matched no row.
func notFound(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// inClause returns "?, ?, ..." with n placeholders and the matching args.
func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

// queryStrings runs a single-column query and collects the values.
func queryStrings(ctx context.Context, q querier, op, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}
