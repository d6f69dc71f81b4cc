package factlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	_ "modernc.org/sqlite" // database/sql driver
)

// SQLiteStore persists the fact sequence and flags to a SQLite database.
// It implements Store and is intended for standalone single-node
// deployments that want durability without a database server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens/creates a SQLite database and ensures schema and
// PRAGMAs suitable for an append-only log.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS facts (
  idx    INTEGER PRIMARY KEY,
  record BLOB    NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
  key   TEXT PRIMARY KEY,
  value INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get implements FlagStore. An absent key reads as false.
func (s *SQLiteStore) Get(ctx context.Context, key string) (bool, error) {
	var value bool
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, nil
}

// Set implements FlagStore.
func (s *SQLiteStore) Set(ctx context.Context, key string, value bool) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}

// Append implements SequenceStore. The next index is assigned inside a
// transaction so appends stay contiguous.
func (s *SQLiteStore) Append(ctx context.Context, record []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx), -1) + 1 FROM facts",
	).Scan(&next); err != nil {
		return fmt.Errorf("read sequence tail: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO facts (idx, record) VALUES (?, ?)", next, record,
	); err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fact tx: %w", err)
	}
	return nil
}

// Seq implements SequenceStore. Each range issues a fresh query.
func (s *SQLiteStore) Seq(ctx context.Context) iter.Seq2[[]byte, error] {
	return s.stream(ctx, "SELECT record FROM facts ORDER BY idx ASC")
}

// SeqReverse implements SequenceStore.
func (s *SQLiteStore) SeqReverse(ctx context.Context) iter.Seq2[[]byte, error] {
	return s.stream(ctx, "SELECT record FROM facts ORDER BY idx DESC")
}

func (s *SQLiteStore) stream(ctx context.Context, query string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			yield(nil, fmt.Errorf("query facts: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var record []byte
			if err := rows.Scan(&record); err != nil {
				yield(nil, fmt.Errorf("scan fact row: %w", err))
				return
			}
			if !yield(record, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate facts: %w", err))
		}
	}
}

// Len implements SequenceStore.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}
