package factlog

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to
// serialise concurrent Append calls. The value is arbitrary but must be
// consistent across all instances writing to the same log.
const advisoryLockKey = int64(7_243_118_902)

// PostgresStore persists the fact sequence and flags to PostgreSQL. It
// implements Store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Get implements FlagStore. An absent key reads as false.
func (s *PostgresStore) Get(ctx context.Context, key string) (bool, error) {
	var value bool
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM settings WHERE key = $1", key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, nil
}

// Set implements FlagStore.
func (s *PostgresStore) Set(ctx context.Context, key string, value bool) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}

// Append implements SequenceStore. It acquires an advisory lock, reads the
// sequence tail, and inserts the record at the next index within a single
// transaction, so concurrent appends cannot interleave or leave gaps.
func (s *PostgresStore) Append(ctx context.Context, record []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory
	// lock; it is released when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var next int64
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(idx), -1) + 1 FROM facts",
	).Scan(&next); err != nil {
		return fmt.Errorf("read sequence tail: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO facts (idx, record) VALUES ($1, $2)",
		next, record,
	); err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fact tx: %w", err)
	}

	s.logger.Debug("fact appended", zap.Int64("idx", next), zap.Int("bytes", len(record)))
	return nil
}

// Seq implements SequenceStore. Each range issues a fresh query and
// streams rows in ascending index order.
func (s *PostgresStore) Seq(ctx context.Context) iter.Seq2[[]byte, error] {
	return s.stream(ctx, "SELECT record FROM facts ORDER BY idx ASC")
}

// SeqReverse implements SequenceStore.
func (s *PostgresStore) SeqReverse(ctx context.Context) iter.Seq2[[]byte, error] {
	return s.stream(ctx, "SELECT record FROM facts ORDER BY idx DESC")
}

func (s *PostgresStore) stream(ctx context.Context, query string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		rows, err := s.pool.Query(ctx, query)
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
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM facts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}
