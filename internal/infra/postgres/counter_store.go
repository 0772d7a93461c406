package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// GlobalCounterName is the row of the counter shared by every topic.
const GlobalCounterName = "overall_quiz"

// dayLockKey serializes day allocation across connections.
const dayLockKey = 0x71756964 // "quid"

type CounterStore struct {
	pool *pgxpool.Pool
}

func NewCounterStore(pool *pgxpool.Pool) *CounterStore {
	return &CounterStore{pool: pool}
}

func (s *CounterStore) AllocateDay(ctx context.Context, today time.Time) (int, error) {
	date := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(dayLockKey)); err != nil {
		return 0, fmt.Errorf("lock days: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO quiz_days (date, day)
		SELECT $1, COALESCE(MAX(day), 0) + 1 FROM quiz_days
		ON CONFLICT (date) DO NOTHING`, date)
	if err != nil {
		return 0, fmt.Errorf("insert day: %w", err)
	}
	var day int
	if err := tx.QueryRow(ctx, `SELECT day FROM quiz_days WHERE date=$1`, date).Scan(&day); err != nil {
		return 0, fmt.Errorf("read day: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return day, nil
}

func (s *CounterStore) AllocateTopicCounter(ctx context.Context, topic string) (int, error) {
	return s.increment(ctx, "quiz_counters", topic)
}

func (s *CounterStore) AllocateGlobalCounter(ctx context.Context) (int, error) {
	return s.increment(ctx, "quiz_overall_counters", GlobalCounterName)
}

func (s *CounterStore) increment(ctx context.Context, table, name string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO `+table+` (name, count) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET count = `+table+`.count + 1
		RETURNING count`, name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment %s %q: %w", table, name, err)
	}
	return n, nil
}
