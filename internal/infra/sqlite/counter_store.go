package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// GlobalCounterName is the row of the counter shared by every topic.
const GlobalCounterName = "overall_quiz"

// CounterStore keeps quiz numbering in a local SQLite file. A single
// connection serializes writers, so day allocation needs no extra locking.
type CounterStore struct {
	db *sql.DB
}

func NewCounterStore(path string) (*CounterStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiz-counters.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &CounterStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *CounterStore) Close() error {
	return s.db.Close()
}

func (s *CounterStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quiz_days (
			date TEXT PRIMARY KEY,
			day  INTEGER NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS quiz_counters (
			name  TEXT PRIMARY KEY,
			count INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS quiz_overall_counters (
			name  TEXT PRIMARY KEY,
			count INTEGER NOT NULL
		);
	`)
	return err
}

// AllocateDay uses INSERT OR IGNORE so the first writer for a date wins and
// later callers read its number back.
func (s *CounterStore) AllocateDay(ctx context.Context, today time.Time) (int, error) {
	date := today.Format(time.DateOnly)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO quiz_days (date, day)
		 SELECT ?, COALESCE(MAX(day), 0) + 1 FROM quiz_days`,
		date,
	); err != nil {
		return 0, fmt.Errorf("insert day: %w", err)
	}

	var day int
	if err := tx.QueryRowContext(ctx, `SELECT day FROM quiz_days WHERE date = ?`, date).Scan(&day); err != nil {
		return 0, fmt.Errorf("read day: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
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
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+table+` (name, count) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET count = count + 1
		 RETURNING count`,
		name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment %s %q: %w", table, name, err)
	}
	return n, nil
}
