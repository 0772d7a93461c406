package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-publisher/internal/domain"
)

// QuestionStore samples question documents kept as JSONB, one row per question.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) Sample(ctx context.Context, topic string, n int) ([]domain.QuestionRecord, error) {
	records := []domain.QuestionRecord{}
	if n <= 0 {
		return records, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT data FROM questions WHERE topic=$1 ORDER BY random() LIMIT $2`, topic, n)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		records = append(records, domain.RecordFromDocument(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	return records, nil
}

func (s *QuestionStore) ListTopics(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT topic FROM questions ORDER BY topic`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	return topics, rows.Err()
}

// Insert adds question documents to topic.
func (s *QuestionStore) Insert(ctx context.Context, topic string, docs ...map[string]any) error {
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal question: %w", err)
		}
		if _, err := s.pool.Exec(ctx, `INSERT INTO questions (topic, data) VALUES ($1, $2)`, topic, raw); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}
