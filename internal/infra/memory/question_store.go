package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quiz-publisher/internal/domain"
)

// QuestionStore is a question bank backed by an in-memory map (useful for tests/demos).
type QuestionStore struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	topics map[string][]domain.QuestionRecord
}

func NewQuestionStore(topics map[string][]domain.QuestionRecord) *QuestionStore {
	if topics == nil {
		topics = make(map[string][]domain.QuestionRecord)
	}
	return &QuestionStore{
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		topics: topics,
	}
}

// Sample returns up to n distinct records from topic in random order.
func (s *QuestionStore) Sample(_ context.Context, topic string, n int) ([]domain.QuestionRecord, error) {
	if n <= 0 {
		return []domain.QuestionRecord{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.topics[topic]
	shuffled := make([]domain.QuestionRecord, len(records))
	copy(shuffled, records)
	s.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n < len(shuffled) {
		shuffled = shuffled[:n]
	}
	return shuffled, nil
}

func (s *QuestionStore) ListTopics(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.topics))
	for name := range s.topics {
		topics = append(topics, name)
	}
	sort.Strings(topics)
	return topics, nil
}
