package memory

import (
	"context"
	"sync"
	"time"
)

// GlobalCounterName is the key of the counter shared by every topic.
const GlobalCounterName = "overall_quiz"

// CounterStore keeps quiz numbering in process memory. Numbers reset with the process.
type CounterStore struct {
	mu       sync.Mutex
	days     map[string]int
	lastDay  int
	counters map[string]int
	global   int
}

func NewCounterStore() *CounterStore {
	return &CounterStore{
		days:     make(map[string]int),
		counters: make(map[string]int),
	}
}

func (s *CounterStore) AllocateDay(_ context.Context, today time.Time) (int, error) {
	key := today.Format(time.DateOnly)

	s.mu.Lock()
	defer s.mu.Unlock()
	if day, ok := s.days[key]; ok {
		return day, nil
	}
	s.lastDay++
	s.days[key] = s.lastDay
	return s.lastDay, nil
}

func (s *CounterStore) AllocateTopicCounter(_ context.Context, topic string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[topic]++
	return s.counters[topic], nil
}

func (s *CounterStore) AllocateGlobalCounter(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global++
	return s.global, nil
}
