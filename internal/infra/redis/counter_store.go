package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GlobalCounterName is the field of the counter shared by every topic.
const GlobalCounterName = "overall_quiz"

// allocateDay maps a date to its day number, assigning last+1 to unseen dates.
// KEYS[1] date->day hash, KEYS[2] last assigned day, ARGV[1] date.
var allocateDay = redis.NewScript(`
local existing = redis.call('HGET', KEYS[1], ARGV[1])
if existing then
	return tonumber(existing)
end
local day = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], ARGV[1], day)
return day
`)

// CounterStore keeps quiz numbering in Redis.
// Days are stored as:           HSET {prefix}:days {yyyy-mm-dd} {day}
// Topic counters are stored as: HINCRBY {prefix}:counters {topic} 1
// The global counter is:        HINCRBY {prefix}:overall overall_quiz 1
type CounterStore struct {
	client *redis.Client
	prefix string
}

func NewCounterStore(client *redis.Client, prefix string) *CounterStore {
	if prefix == "" {
		prefix = "quiz"
	}
	return &CounterStore{client: client, prefix: prefix}
}

func (s *CounterStore) AllocateDay(ctx context.Context, today time.Time) (int, error) {
	keys := []string{s.prefix + ":days", s.prefix + ":days:last"}
	day, err := allocateDay.Run(ctx, s.client, keys, today.Format(time.DateOnly)).Int()
	if err != nil {
		return 0, fmt.Errorf("allocate day: %w", err)
	}
	return day, nil
}

func (s *CounterStore) AllocateTopicCounter(ctx context.Context, topic string) (int, error) {
	n, err := s.client.HIncrBy(ctx, s.prefix+":counters", topic, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter %q: %w", topic, err)
	}
	return int(n), nil
}

func (s *CounterStore) AllocateGlobalCounter(ctx context.Context) (int, error) {
	n, err := s.client.HIncrBy(ctx, s.prefix+":overall", GlobalCounterName, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", GlobalCounterName, err)
	}
	return int(n), nil
}
