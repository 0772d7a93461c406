package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quiz-publisher/internal/domain"
)

// releaseLock deletes the lock only while it still carries our token.
var releaseLock = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RunLock is a Redis implementation of app.RunLock, shared by every process
// pointed at the same server. The TTL bounds how long a crashed holder blocks a topic.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRunLock(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RunLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLock{client: client, ttl: ttl, logger: logger}
}

func (l *RunLock) Acquire(ctx context.Context, topic string) (func(), error) {
	key := l.key(topic)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %q: %w", topic, err)
	}
	if !ok {
		return nil, domain.ErrRunInProgress
	}
	return func() {
		// best-effort; the TTL reclaims the key otherwise
		if err := releaseLock.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("release run lock", "topic", topic, "error", err)
		}
	}, nil
}

func (l *RunLock) key(topic string) string {
	return "quiz:run:" + topic
}
