package memory

import (
	"context"
	"sync"

	"quiz-publisher/internal/domain"
)

// RunLock is an in-process implementation of app.RunLock.
type RunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewRunLock() *RunLock {
	return &RunLock{
		held: make(map[string]struct{}),
	}
}

func (l *RunLock) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, domain.ErrRunInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

func (l *RunLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
