package app_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quiz-publisher/internal/domain"
)

type staticFetcher struct {
	body []byte
	err  error
}

func (f staticFetcher) Fetch(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

type recordingAssembler struct {
	mu        sync.Mutex
	intro     string
	questions []domain.QuestionRecord
	path      string
	degraded  bool
}

func (a *recordingAssembler) Assemble(template []byte, intro string, questions []domain.QuestionRecord, path string) (bool, error) {
	a.mu.Lock()
	a.intro, a.questions, a.path = intro, questions, path
	a.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return a.degraded, os.WriteFile(path, template, 0o644)
}

type copyConverter struct {
	err error
}

func (c copyConverter) Convert(_ context.Context, src, target string) error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConversionFailed, c.err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

type recordingPublisher struct {
	mu        sync.Mutex
	intros    []string
	polls     []domain.Poll
	documents []string
	captions  []string
	failPoll  map[int]bool
	failIntro bool
	pollCalls int
}

func (p *recordingPublisher) PublishIntro(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIntro {
		return fmt.Errorf("%w: intro rejected", domain.ErrChannelDeliveryFailed)
	}
	p.intros = append(p.intros, text)
	return nil
}

func (p *recordingPublisher) PublishPoll(_ context.Context, poll domain.Poll) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.pollCalls
	p.pollCalls++
	if p.failPoll[idx] {
		return fmt.Errorf("%w: poll %d rejected", domain.ErrChannelDeliveryFailed, idx)
	}
	p.polls = append(p.polls, poll)
	return nil
}

func (p *recordingPublisher) PublishDocument(_ context.Context, path, caption string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	p.documents = append(p.documents, path)
	p.captions = append(p.captions, caption)
	return nil
}

type failingCounters struct{}

func (failingCounters) AllocateDay(context.Context, time.Time) (int, error) {
	return 0, errors.New("store down")
}

func (failingCounters) AllocateTopicCounter(context.Context, string) (int, error) {
	return 0, errors.New("store down")
}

func (failingCounters) AllocateGlobalCounter(context.Context) (int, error) {
	return 0, errors.New("store down")
}
