package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"quiz-publisher/internal/domain"
	"quiz-publisher/internal/metrics"
)

// CounterStore allocates the monotonically increasing numbers that identify a run.
type CounterStore interface {
	AllocateDay(ctx context.Context, today time.Time) (int, error)
	AllocateTopicCounter(ctx context.Context, topic string) (int, error)
	AllocateGlobalCounter(ctx context.Context) (int, error)
}

// QuestionStore samples question records from topic collections.
type QuestionStore interface {
	Sample(ctx context.Context, topic string, n int) ([]domain.QuestionRecord, error)
	ListTopics(ctx context.Context) ([]string, error)
}

// TemplateFetcher retrieves the binary document template.
type TemplateFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Assembler writes the template with generated content to path. degraded reports
// that the content markers were missing and the template was written unmodified.
type Assembler interface {
	Assemble(template []byte, intro string, questions []domain.QuestionRecord, path string) (degraded bool, err error)
}

// Converter renders the assembled document into its distributable format.
type Converter interface {
	Convert(ctx context.Context, sourcePath, targetPath string) error
}

// Publisher delivers messages to the target channel.
type Publisher interface {
	PublishIntro(ctx context.Context, text string) error
	PublishPoll(ctx context.Context, poll domain.Poll) error
	PublishDocument(ctx context.Context, path, caption string) error
}

// RunLock guards a topic against concurrent runs across processes.
type RunLock interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Deps are the collaborators every run needs.
type Deps struct {
	Counters  CounterStore
	Questions QuestionStore
	Templates TemplateFetcher
	Assembler Assembler
	Converter Converter
	Publisher Publisher
}

// Settings are the run parameters supplied by configuration.
type Settings struct {
	TemplateURL   string
	QuestionCount int
	Workdir       string // scratch space, one sub-directory per run
	ArtifactDir   string // where converted documents are kept
	Format        string // target extension, e.g. "pdf"
	IgnoreTopics  []string
	KeepScratch   bool
	Location      *time.Location
}

// Runner executes the quiz pipeline: counters, sampling and template retrieval,
// assembly, publishing and conversion.
type Runner struct {
	deps     Deps
	settings Settings
	intro    *IntroRenderer
	lock     RunLock
	events   *EventHub
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	pick     func(n int) int
	sf       singleflight.Group
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithRunLock(lock RunLock) Option {
	return func(r *Runner) {
		r.lock = lock
	}
}

func WithEvents(hub *EventHub) Option {
	return func(r *Runner) {
		r.events = hub
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithIntroRenderer(intro *IntroRenderer) Option {
	return func(r *Runner) {
		r.intro = intro
	}
}

// WithClock is used by tests for deterministic day allocation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(newID func() string) Option {
	return func(r *Runner) {
		r.newID = newID
	}
}

// WithTopicPicker overrides the random choice used when no topic is requested.
func WithTopicPicker(pick func(n int) int) Option {
	return func(r *Runner) {
		r.pick = pick
	}
}

func NewRunner(deps Deps, settings Settings, opts ...Option) (*Runner, error) {
	if deps.Counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if deps.Questions == nil {
		return nil, fmt.Errorf("question store is required")
	}
	if deps.Templates == nil {
		return nil, fmt.Errorf("template fetcher is required")
	}
	if deps.Assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if deps.Converter == nil {
		return nil, fmt.Errorf("converter is required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if settings.QuestionCount <= 0 {
		settings.QuestionCount = 5
	}
	if settings.Workdir == "" {
		settings.Workdir = filepath.Join(os.TempDir(), "quiz-publisher")
	}
	if settings.ArtifactDir == "" {
		settings.ArtifactDir = filepath.Join(settings.Workdir, "artifacts")
	}
	if settings.Format == "" {
		settings.Format = "pdf"
	}
	if settings.Location == nil {
		settings.Location = time.Local
	}

	r := &Runner{
		deps:     deps,
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
		pick:     rand.Intn,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.intro == nil {
		intro, err := NewIntroRenderer(IntroConfig{})
		if err != nil {
			return nil, err
		}
		r.intro = intro
	}
	return r, nil
}

// Run executes one quiz run. Concurrent calls for the same topic within this
// process share a single execution and its result.
func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.RunReport, error) {
	topic, err := r.resolveTopic(ctx, req.Topic)
	if err != nil {
		r.metrics.RunFinished(metrics.OutcomeFailed)
		return domain.RunReport{}, err
	}
	count := req.Count
	if count <= 0 {
		count = r.settings.QuestionCount
	}

	result, err, _ := r.sf.Do(topic, func() (interface{}, error) {
		return r.run(ctx, topic, count)
	})
	report, _ := result.(domain.RunReport)
	return report, err
}

// Topics lists the selectable topics, excluding ignored and system collections.
func (r *Runner) Topics(ctx context.Context) ([]string, error) {
	all, err := r.deps.Questions.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return FilterTopics(all, r.settings.IgnoreTopics), nil
}

// FilterTopics drops ignored names and "system." collections, keeping order.
func FilterTopics(all, ignore []string) []string {
	ignored := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		ignored[name] = struct{}{}
	}
	topics := make([]string, 0, len(all))
	for _, name := range all {
		if _, skip := ignored[name]; skip || strings.HasPrefix(name, "system.") {
			continue
		}
		topics = append(topics, name)
	}
	return topics
}

func (r *Runner) resolveTopic(ctx context.Context, requested string) (string, error) {
	if topic := strings.TrimSpace(requested); topic != "" {
		return topic, nil
	}
	topics, err := r.Topics(ctx)
	if err != nil {
		return "", err
	}
	if len(topics) == 0 {
		return "", domain.ErrNoTopics
	}
	return topics[r.pick(len(topics))], nil
}

func (r *Runner) run(ctx context.Context, topic string, count int) (report domain.RunReport, err error) {
	run := domain.QuizRun{ID: r.newID(), Topic: topic}
	report = domain.RunReport{RunID: run.ID, Topic: topic}
	logger := r.logger.With("run_id", run.ID, "topic", topic)
	defer func() {
		if err != nil {
			logger.Error("quiz run failed", "error", err)
			r.emit(run, domain.StageDone, domain.StatusFailed, err.Error())
			r.metrics.RunFinished(metrics.OutcomeFailed)
		}
	}()

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, topic)
		if err != nil {
			return report, err
		}
		defer release()
	}

	r.emit(run, domain.StageCounters, domain.StatusStarted, "")
	if err = r.allocate(ctx, &run); err != nil {
		r.emit(run, domain.StageCounters, domain.StatusFailed, err.Error())
		return report, err
	}
	report.Day, report.TopicNumber, report.GlobalNumber = run.Day, run.TopicNumber, run.GlobalNumber
	r.emit(run, domain.StageCounters, domain.StatusOK, fmt.Sprintf("day %d, quiz %d, overall %d", run.Day, run.TopicNumber, run.GlobalNumber))

	template, err := r.gather(ctx, &run, count)
	if err != nil {
		return report, err
	}
	report.Sampled = len(run.Questions)
	if len(run.Questions) == 0 {
		logger.Warn("no questions available, skipping publishing")
		r.emit(run, domain.StageDone, domain.StatusSkipped, "no questions available")
		report.Skipped = true
		r.metrics.RunFinished(metrics.OutcomeSkipped)
		return report, nil
	}

	polls := r.parsePolls(logger, run.Questions)
	report.Malformed = len(run.Questions) - len(polls)
	r.metrics.MalformedQuestions(report.Malformed)

	run.Intro, err = r.intro.Render(IntroData{
		Day:          run.Day,
		Topic:        topic,
		TopicNumber:  run.TopicNumber,
		GlobalNumber: run.GlobalNumber,
		Count:        len(run.Questions),
	})
	if err != nil {
		return report, fmt.Errorf("render intro: %w", err)
	}

	scratch := filepath.Join(r.settings.Workdir, run.ID)
	if !r.settings.KeepScratch {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				logger.Warn("remove scratch directory", "path", scratch, "error", err)
			}
		}()
	}
	baseName := fmt.Sprintf("%s Quiz %d", topic, run.TopicNumber)
	docPath := filepath.Join(scratch, baseName+".docx")

	r.emit(run, domain.StageAssemble, domain.StatusStarted, "")
	degraded, err := r.deps.Assembler.Assemble(template, run.Intro.Plain, run.Questions, docPath)
	if err != nil {
		r.emit(run, domain.StageAssemble, domain.StatusFailed, err.Error())
		return report, fmt.Errorf("assemble document: %w", err)
	}
	report.Degraded = degraded
	if degraded {
		logger.Warn("document assembled from unmodified template", "error", domain.ErrAssemblyDegraded)
		r.emit(run, domain.StageAssemble, domain.StatusDegraded, domain.ErrAssemblyDegraded.Error())
	} else {
		r.emit(run, domain.StageAssemble, domain.StatusOK, docPath)
	}

	r.publishMessages(ctx, logger, run, polls, &report)

	target := filepath.Join(r.settings.ArtifactDir, baseName+"."+r.settings.Format)
	r.emit(run, domain.StageConvert, domain.StatusStarted, "")
	started := r.now()
	if err = r.deps.Converter.Convert(ctx, docPath, target); err != nil {
		r.emit(run, domain.StageConvert, domain.StatusFailed, err.Error())
		return report, err
	}
	r.metrics.ObserveConversion(r.now().Sub(started))
	report.ArtifactPath = target
	r.emit(run, domain.StageConvert, domain.StatusOK, target)

	if err := r.deps.Publisher.PublishDocument(ctx, target, run.Intro.Markdown); err != nil {
		logger.Error("publish document", "path", target, "error", err)
		r.emit(run, domain.StageDocument, domain.StatusFailed, err.Error())
	} else {
		report.DocumentSent = true
		r.emit(run, domain.StageDocument, domain.StatusOK, "")
	}

	r.emit(run, domain.StageDone, domain.StatusOK, "")
	r.metrics.RunFinished(metrics.OutcomeCompleted)
	logger.Info("quiz run finished",
		"day", run.Day,
		"quiz_number", run.TopicNumber,
		"overall_number", run.GlobalNumber,
		"polls_published", report.PollsPublished,
		"polls_failed", report.PollsFailed,
	)
	return report, nil
}

// allocate consumes the topic, global and day numbers. Numbers are never returned
// to the store, even if the run fails later.
func (r *Runner) allocate(ctx context.Context, run *domain.QuizRun) error {
	var err error
	if run.TopicNumber, err = r.deps.Counters.AllocateTopicCounter(ctx, run.Topic); err != nil {
		return fmt.Errorf("%w: topic %q: %v", domain.ErrCounterAllocation, run.Topic, err)
	}
	if run.GlobalNumber, err = r.deps.Counters.AllocateGlobalCounter(ctx); err != nil {
		return fmt.Errorf("%w: global: %v", domain.ErrCounterAllocation, err)
	}
	if run.Day, err = r.deps.Counters.AllocateDay(ctx, r.now().In(r.settings.Location)); err != nil {
		return fmt.Errorf("%w: day: %v", domain.ErrCounterAllocation, err)
	}
	return nil
}

// gather samples questions and fetches the template concurrently. The goroutines
// only see a snapshot of run; the sampled records are stored after both finish.
func (r *Runner) gather(ctx context.Context, run *domain.QuizRun, count int) ([]byte, error) {
	snapshot := domain.QuizRun{ID: run.ID, Topic: run.Topic}
	var (
		template []byte
		records  []domain.QuestionRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.emit(snapshot, domain.StageSample, domain.StatusStarted, "")
		sampled, err := r.deps.Questions.Sample(gctx, snapshot.Topic, count)
		if err != nil {
			r.emit(snapshot, domain.StageSample, domain.StatusFailed, err.Error())
			return fmt.Errorf("sample questions from %q: %w", snapshot.Topic, err)
		}
		records = sampled
		r.emit(snapshot, domain.StageSample, domain.StatusOK, fmt.Sprintf("%d questions", len(sampled)))
		return nil
	})
	g.Go(func() error {
		r.emit(snapshot, domain.StageTemplate, domain.StatusStarted, "")
		body, err := r.deps.Templates.Fetch(gctx, r.settings.TemplateURL)
		if err != nil {
			r.emit(snapshot, domain.StageTemplate, domain.StatusFailed, err.Error())
			return err
		}
		template = body
		r.emit(snapshot, domain.StageTemplate, domain.StatusOK, fmt.Sprintf("%d bytes", len(body)))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	run.Questions = records
	return template, nil
}

func (r *Runner) parsePolls(logger *slog.Logger, records []domain.QuestionRecord) []domain.Poll {
	polls := make([]domain.Poll, 0, len(records))
	for i, rec := range records {
		poll, err := rec.Poll()
		if err != nil {
			logger.Warn("skipping question", "index", i, "question", rec.Question, "error", err)
			continue
		}
		polls = append(polls, poll)
	}
	return polls
}

// publishMessages sends the intro and every poll. Delivery failures are logged and
// counted; they never stop the iteration.
func (r *Runner) publishMessages(ctx context.Context, logger *slog.Logger, run domain.QuizRun, polls []domain.Poll, report *domain.RunReport) {
	if err := r.deps.Publisher.PublishIntro(ctx, run.Intro.Markdown); err != nil {
		logger.Error("publish intro", "error", err)
		r.emit(run, domain.StageIntro, domain.StatusFailed, err.Error())
	} else {
		report.IntroPublished = true
		r.emit(run, domain.StageIntro, domain.StatusOK, "")
	}

	for i, poll := range polls {
		if err := r.deps.Publisher.PublishPoll(ctx, poll); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Error("poll publishing interrupted", "index", i, "error", err)
			} else {
				logger.Error("publish poll", "index", i, "question", poll.Question, "error", err)
			}
			report.PollsFailed++
			r.metrics.PollFailed()
			r.emit(run, domain.StagePoll, domain.StatusFailed, err.Error())
			continue
		}
		report.PollsPublished++
		r.metrics.PollPublished()
		r.emit(run, domain.StagePoll, domain.StatusOK, fmt.Sprintf("%d/%d", i+1, len(polls)))
	}
}

func (r *Runner) emit(run domain.QuizRun, stage domain.Stage, status domain.EventStatus, message string) {
	if r.events == nil {
		return
	}
	r.events.Publish(domain.RunEvent{
		RunID:   run.ID,
		Topic:   run.Topic,
		Stage:   stage,
		Status:  status,
		Message: message,
		At:      r.now(),
	})
}
