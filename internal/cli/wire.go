package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"quiz-publisher/internal/app"
	"quiz-publisher/internal/config"
	"quiz-publisher/internal/docx"
	"quiz-publisher/internal/domain"
	"quiz-publisher/internal/infra/libreoffice"
	"quiz-publisher/internal/infra/memory"
	mongostore "quiz-publisher/internal/infra/mongo"
	pgstore "quiz-publisher/internal/infra/postgres"
	redisstore "quiz-publisher/internal/infra/redis"
	sqlitestore "quiz-publisher/internal/infra/sqlite"
	"quiz-publisher/internal/infra/telegram"
	"quiz-publisher/internal/infra/templatefetch"
	"quiz-publisher/internal/metrics"
)

// backends holds the shared connections opened for the configured stores.
type backends struct {
	cfg    config.Config
	logger *slog.Logger

	mongo  *mongodriver.Client
	pool   *pgxpool.Pool
	redis  *redis.Client
	closer []func() error
}

func newBackends(cfg config.Config, logger *slog.Logger) *backends {
	return &backends{cfg: cfg, logger: logger}
}

func (b *backends) Close() {
	for i := len(b.closer) - 1; i >= 0; i-- {
		if err := b.closer[i](); err != nil {
			b.logger.Warn("close backend", "err", err)
		}
	}
}

func (b *backends) mongoClient(ctx context.Context) (*mongodriver.Client, error) {
	if b.mongo != nil {
		return b.mongo, nil
	}
	client, err := mongostore.Connect(ctx, b.cfg.Mongo.URI, config.TTLDuration(b.cfg.Mongo.Timeout, 10*time.Second))
	if err != nil {
		return nil, err
	}
	b.mongo = client
	b.closer = append(b.closer, func() error {
		return client.Disconnect(context.Background())
	})
	return client, nil
}

func (b *backends) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	if err := runMigrations(ctx, b.cfg, b.logger); err != nil {
		return nil, err
	}
	pool, err := pgxpool.Connect(ctx, b.cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b.pool = pool
	b.closer = append(b.closer, func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (b *backends) redisClient() *redis.Client {
	if b.redis != nil {
		return b.redis
	}
	b.redis = redis.NewClient(&redis.Options{
		Addr:     b.cfg.Redis.Addr,
		Password: b.cfg.Redis.Password,
		DB:       b.cfg.Redis.DB,
	})
	b.closer = append(b.closer, b.redis.Close)
	return b.redis
}

func (b *backends) questions(ctx context.Context) (app.QuestionStore, error) {
	switch b.cfg.Storage.Questions {
	case config.BackendMongo:
		client, err := b.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		return mongostore.NewQuestionStore(client, b.cfg.Mongo.QuestionsDatabase), nil
	case config.BackendPostgres:
		pool, err := b.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		return pgstore.NewQuestionStore(pool), nil
	case config.BackendMemory:
		topics, err := memory.LoadQuestionFile(b.cfg.Questions.SeedFile)
		if err != nil {
			return nil, err
		}
		return memory.NewQuestionStore(topics), nil
	}
	return nil, fmt.Errorf("unknown question backend %q", b.cfg.Storage.Questions)
}

func (b *backends) counters(ctx context.Context) (app.CounterStore, error) {
	switch b.cfg.Storage.Counters {
	case config.BackendMongo:
		client, err := b.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		return mongostore.NewCounterStore(ctx, client, b.cfg.Mongo.DaysDatabase, b.cfg.Mongo.CountersDatabase)
	case config.BackendPostgres:
		pool, err := b.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		return pgstore.NewCounterStore(pool), nil
	case config.BackendRedis:
		return redisstore.NewCounterStore(b.redisClient(), b.cfg.Redis.Prefix), nil
	case config.BackendSQLite:
		store, err := sqlitestore.NewCounterStore(b.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		b.closer = append(b.closer, store.Close)
		return store, nil
	case config.BackendMemory:
		return memory.NewCounterStore(), nil
	}
	return nil, fmt.Errorf("unknown counter backend %q", b.cfg.Storage.Counters)
}

func (b *backends) runLock() (app.RunLock, error) {
	switch b.cfg.Storage.Lock {
	case config.BackendRedis:
		ttl := config.TTLDuration(b.cfg.Redis.LockTTL, 30*time.Minute)
		return redisstore.NewRunLock(b.redisClient(), ttl, b.logger), nil
	case config.BackendMemory:
		return memory.NewRunLock(), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", b.cfg.Storage.Lock)
}

// pipeline is everything a command needs to execute or observe runs.
type pipeline struct {
	runner   *app.Runner
	events   *app.EventHub
	registry *prometheus.Registry
}

func buildPipeline(ctx context.Context, cfg config.Config, b *backends, logger *slog.Logger) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	questions, err := b.questions(ctx)
	if err != nil {
		return nil, err
	}
	counters, err := b.counters(ctx)
	if err != nil {
		return nil, err
	}
	lock, err := b.runLock()
	if err != nil {
		return nil, err
	}

	fetcher := templatefetch.NewFetcher(nil, config.TTLDuration(cfg.Template.Timeout, 30*time.Second))
	templates := memory.NewTemplateCache(fetcher, config.TTLDuration(cfg.Template.CacheTTL, 0))

	converter := libreoffice.NewConverter(
		cfg.Converter.Binary,
		cfg.Converter.Format,
		config.TTLDuration(cfg.Converter.Timeout, 2*time.Minute),
		libreoffice.WithLogger(logger),
	)

	bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.Endpoint, &http.Client{Timeout: 60 * time.Second})
	if err != nil {
		return nil, err
	}
	handle := channelHandle(cfg)
	publisher, err := telegram.NewPublisher(bot, cfg.Telegram.Channel,
		telegram.WithLogger(logger),
		telegram.WithRateLimit(config.TTLDuration(cfg.Telegram.MessageInterval, 3*time.Second), cfg.Telegram.Burst),
		telegram.WithHandle(handle),
	)
	if err != nil {
		return nil, err
	}

	intro, err := app.NewIntroRenderer(app.IntroConfig{
		Language: cfg.Intro.Language,
		Handle:   handle,
		Schedule: cfg.Intro.Schedule,
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	events := app.NewEventHub(0)

	runner, err := app.NewRunner(app.Deps{
		Counters:  counters,
		Questions: questions,
		Templates: templates,
		Assembler: docx.NewAssembler(docx.WithLogger(logger)),
		Converter: converter,
		Publisher: publisher,
	}, app.Settings{
		TemplateURL:   cfg.Template.URL,
		QuestionCount: cfg.Questions.Count,
		Workdir:       cfg.Runner.Workdir,
		ArtifactDir:   cfg.Runner.ArtifactDir,
		Format:        converter.Extension(),
		IgnoreTopics:  cfg.Questions.IgnoreTopics,
		KeepScratch:   cfg.Runner.KeepScratch,
		Location:      cfg.Location(),
	},
		app.WithLogger(logger),
		app.WithRunLock(lock),
		app.WithEvents(events),
		app.WithMetrics(metrics.New(registry)),
		app.WithIntroRenderer(intro),
	)
	if err != nil {
		return nil, err
	}
	return &pipeline{runner: runner, events: events, registry: registry}, nil
}

// channelHandle is the "@name" shown in announcements: the configured handle,
// else the channel itself when it is a username, else the default handle.
func channelHandle(cfg config.Config) string {
	if cfg.Telegram.Handle != "" {
		return cfg.Telegram.Handle
	}
	channel := strings.TrimSpace(cfg.Telegram.Channel)
	if channel == "" || strings.TrimLeft(channel, "-0123456789") == "" {
		return domain.DefaultHandle
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return channel
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, newLogger(cfg), nil
}
