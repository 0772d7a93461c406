package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.mongodb.org/mongo-driver/bson"

	"quiz-publisher/internal/app"
	"quiz-publisher/internal/docx"
	"quiz-publisher/internal/domain"
	mongostore "quiz-publisher/internal/infra/mongo"
	pgstore "quiz-publisher/internal/infra/postgres"
	pgmigrations "quiz-publisher/internal/infra/postgres/migrations"
	infraredis "quiz-publisher/internal/infra/redis"
)

func TestRunEndToEndOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	questions := pgstore.NewQuestionStore(pool)
	if err := questions.Insert(ctx, "History", sampleDocs()...); err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	publisher := &recordingPublisher{}
	workdir := t.TempDir()
	runner, err := app.NewRunner(app.Deps{
		Counters:  pgstore.NewCounterStore(pool),
		Questions: questions,
		Templates: staticTemplate(buildTemplate(t)),
		Assembler: docx.NewAssembler(),
		Converter: copyConverter{},
		Publisher: publisher,
	}, app.Settings{
		TemplateURL:   "https://docs.example.com/document/d/abc/edit",
		QuestionCount: 5,
		Workdir:       workdir,
		Format:        "pdf",
	}, app.WithRunLock(infraredis.NewRunLock(redisClient, time.Minute, nil)))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	first, err := runner.Run(ctx, domain.RunRequest{Topic: "History"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Day != 1 || first.TopicNumber != 1 || first.GlobalNumber != 1 {
		t.Fatalf("unexpected first numbering: %+v", first)
	}
	if first.Sampled != 3 || first.Malformed != 1 || first.PollsPublished != 2 {
		t.Fatalf("unexpected first counts: %+v", first)
	}
	if _, err := os.Stat(first.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	second, err := runner.Run(ctx, domain.RunRequest{Topic: "History"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Day != 1 || second.TopicNumber != 2 || second.GlobalNumber != 2 {
		t.Fatalf("unexpected second numbering: %+v", second)
	}
	if got := publisher.documents(); got != 2 {
		t.Fatalf("expected 2 documents, got %d", got)
	}
}

func TestRedisCountersAndLock(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, cleanup := startRedis(t, ctx)
	defer cleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	counters := infraredis.NewCounterStore(client, "it")
	today := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, day := range []time.Time{today, today.Add(3 * time.Hour), today.AddDate(0, 0, 1)} {
		got, err := counters.AllocateDay(ctx, day)
		if err != nil {
			t.Fatalf("allocate day: %v", err)
		}
		want := []int{1, 1, 2}[i]
		if got != want {
			t.Fatalf("day %d: got %d, want %d", i, got, want)
		}
	}

	lock := infraredis.NewRunLock(client, time.Minute, nil)
	release, err := lock.Acquire(ctx, "History")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lock.Acquire(ctx, "History"); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected run in progress, got %v", err)
	}
	release()
	again, err := lock.Acquire(ctx, "History")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again()
}

func TestMongoStores(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	uri, cleanup := startMongo(t, ctx)
	defer cleanup()

	client, err := mongostore.Connect(ctx, uri, 30*time.Second)
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	questions := mongostore.NewQuestionStore(client, "Quiz")
	if err := questions.Insert(ctx, "Geography", sampleDocs()...); err != nil {
		t.Fatalf("insert: %v", err)
	}
	topics, err := questions.ListTopics(ctx)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 1 || topics[0] != "Geography" {
		t.Fatalf("unexpected topics %v", topics)
	}
	sampled, err := questions.Sample(ctx, "Geography", 2)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(sampled) != 2 {
		t.Fatalf("expected 2 sampled, got %d", len(sampled))
	}

	counters, err := mongostore.NewCounterStore(ctx, client, "QuizDays", "QuizCounters")
	if err != nil {
		t.Fatalf("counter store: %v", err)
	}
	// a record written by an earlier deployment: BSON datetime at midnight
	seeded := bson.M{"date": time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "day": 12}
	if _, err := client.Database("QuizDays").Collection("Days").InsertOne(ctx, seeded); err != nil {
		t.Fatalf("seed day: %v", err)
	}
	today := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	day, err := counters.AllocateDay(ctx, today)
	if err != nil || day != 12 {
		t.Fatalf("allocate seeded day: %d %v", day, err)
	}
	day, err = counters.AllocateDay(ctx, today.Add(5*time.Hour))
	if err != nil || day != 12 {
		t.Fatalf("same day again: %d %v", day, err)
	}
	day, err = counters.AllocateDay(ctx, today.AddDate(0, 0, 1))
	if err != nil || day != 13 {
		t.Fatalf("next day: %d %v", day, err)
	}

	var wg sync.WaitGroup
	results := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := counters.AllocateTopicCounter(ctx, "Geography")
			if err != nil {
				t.Errorf("topic counter: %v", err)
				return
			}
			results <- n
		}()
	}
	wg.Wait()
	close(results)
	seen := make(map[int]bool)
	for n := range results {
		if seen[n] {
			t.Fatalf("duplicate topic number %d", n)
		}
		seen[n] = true
	}
	if len(seen) != 10 || !seen[1] || !seen[10] {
		t.Fatalf("expected numbers 1..10, got %v", seen)
	}
}

func sampleDocs() []map[string]any {
	return []map[string]any{
		{"question": "Capital of Gujarat?", "option_a": "Surat", "option_b": "Gandhinagar", "option_c": "Rajkot", "option_d": "Vadodara", "answer": "b"},
		{"question": "First Mughal emperor?", "option_a": "Akbar", "option_b": "Humayun", "option_c": "Babur", "option_d": "Aurangzeb", "answer": "c", "explanation": "Babur founded the empire in 1526."},
		{"question": "Broken", "option_a": "x", "option_b": "y", "option_c": "z", "option_d": "w", "answer": "e"},
	}
}

func buildTemplate(t *testing.T) []byte {
	t.Helper()
	const doc = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>&lt;&lt;START_CONTENT&gt;&gt;</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>&lt;&lt;END_CONTENT&gt;&gt;</w:t></w:r></w:p>` +
		`<w:sectPr/></w:body></w:document>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if _, err := io.WriteString(w, doc); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

type staticTemplate []byte

func (s staticTemplate) Fetch(ctx context.Context, url string) ([]byte, error) {
	return append([]byte(nil), s...), nil
}

type copyConverter struct{}

func (copyConverter) Convert(ctx context.Context, sourcePath, targetPath string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(targetPath, data, 0o644)
}

type recordingPublisher struct {
	mu    sync.Mutex
	polls int
	docs  int
}

func (p *recordingPublisher) PublishIntro(ctx context.Context, text string) error { return nil }

func (p *recordingPublisher) PublishPoll(ctx context.Context, poll domain.Poll) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	return nil
}

func (p *recordingPublisher) PublishDocument(ctx context.Context, path, caption string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs++
	return nil
}

func (p *recordingPublisher) documents() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.docs
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	container := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	})
	host, port := endpoint(t, ctx, container, "5432/tcp")
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port)
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	container := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	host, port := endpoint(t, ctx, container, "6379/tcp")
	return fmt.Sprintf("redis://%s:%s", host, port), func() {
		_ = container.Terminate(ctx)
	}
}

func startMongo(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	container := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	})
	host, port := endpoint(t, ctx, container, "27017/tcp")
	return fmt.Sprintf("mongodb://%s:%s", host, port), func() {
		_ = container.Terminate(ctx)
	}
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) tc.Container {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	return container
}

func endpoint(t *testing.T, ctx context.Context, container tc.Container, port string) (string, string) {
	t.Helper()
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return host, mapped.Port()
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
