package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in the storage section.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Storage struct {
		Questions string `yaml:"questions"`
		Counters  string `yaml:"counters"`
		Lock      string `yaml:"lock"`
	} `yaml:"storage"`
	Mongo struct {
		URI               string `yaml:"uri"`
		QuestionsDatabase string `yaml:"questions_database"`
		DaysDatabase      string `yaml:"days_database"`
		CountersDatabase  string `yaml:"counters_database"`
		Timeout           string `yaml:"timeout"`
	} `yaml:"mongo"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		LockTTL  string `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Questions struct {
		Count        int      `yaml:"count"`
		IgnoreTopics []string `yaml:"ignore_topics"`
		SeedFile     string   `yaml:"seed_file"`
	} `yaml:"questions"`
	Template struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"template"`
	Converter struct {
		Binary  string `yaml:"binary"`
		Format  string `yaml:"format"`
		Timeout string `yaml:"timeout"`
	} `yaml:"converter"`
	Telegram struct {
		Token           string `yaml:"token"`
		Channel         string `yaml:"channel"`
		Handle          string `yaml:"handle"`
		Endpoint        string `yaml:"endpoint"`
		MessageInterval string `yaml:"message_interval"`
		Burst           int    `yaml:"burst"`
	} `yaml:"telegram"`
	Intro struct {
		Language string   `yaml:"language"`
		Schedule []string `yaml:"schedule"`
	} `yaml:"intro"`
	Runner struct {
		Workdir     string `yaml:"workdir"`
		ArtifactDir string `yaml:"artifact_dir"`
		KeepScratch bool   `yaml:"keep_scratch"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"runner"`
}

// Load reads YAML config from path, applies environment overrides and fills
// defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		name   string
		target *string
	}{
		{"MONGO_CONNECTION_STRING", &c.Mongo.URI},
		{"TELEGRAM_BOT_TOKEN", &c.Telegram.Token},
		{"TELEGRAM_CHANNEL_USERNAME", &c.Telegram.Channel},
		{"TEMPLATE_URL", &c.Template.URL},
		{"POSTGRES_URL", &c.Postgres.URL},
		{"REDIS_ADDR", &c.Redis.Addr},
		{"PORT", &c.Server.Port},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.name); ok && v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, "8080")
	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")
	setDefault(&c.Storage.Questions, BackendMongo)
	setDefault(&c.Storage.Counters, BackendMongo)
	setDefault(&c.Storage.Lock, BackendMemory)
	setDefault(&c.Mongo.QuestionsDatabase, "Quiz")
	setDefault(&c.Mongo.DaysDatabase, "QuizDays")
	setDefault(&c.Mongo.CountersDatabase, "QuizCounters")
	setDefault(&c.Redis.Prefix, "quiz")
	setDefault(&c.SQLite.Path, "quiz-counters.db")
	setDefault(&c.Converter.Binary, "libreoffice")
	setDefault(&c.Converter.Format, "pdf")
	setDefault(&c.Intro.Language, "en")
	if c.Questions.Count <= 0 {
		c.Questions.Count = 5
	}
	if c.Telegram.Burst <= 0 {
		c.Telegram.Burst = 1
	}
}

// Validate checks that the selected backends are known and configured.
func (c Config) Validate() error {
	var errs []error
	check := func(section, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("storage.%s: unknown backend %q (want one of %s)", section, value, strings.Join(allowed, ", ")))
	}
	check("questions", c.Storage.Questions, BackendMongo, BackendPostgres, BackendMemory)
	check("counters", c.Storage.Counters, BackendMongo, BackendPostgres, BackendRedis, BackendSQLite, BackendMemory)
	check("lock", c.Storage.Lock, BackendMemory, BackendRedis)

	uses := func(backend string) bool {
		return c.Storage.Questions == backend || c.Storage.Counters == backend || c.Storage.Lock == backend
	}
	if uses(BackendMongo) && c.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo.uri is required (MONGO_CONNECTION_STRING)"))
	}
	if uses(BackendPostgres) && c.Postgres.URL == "" {
		errs = append(errs, errors.New("postgres.url is required (POSTGRES_URL)"))
	}
	if uses(BackendRedis) && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required (REDIS_ADDR)"))
	}
	if c.Storage.Questions == BackendMemory && c.Questions.SeedFile == "" {
		errs = append(errs, errors.New("questions.seed_file is required for the memory question store"))
	}
	if c.Template.URL == "" {
		errs = append(errs, errors.New("template.url is required (TEMPLATE_URL)"))
	}
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required (TELEGRAM_BOT_TOKEN)"))
	}
	if c.Telegram.Channel == "" {
		errs = append(errs, errors.New("telegram.channel is required (TELEGRAM_CHANNEL_USERNAME)"))
	}
	if c.Runner.Timezone != "" {
		if _, err := time.LoadLocation(c.Runner.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("runner.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone for day numbering.
func (c Config) Location() *time.Location {
	if c.Runner.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Runner.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func setDefault(target *string, value string) {
	if *target == "" {
		*target = value
	}
}
