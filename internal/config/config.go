package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	EmbeddingTTL time.Duration `yaml:"embedding_ttl"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type APIConfig struct {
	Port      int             `yaml:"port"`
	JWTSecret string          `yaml:"jwt_secret"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type BackoffConfig struct {
	Base      time.Duration `yaml:"base"`
	JitterMax time.Duration `yaml:"jitter_max"`
	Max       time.Duration `yaml:"max"`
}

type RetentionConfig struct {
	CompletedAge   time.Duration `yaml:"completed_age"`
	CompletedCount int           `yaml:"completed_count"`
	FailedAge      time.Duration `yaml:"failed_age"`
}

type QueueConfig struct {
	Driver             string          `yaml:"driver"` // postgres | memory
	LeaseDuration      time.Duration   `yaml:"lease_duration"`
	PollInterval       time.Duration   `yaml:"poll_interval"`
	JanitorInterval    time.Duration   `yaml:"janitor_interval"`
	DefaultMaxAttempts int             `yaml:"default_max_attempts"`
	Backoff            BackoffConfig   `yaml:"backoff"`
	Retention          RetentionConfig `yaml:"retention"`
}

// WorkerTypeConfig controls one job type's pool: its concurrency and whether a
// failed sub-operation aborts the job (default) or commits partial results.
type WorkerTypeConfig struct {
	Concurrency   int  `yaml:"concurrency"`
	CommitPartial bool `yaml:"commit_partial"`
}

type WorkersConfig struct {
	Image     WorkerTypeConfig `yaml:"image"`
	Video     WorkerTypeConfig `yaml:"video"`
	Text      WorkerTypeConfig `yaml:"text"`
	Embedding WorkerTypeConfig `yaml:"embedding"`

	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

type TranscribeConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ProvidersConfig struct {
	GeminiKey       string           `yaml:"gemini_key"`
	GeminiURL       string           `yaml:"gemini_url"`
	VisionModel     string           `yaml:"vision_model"`
	OpenAIKey       string           `yaml:"openai_key"`
	TextModel       string           `yaml:"text_model"`
	EmbeddingModel  string           `yaml:"embedding_model"`
	Transcribe      TranscribeConfig `yaml:"transcribe"`
	ConcurrentLimit int              `yaml:"concurrent_limit"` // max concurrent provider calls
	CallTimeout     time.Duration    `yaml:"call_timeout"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
	Queue     QueueConfig     `yaml:"queue"`
	Workers   WorkersConfig   `yaml:"workers"`
	Providers ProvidersConfig `yaml:"providers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Queue.Driver != "postgres" && cfg.Queue.Driver != "memory" {
		return nil, fmt.Errorf("queue.driver must be postgres or memory, got %q", cfg.Queue.Driver)
	}
	if cfg.Queue.Driver == "postgres" && cfg.Database.URL == "" {
		return nil, errors.New("database.url is required with the postgres queue driver")
	}
	if !dev {
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required")
		}
		if cfg.API.JWTSecret == "" {
			return nil, errors.New("api.jwt_secret is required")
		}
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Redis.EmbeddingTTL <= 0 {
		cfg.Redis.EmbeddingTTL = 24 * time.Hour
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RateLimit.Requests <= 0 {
		cfg.API.RateLimit.Requests = 60
	}
	if cfg.API.RateLimit.Window <= 0 {
		cfg.API.RateLimit.Window = time.Minute
	}
	if cfg.Queue.Driver == "" {
		if cfg.Runtime.Dev {
			cfg.Queue.Driver = "memory"
		} else {
			cfg.Queue.Driver = "postgres"
		}
	}
	if cfg.Queue.LeaseDuration <= 0 {
		cfg.Queue.LeaseDuration = 2 * time.Minute
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 500 * time.Millisecond
	}
	if cfg.Queue.JanitorInterval <= 0 {
		cfg.Queue.JanitorInterval = 30 * time.Second
	}
	if cfg.Queue.DefaultMaxAttempts <= 0 {
		cfg.Queue.DefaultMaxAttempts = 3
	}
	if cfg.Queue.Backoff.Base <= 0 {
		cfg.Queue.Backoff.Base = 2 * time.Second
	}
	if cfg.Queue.Backoff.JitterMax <= 0 {
		cfg.Queue.Backoff.JitterMax = time.Second
	}
	if cfg.Queue.Backoff.Max <= 0 {
		cfg.Queue.Backoff.Max = 5 * time.Minute
	}
	if cfg.Queue.Retention.CompletedAge <= 0 {
		cfg.Queue.Retention.CompletedAge = 24 * time.Hour
	}
	if cfg.Queue.Retention.CompletedCount <= 0 {
		cfg.Queue.Retention.CompletedCount = 1000
	}
	if cfg.Queue.Retention.FailedAge <= 0 {
		cfg.Queue.Retention.FailedAge = 7 * 24 * time.Hour
	}
	for _, w := range []*WorkerTypeConfig{&cfg.Workers.Image, &cfg.Workers.Video, &cfg.Workers.Text, &cfg.Workers.Embedding} {
		if w.Concurrency <= 0 {
			w.Concurrency = 4
		}
	}
	if cfg.Workers.ShutdownGrace <= 0 {
		cfg.Workers.ShutdownGrace = 30 * time.Second
	}
	if cfg.Providers.VisionModel == "" {
		cfg.Providers.VisionModel = "gemini-2.0-flash"
	}
	if cfg.Providers.TextModel == "" {
		cfg.Providers.TextModel = "gpt-4o-mini"
	}
	if cfg.Providers.EmbeddingModel == "" {
		cfg.Providers.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Providers.Transcribe.PollInterval <= 0 {
		cfg.Providers.Transcribe.PollInterval = 5 * time.Second
	}
	if cfg.Providers.ConcurrentLimit <= 0 {
		cfg.Providers.ConcurrentLimit = 16
	}
	if cfg.Providers.CallTimeout <= 0 {
		cfg.Providers.CallTimeout = 60 * time.Second
	}
}

// TypeConfig returns the worker settings for a job type name.
func (cfg *Config) TypeConfig(jobType string) WorkerTypeConfig {
	switch jobType {
	case "image":
		return cfg.Workers.Image
	case "video":
		return cfg.Workers.Video
	case "text":
		return cfg.Workers.Text
	case "embedding":
		return cfg.Workers.Embedding
	}
	return WorkerTypeConfig{Concurrency: 1}
}
