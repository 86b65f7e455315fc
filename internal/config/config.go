package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Session   SessionConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Removal   RemovalConfig
	RateLimit RateLimitConfig
	Trace     TraceConfig
}

type APIConfig struct {
	Addr string
}

// SessionConfig tunes the interactive editing surface: how long idle
// sessions live and how recompute debouncing behaves.
type SessionConfig struct {
	TTL           time.Duration
	DragDebounce  time.Duration
	EditDebounce  time.Duration
	RenderWorkers int
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int
	MaxActiveJobs int
	MetricsAddr   string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DatabaseConfig selects the imagestore backend: an empty DSN runs on
// the in-memory store, anything else opens Postgres.
type DatabaseConfig struct {
	DSN string
}

type RemovalConfig struct {
	Endpoint      string
	SigningSecret string
}

type RateLimitConfig struct {
	Capacity     int
	Window       time.Duration
	UserIDHeader string
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	defaultRenderWorkers := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr: env("EASEL_API_ADDR", ":8080"),
		},
		Session: SessionConfig{
			TTL:           time.Duration(envInt("EASEL_SESSION_TTL_SECONDS", 1800)) * time.Second,
			DragDebounce:  time.Duration(envInt("EASEL_DRAG_DEBOUNCE_MS", 10)) * time.Millisecond,
			EditDebounce:  time.Duration(envInt("EASEL_EDIT_DEBOUNCE_MS", 300)) * time.Millisecond,
			RenderWorkers: envInt("EASEL_RENDER_WORKERS", defaultRenderWorkers),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("EASEL_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs: envInt("WORKER_MAX_ACTIVE_JOBS", defaultRenderWorkers),
			MetricsAddr:   env("WORKER_METRICS_ADDR", ":9090"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "easel-images"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Removal: RemovalConfig{
			Endpoint:      env("EASEL_BGREMOVE_ENDPOINT", ""),
			SigningSecret: env("EASEL_BGREMOVE_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Capacity:     envInt("EASEL_RATELIMIT_CAPACITY", 120),
			Window:       time.Duration(envInt("EASEL_RATELIMIT_WINDOW_SECONDS", 60)) * time.Second,
			UserIDHeader: env("EASEL_RATELIMIT_USER_HEADER", "X-Easel-User-ID"),
		},
		Trace: TraceConfig{
			Exporter:     env("EASEL_TRACE_EXPORTER", ""),
			OTLPEndpoint: env("EASEL_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("EASEL_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
