package config

import (
	"os"
	"strconv"
	"time"

	liststr "blaze/pkg/platform/strings"
)

// Server captures process level configuration for cmd/server.
type Server struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	ExperimentsFile string
	AdminToken      string

	Redis     RedisConfig
	Postgres  PostgresConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	Telemetry Telemetry
}

// RateLimitConfig bounds ingest requests per client IP. A zero limit disables it.
type RateLimitConfig struct {
	IngestLimit  int
	IngestWindow time.Duration
}

// RedisConfig configures the optional Redis backend. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SessionTTL   time.Duration
}

// PostgresConfig configures the optional event store. An empty URL disables it.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig configures the optional event stream. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Telemetry configures the client-side event pipeline.
type Telemetry struct {
	CollectorURL  string
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
	ArchiveLimit  int
	MaxBuffered   int
	Debug         bool
}

// Defaults for the telemetry pipeline.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 30 * time.Second
	DefaultFlushTimeout  = 8 * time.Second
	DefaultArchiveLimit  = 1000
	DefaultMaxBuffered   = 5000
)

// DefaultTelemetry returns the pipeline defaults.
func DefaultTelemetry() Telemetry {
	return Telemetry{
		BatchSize:     DefaultBatchSize,
		FlushInterval: DefaultFlushInterval,
		FlushTimeout:  DefaultFlushTimeout,
		ArchiveLimit:  DefaultArchiveLimit,
		MaxBuffered:   DefaultMaxBuffered,
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:            envString("BLAZE_ADDR", ":8080"),
		LogLevel:        envString("BLAZE_LOG_LEVEL", "info"),
		LogFormat:       envString("BLAZE_LOG_FORMAT", "json"),
		ExperimentsFile: envString("BLAZE_EXPERIMENTS_FILE", "configs/experiments.yaml"),
		AdminToken:      os.Getenv("BLAZE_ADMIN_TOKEN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			SessionTTL:   envDuration("BLAZE_SESSION_TTL", 30*time.Minute),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: liststr.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envString("KAFKA_TOPIC", "experiment-events"),
		},
		RateLimit: RateLimitConfig{
			IngestLimit:  envIntAllowZero("BLAZE_INGEST_RATE_LIMIT", 600),
			IngestWindow: envDuration("BLAZE_INGEST_RATE_WINDOW", time.Minute),
		},
		Telemetry: TelemetryFromEnv(),
	}
}

// TelemetryFromEnv reads the pipeline knobs; invalid values keep the defaults.
func TelemetryFromEnv() Telemetry {
	d := DefaultTelemetry()
	return Telemetry{
		CollectorURL:  envString("BLAZE_COLLECTOR_URL", "http://localhost:8080"),
		BatchSize:     envInt("BLAZE_BATCH_SIZE", d.BatchSize),
		FlushInterval: envDuration("BLAZE_FLUSH_INTERVAL", d.FlushInterval),
		FlushTimeout:  envDuration("BLAZE_FLUSH_TIMEOUT", d.FlushTimeout),
		ArchiveLimit:  envInt("BLAZE_ARCHIVE_LIMIT", d.ArchiveLimit),
		MaxBuffered:   envInt("BLAZE_MAX_BUFFERED", d.MaxBuffered),
		Debug:         os.Getenv("BLAZE_DEBUG") == "true",
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envIntAllowZero(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
