package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `validate:"required,oneof=development stage production"`
	Http Http

	Cors CORS `validate:"required"`

	Kafka Kafka `validate:"required"`

	Postgres Postgres `validate:"required"`

	Redis Redis `validate:"required"`

	Idempotency Idempotency `validate:"required"`

	Retry Retry `validate:"required"`

	Cache Cache `validate:"required"`
}

type Http struct {
	Host string `validate:"required,hostname|ip"`
	Port string `validate:"required,gt=0,lte=65535"`
}

// Kafka carries both the primary consumer's topics and the producer
// topic for the completion event, mirroring the three-topic layout in
// the source Spring application.yml (orders, orders-dlt, orders-processed).
type Kafka struct {
	GroupID string   `validate:"required"`
	Brokers []string `validate:"required,min=1,dive,hostname_port"`

	ReceivedTopic  string `validate:"required"`
	DLTTopic       string `validate:"required"`
	ProcessedTopic string `validate:"required"`

	ReaderMaxWait time.Duration `validate:"gte=0"`
	BatchTimeout  time.Duration `validate:"gte=0"`
}

type Postgres struct {
	Host     string `validate:"required,hostname|ip"`
	Port     int    `validate:"required,gt=0,lte=65535"`
	DBName   string `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`

	SSLMode string `validate:"required,oneof=disable require verify-ca verify-full"`

	MaxOpenConns    int           `validate:"gte=1"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`

	MigrationsPath string `validate:"required"`
}

type Redis struct {
	Addr     string `validate:"required,hostname_port"`
	Password string
	DB       int `validate:"gte=0"`
}

// Idempotency holds the gate's two TTLs: how long a claimed-but-unfinished
// key blocks concurrent delivery, and how long a completed key suppresses
// redelivery once the order is PROCESSED.
type Idempotency struct {
	ProcessingTTL time.Duration `validate:"required,gt=0"`
	ProcessedTTL  time.Duration `validate:"required,gt=0"`
}

// Retry mirrors the source's ExponentialBackOffWithMaxRetries: an
// initial delay, a multiplier, a ceiling, and a hard attempt cap.
type Retry struct {
	MaxAttempts     int           `validate:"required,gte=1"`
	InitialInterval time.Duration `validate:"required,gt=0"`
	Multiplier      float64       `validate:"required,gt=1"`
	MaxInterval     time.Duration `validate:"required,gt=0"`
}

type Cache struct {
	Capacity int           `validate:"gte=1"`
	TTL      time.Duration `validate:"gt=0"`
}

type CORS struct {
	AllowedOrigins []string `validate:"required,min=1,dive,url"`
}

func New() Config {
	return Config{
		Env: env("ENV", "development"),

		Http: Http{
			Host: env("HOST", "localhost"),
			Port: env("PORT", "8080"),
		},

		Cors: CORS{
			AllowedOrigins: strings.Split(env("ALLOWED_CORS_ORIGINS", "http://localhost:3000"), ","),
		},

		Kafka: Kafka{
			GroupID:        env("KAFKA_GROUP_ID", "order-ingestion"),
			Brokers:        strings.Split(env("KAFKA_BROKERS", "localhost:9092"), ","),
			ReceivedTopic:  env("KAFKA_RECEIVED_TOPIC", "orders"),
			DLTTopic:       env("KAFKA_DLT_TOPIC", "orders-dlt"),
			ProcessedTopic: env("KAFKA_PROCESSED_TOPIC", "orders-processed"),

			ReaderMaxWait: envDuration("KAFKA_READER_MAX_WAIT", 10*time.Millisecond),
			BatchTimeout:  envDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
		},

		Postgres: Postgres{
			Port:     envInt("POSTGRES_PORT", 5432),
			Host:     env("POSTGRES_HOST", "localhost"),
			DBName:   env("POSTGRES_DB", "orders"),
			User:     env("POSTGRES_USER", ""),
			Password: env("POSTGRES_PASSWORD", ""),

			SSLMode: env("POSTGRES_SSL_MODE", "disable"),

			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),

			MigrationsPath: env("POSTGRES_MIGRATIONS_PATH", "migrations"),
		},

		Redis: Redis{
			Addr:     env("REDIS_ADDR", "localhost:6379"),
			Password: env("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},

		Idempotency: Idempotency{
			ProcessingTTL: envDuration("IDEMPOTENCY_PROCESSING_TTL", time.Hour),
			ProcessedTTL:  envDuration("IDEMPOTENCY_PROCESSED_TTL", 24*time.Hour),
		},

		Retry: Retry{
			MaxAttempts:     envInt("RETRY_MAX_ATTEMPTS", 3),
			InitialInterval: envDuration("RETRY_INITIAL_INTERVAL", time.Second),
			Multiplier:      envFloat("RETRY_MULTIPLIER", 2.0),
			MaxInterval:     envDuration("RETRY_MAX_INTERVAL", 5*time.Second),
		},

		Cache: Cache{
			Capacity: envInt("CACHE_CAPACITY", 1000),
			TTL:      envDuration("CACHE_TTL", 10*time.Minute),
		},
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func env(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if len(fallback) == 0 {
		return ""
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}
