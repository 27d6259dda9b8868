package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/mouts/order-ingestion/internal/app"
	"github.com/mouts/order-ingestion/internal/config"
	"github.com/mouts/order-ingestion/internal/consumer"
	"github.com/mouts/order-ingestion/internal/httpapi"
	"github.com/mouts/order-ingestion/internal/idempotency"
	"github.com/mouts/order-ingestion/internal/postgres"
	"github.com/mouts/order-ingestion/internal/processor"
	"github.com/mouts/order-ingestion/internal/publisher"
	"github.com/mouts/order-ingestion/internal/repo"
	"github.com/mouts/order-ingestion/pkg/cache"
	"github.com/mouts/order-ingestion/pkg/trm"
)

func main() {
	conf := config.New()
	logger := newLogger(conf.Env)
	panicIfErr("invalid config", conf.Validate())

	db, err := postgres.New(conf.Postgres)
	panicIfErr("failed to connect to db", err)
	defer db.Close()
	logger.Info("postgres connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	defer redisClient.Close()

	orderRepo := repo.NewPostgresRepo(db)
	txManager := trm.NewManager(db)
	gate := idempotency.NewGate(redisClient, conf.Idempotency.ProcessingTTL, conf.Idempotency.ProcessedTTL)

	completionWriter := &kafka.Writer{
		Addr:     kafka.TCP(conf.Kafka.Brokers...),
		Topic:    conf.Kafka.ProcessedTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer completionWriter.Close()
	pub := publisher.New(logger, completionWriter)

	proc := processor.New(logger, txManager, orderRepo, pub.Publish)

	ingestReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  conf.Kafka.Brokers,
		Topic:    conf.Kafka.ReceivedTopic,
		GroupID:  conf.Kafka.GroupID,
		MaxWait:  conf.Kafka.ReaderMaxWait,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	dltWriter := &kafka.Writer{
		Addr:         kafka.TCP(conf.Kafka.Brokers...),
		Topic:        conf.Kafka.DLTTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: conf.Kafka.BatchTimeout,
	}
	ingestConsumer := consumer.NewIngestConsumer(logger, ingestReader, dltWriter, gate, proc, consumer.RetryConfig{
		MaxAttempts:     conf.Retry.MaxAttempts,
		InitialInterval: conf.Retry.InitialInterval,
		Multiplier:      conf.Retry.Multiplier,
		MaxInterval:     conf.Retry.MaxInterval,
	})

	dltReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  conf.Kafka.Brokers,
		Topic:    conf.Kafka.DLTTopic,
		GroupID:  conf.Kafka.GroupID + "-dlt",
		MaxWait:  conf.Kafka.ReaderMaxWait,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	dltConsumer := consumer.NewDLTConsumer(logger, dltReader, orderRepo)

	lruCache := cache.NewLRUCache(conf.Cache.Capacity, conf.Cache.TTL)
	httpHandler := httpapi.NewHandler(logger, orderRepo, lruCache)

	application := app.New(logger, conf)
	application.SetHTTPHandlers(httpHandler)
	application.SetConsumers(ingestConsumer, dltConsumer)
	application.SetStarters(cacheJanitorAdapter{cache: lruCache})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	panicIfErr("failed to start app", application.Start(ctx))
	<-ctx.Done()
	panicIfErr("failed to stop app", application.Stop())
}

func init() {
	godotenv.Load()
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func panicIfErr(prefix string, err error) {
	if err != nil {
		panic(prefix + ": " + err.Error())
	}
}

type cacheJanitorAdapter struct {
	cache *cache.LRUCache
}

func (a cacheJanitorAdapter) Start(ctx context.Context) error {
	a.cache.StartJanitor(ctx)
	return nil
}
