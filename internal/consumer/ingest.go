package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/internal/idempotency"
	"github.com/mouts/order-ingestion/internal/metrics"
	"github.com/mouts/order-ingestion/internal/processor"
	"github.com/mouts/order-ingestion/pkg/backoff"
)

// RetryConfig mirrors spec §6's retry.* configuration knobs.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

func (c RetryConfig) toBackoff() backoff.Config {
	return backoff.Config{
		MaxAttempts:  c.MaxAttempts,
		InitialDelay: c.InitialInterval,
		Multiplier:   c.Multiplier,
		MaxDelay:     c.MaxInterval,
	}
}

// idempotencyGate is the subset of *idempotency.Gate the consumer needs.
// Narrowing it lets tests substitute a fake without touching Redis.
type idempotencyGate interface {
	TryClaim(ctx context.Context, idempotencyKey string) (idempotency.ClaimResult, error)
	MarkCompleted(ctx context.Context, idempotencyKey string) error
}

// orderProcessor is the subset of *processor.Processor the consumer
// needs, narrowed for the same reason as idempotencyGate.
type orderProcessor interface {
	Process(ctx context.Context, req domain.OrderRequest, idempotencyKey string) (domain.Order, processor.PendingSideEffect, error)
}

// dltWriter is the subset of *kafka.Writer the consumer needs to route
// a poison record to the dead-letter topic.
type dltWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageFetcher is the subset of *kafka.Reader the consumer needs to
// drive its fetch/commit loop.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// IngestConsumer drives the primary stream: gate -> processor -> (commit
// completed / publish) with an in-process retry budget, routing to the
// DLT on exhaustion (component D).
type IngestConsumer struct {
	logger    *slog.Logger
	reader    messageFetcher
	dlt       dltWriter
	gate      idempotencyGate
	processor orderProcessor
	retry     RetryConfig
}

func NewIngestConsumer(logger *slog.Logger, reader *kafka.Reader, dlt *kafka.Writer, gate *idempotency.Gate, proc *processor.Processor, retry RetryConfig) *IngestConsumer {
	return &IngestConsumer{
		logger:    logger.With(slog.String("component", "ingest_consumer")),
		reader:    reader,
		dlt:       dlt,
		gate:      gate,
		processor: proc,
		retry:     retry,
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *IngestConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch message", slog.Any("error", err))
			continue
		}

		// handle returns false when the gate stayed unavailable through the
		// retry budget. The record is then handled again, uncommitted and
		// before anything later is fetched, until the store recovers:
		// committing a later offset would otherwise commit past it. It is
		// never dead-lettered, since it was never classified.
		for !c.handle(ctx, m) {
			if ctx.Err() != nil {
				return nil
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.ErrorContext(ctx, "failed to commit message", slog.Any("error", err))
		}
	}
}

func (c *IngestConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return err
	}
	return c.dlt.Close()
}

// handle processes one record and reports whether the caller should
// commit its offset. It only returns false when the idempotency gate
// stayed unavailable through the whole retry budget — every other path
// (skip, success, or DLT) is a final disposition and commits.
func (c *IngestConsumer) handle(ctx context.Context, m kafka.Message) bool {
	idempotencyKey, ok := headerValue(m.Headers, idempotencyKeyHeader)
	if !ok || idempotencyKey == "" {
		c.logger.ErrorContext(ctx, "message missing idempotency key header, routing to DLT")
		c.writeToDLT(ctx, m, ErrMissingIdempotencyKey)
		return true
	}

	logger := c.logger.With(slog.String("idempotency_key", idempotencyKey))

	claim, err := c.claimWithRetry(ctx, idempotencyKey)
	if err != nil {
		// KV unavailability is transient infra, not a poison record: the
		// message is redelivered rather than dead-lettered (spec §4.1, §7).
		logger.ErrorContext(ctx, "idempotency gate unavailable after exhausting retry budget, leaving uncommitted for redelivery", slog.Any("error", err))
		return false
	}

	switch claim {
	case idempotency.AlreadyProcessed:
		logger.InfoContext(ctx, "order already processed, skipping")
		return true
	case idempotency.AlreadyProcessing:
		logger.WarnContext(ctx, "order already being processed by another worker, skipping")
		return true
	case idempotency.Unknown:
		logger.ErrorContext(ctx, "unexpected idempotency key state, skipping without retry")
		return true
	}

	var req domain.OrderRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		logger.ErrorContext(ctx, "failed to unmarshal order request, routing to DLT", slog.Any("error", err))
		c.writeToDLT(ctx, m, err)
		return true
	}

	order, sideEffect, err := c.retryProcess(ctx, logger, req, idempotencyKey)
	if err != nil {
		logger.ErrorContext(ctx, "order processing failed permanently, routing to DLT", slog.Any("error", err))
		c.writeToDLT(ctx, m, err)
		return true
	}

	if err := c.gate.MarkCompleted(ctx, idempotencyKey); err != nil {
		logger.ErrorContext(ctx, "failed to mark idempotency key completed", slog.Any("error", err))
	}

	if err := sideEffect(ctx); err != nil {
		logger.ErrorContext(ctx, "deferred completion publish failed", slog.Any("error", err), slog.String("order_id", order.ID.String()))
	}
	return true
}

// claimWithRetry retries a gate error (Redis unavailable) within the
// same attempt budget as processing itself, instead of failing the
// delivery outright.
func (c *IngestConsumer) claimWithRetry(ctx context.Context, idempotencyKey string) (idempotency.ClaimResult, error) {
	var claim idempotency.ClaimResult
	err := backoff.Retry(ctx, c.retry.toBackoff(), nil, func() error {
		var err error
		claim, err = c.gate.TryClaim(ctx, idempotencyKey)
		return err
	})
	return claim, err
}

// retryProcess invokes the processor up to retry.MaxAttempts times with
// exponential backoff, stopping early on a non-retryable classification.
func (c *IngestConsumer) retryProcess(ctx context.Context, logger *slog.Logger, req domain.OrderRequest, idempotencyKey string) (domain.Order, processor.PendingSideEffect, error) {
	var (
		order      domain.Order
		sideEffect processor.PendingSideEffect
		attempt    int
	)

	err := backoff.Retry(ctx, c.retry.toBackoff(), retryable, func() error {
		attempt++
		var procErr error
		order, sideEffect, procErr = c.processor.Process(ctx, req, idempotencyKey)
		if procErr != nil {
			logger.WarnContext(ctx, "processor attempt failed",
				slog.Int("attempt", attempt), slog.Any("error", procErr))
		}
		return procErr
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, sideEffect, nil
}

// writeToDLT produces the original record, augmented with diagnostic
// exception headers, to the dead-letter topic. The original offset is
// always committed by the caller regardless of this write's outcome —
// retrying a DLT write indefinitely would just move the poison pill.
func (c *IngestConsumer) writeToDLT(ctx context.Context, m kafka.Message, cause error) {
	headers := append([]kafka.Header{}, m.Headers...)
	headers = setHeader(headers, exceptionClassHeader, fmt.Sprintf("%T", cause))
	headers = setHeader(headers, exceptionMessageHeader, cause.Error())

	dltMsg := kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
	}

	if err := c.dlt.WriteMessages(ctx, dltMsg); err != nil {
		c.logger.ErrorContext(ctx, "failed to write message to DLT", slog.Any("error", err))
		return
	}
	metrics.DLTRouted.WithLabelValues(fmt.Sprintf("%T", cause)).Inc()
}
