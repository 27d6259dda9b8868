package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/internal/metrics"
	"github.com/mouts/order-ingestion/internal/repo"
)

const unknownDLTFailureReason = "Unknown DLT Failure"

// orderRepository is the subset of *repo.PostgresRepo the reconciler
// needs, narrowed the same way idempotencyGate and orderProcessor are
// in ingest.go so tests don't need a live Postgres connection.
type orderRepository interface {
	FindByIdempotencyKey(ctx context.Context, key string) (domain.Order, error)
	MarkFailed(ctx context.Context, orderID uuid.UUID, reason string, expectedVersion int64) error
	SaveNew(ctx context.Context, order domain.Order) error
}

// DLTConsumer reconciles records that the primary ingest pipeline gave
// up on, recording a terminal FAILED order so the system never leaves
// an order silently unaccounted for (component E, spec §4.6). It never
// retries: this is the last stop.
type DLTConsumer struct {
	logger *slog.Logger
	reader messageFetcher
	repo   orderRepository
}

func NewDLTConsumer(logger *slog.Logger, reader *kafka.Reader, repo *repo.PostgresRepo) *DLTConsumer {
	return &DLTConsumer{
		logger: logger.With(slog.String("component", "dlt_consumer")),
		reader: reader,
		repo:   repo,
	}
}

func (c *DLTConsumer) Close() error {
	return c.reader.Close()
}

// Run consumes the dead-letter topic until ctx is cancelled. A panic
// while reconciling one record is recovered so it can't take down the
// whole reconciler; the offset is committed regardless since replaying
// a DLT record indefinitely serves no purpose.
func (c *DLTConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch DLT message", slog.Any("error", err))
			continue
		}

		c.handleSafely(ctx, m)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.ErrorContext(ctx, "failed to commit DLT message", slog.Any("error", err))
		}
	}
}

func (c *DLTConsumer) handleSafely(ctx context.Context, m kafka.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "recovered from panic while reconciling DLT record", slog.Any("panic", r))
		}
	}()
	c.handle(ctx, m)
}

func (c *DLTConsumer) handle(ctx context.Context, m kafka.Message) {
	idempotencyKey, ok := headerValue(m.Headers, idempotencyKeyHeader)
	if !ok || idempotencyKey == "" {
		metrics.DLTReconciled.WithLabelValues("missing_idempotency_key").Inc()
		c.logger.ErrorContext(ctx, "DLT record missing idempotency key header, cannot reconcile, skipping")
		return
	}

	logger := c.logger.With(slog.String("idempotency_key", idempotencyKey))
	reason := failureReason(m.Headers)

	var req domain.OrderRequest
	decodeErr := json.Unmarshal(m.Value, &req)

	existing, err := c.repo.FindByIdempotencyKey(ctx, idempotencyKey)
	switch {
	case err == nil:
		c.reconcileExisting(ctx, logger, existing, reason)
	case errors.Is(err, repo.ErrNotFound):
		c.reconcileMissing(ctx, logger, idempotencyKey, req, decodeErr, reason)
	default:
		logger.ErrorContext(ctx, "failed to look up order for DLT reconciliation", slog.Any("error", err))
	}
}

func (c *DLTConsumer) reconcileExisting(ctx context.Context, logger *slog.Logger, existing domain.Order, reason string) {
	if existing.Status.Terminal() {
		metrics.DLTReconciled.WithLabelValues("already_terminal").Inc()
		logger.InfoContext(ctx, "order already in terminal state, nothing to reconcile",
			slog.String("status", string(existing.Status)))
		return
	}

	if err := c.repo.MarkFailed(ctx, existing.ID, reason, existing.Version); err != nil {
		metrics.DLTReconciled.WithLabelValues("mark_failed_error").Inc()
		logger.ErrorContext(ctx, "failed to mark existing order failed", slog.Any("error", err))
		return
	}
	metrics.DLTReconciled.WithLabelValues("marked_failed").Inc()
	logger.InfoContext(ctx, "marked existing order failed from DLT", slog.String("order_id", existing.ID.String()))
}

func (c *DLTConsumer) reconcileMissing(ctx context.Context, logger *slog.Logger, idempotencyKey string, req domain.OrderRequest, decodeErr error, reason string) {
	if decodeErr != nil {
		metrics.DLTReconciled.WithLabelValues("undecodable").Inc()
		logger.ErrorContext(ctx, "DLT record payload undecodable and no existing order found, cannot reconcile",
			slog.Any("decode_error", decodeErr))
		return
	}

	order := domain.Order{
		ID:             uuid.New(),
		IdempotencyKey: idempotencyKey,
		Status:         domain.StatusFailed,
		Total:          decimal.Zero,
		FailureReason:  &reason,
	}
	for _, it := range req.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        uuid.New(),
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.Round(2),
		})
	}

	if err := c.repo.SaveNew(ctx, order); err != nil {
		metrics.DLTReconciled.WithLabelValues("save_error").Inc()
		logger.ErrorContext(ctx, "failed to persist synthetic failed order from DLT", slog.Any("error", err))
		return
	}
	metrics.DLTReconciled.WithLabelValues("synthesized_failed").Inc()
	logger.InfoContext(ctx, "persisted synthetic failed order from DLT", slog.String("order_id", order.ID.String()))
}

// failureReason prefers the human-readable exception message header,
// falling back to the exception class, then a fixed placeholder.
func failureReason(headers []kafka.Header) string {
	if msg, ok := headerValue(headers, exceptionMessageHeader); ok && msg != "" {
		return msg
	}
	if class, ok := headerValue(headers, exceptionClassHeader); ok && class != "" {
		return class
	}
	return unknownDLTFailureReason
}
