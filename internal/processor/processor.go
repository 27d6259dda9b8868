// Package processor implements the order-processing state machine
// (component C): RECEIVED -> PROCESSING -> PROCESSED, total computation,
// and transactional persistence, with a deferred side effect the caller
// must drain only after the transaction has committed.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/internal/metrics"
	"github.com/mouts/order-ingestion/internal/repo"
	"github.com/mouts/order-ingestion/pkg/trm"
)

// ErrInvalidRequest means the inbound request failed validation
// (empty items, blank productId, quantity < 1, price < 0.01). Never
// retried.
var ErrInvalidRequest = errors.New("invalid order request")

// PendingSideEffect is appended once an order has been saved inside the
// ambient transaction. The caller (internal/consumer) must invoke it
// only after the transaction returned by Process has committed — never
// before, and never if the transaction rolled back.
type PendingSideEffect func(ctx context.Context) error

type Repository interface {
	SaveNew(ctx context.Context, order domain.Order) error
}

type Processor struct {
	logger    *slog.Logger
	txManager trm.Manager
	repo      Repository
	validate  *validator.Validate
	publish   func(ctx context.Context, order domain.Order) error
}

func New(logger *slog.Logger, txManager trm.Manager, repo Repository, publish func(ctx context.Context, order domain.Order) error) *Processor {
	validate := validator.New()
	// decimal.Decimal has no numeric kind reflect can compare directly, so
	// "gte"/"required" need a custom type func to unwrap it for validator's
	// built-in numeric comparators. The resulting float64 never leaves this
	// comparison: the request, order, and persisted rows stay decimal.Decimal.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &Processor{
		logger:    logger.With(slog.String("component", "processor")),
		txManager: txManager,
		repo:      repo,
		validate:  validate,
		publish:   publish,
	}
}

// Process runs the full RECEIVED -> PROCESSING -> PROCESSED state
// machine for a single request, inside one ambient transaction. On
// success it returns the persisted order and a PendingSideEffect the
// caller must drain after commit (never during).
func (p *Processor) Process(ctx context.Context, req domain.OrderRequest, idempotencyKey string) (domain.Order, PendingSideEffect, error) {
	start := time.Now()
	defer func() {
		metrics.ProcessorDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.validate.Struct(req); err != nil {
		metrics.ProcessorAttempts.WithLabelValues("invalid").Inc()
		return domain.Order{}, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	order := domain.Order{
		ID:             uuid.New(),
		IdempotencyKey: idempotencyKey,
		Status:         domain.StatusReceived,
		Items:          make([]domain.OrderItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        uuid.New(),
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.Round(2),
		})
	}

	order.Status = domain.StatusProcessing
	p.logger.DebugContext(ctx, "order moved to processing", slog.String("idempotency_key", idempotencyKey))

	order.Total = domain.ComputeTotal(order.Items)

	order.Status = domain.StatusProcessed
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now

	err := p.txManager.Do(ctx, func(ctx context.Context) error {
		if saveErr := p.repo.SaveNew(ctx, order); saveErr != nil {
			if errors.Is(saveErr, repo.ErrDuplicateKey) {
				return saveErr
			}
			return fmt.Errorf("save order: %w", saveErr)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			metrics.ProcessorAttempts.WithLabelValues("duplicate").Inc()
		} else {
			metrics.ProcessorAttempts.WithLabelValues("error").Inc()
		}
		return domain.Order{}, nil, err
	}
	metrics.ProcessorAttempts.WithLabelValues("success").Inc()

	p.logger.InfoContext(ctx, "order processed",
		slog.String("order_id", order.ID.String()),
		slog.String("idempotency_key", idempotencyKey),
		slog.String("total", order.Total.String()),
	)

	sideEffect := func(ctx context.Context) error {
		return p.publish(ctx, order)
	}
	return order, sideEffect, nil
}
