package processor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/internal/processor"
	"github.com/mouts/order-ingestion/internal/repo"
	"github.com/mouts/order-ingestion/pkg/trm"
)

type stubTxManager struct{}

func (stubTxManager) BeginTx(ctx context.Context) (context.Context, trm.Transaction, error) {
	panic("not used by these tests")
}

func (stubTxManager) Do(ctx context.Context, callback func(ctx context.Context) error) error {
	return callback(ctx)
}

type stubRepo struct {
	saveErrs []error
	saved    []domain.Order
}

func (s *stubRepo) SaveNew(ctx context.Context, order domain.Order) error {
	var err error
	if len(s.saveErrs) > 0 {
		err, s.saveErrs = s.saveErrs[0], s.saveErrs[1:]
	}
	if err == nil {
		s.saved = append(s.saved, order)
	}
	return err
}

func newProcessor(r *stubRepo, publish func(context.Context, domain.Order) error) *processor.Processor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if publish == nil {
		publish = func(context.Context, domain.Order) error { return nil }
	}
	return processor.New(logger, stubTxManager{}, r, publish)
}

func validRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Items: []domain.OrderItemRequest{
			{ProductID: "P1", Quantity: 2, Price: decimal.NewFromFloat(10.00)},
			{ProductID: "P2", Quantity: 1, Price: decimal.NewFromFloat(5.25)},
		},
	}
}

func TestProcess_HappyPath_TotalCorrectness(t *testing.T) {
	r := &stubRepo{}
	p := newProcessor(r, nil)

	order, sideEffect, err := p.Process(context.Background(), validRequest(), "K1")
	require.NoError(t, err)
	require.NotNil(t, sideEffect)

	assert.Equal(t, domain.StatusProcessed, order.Status)
	assert.True(t, decimal.RequireFromString("25.25").Equal(order.Total), "got total %s", order.Total)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, "K1", order.IdempotencyKey)
	require.Len(t, r.saved, 1)
	assert.Equal(t, domain.StatusProcessed, r.saved[0].Status)
}

func TestProcess_SideEffectOnlyRunsWhenCalled(t *testing.T) {
	published := false
	r := &stubRepo{}
	p := newProcessor(r, func(context.Context, domain.Order) error {
		published = true
		return nil
	})

	_, sideEffect, err := p.Process(context.Background(), validRequest(), "K2")
	require.NoError(t, err)
	assert.False(t, published, "publish must not fire before the caller drains the side effect")

	require.NoError(t, sideEffect(context.Background()))
	assert.True(t, published)
}

func TestProcess_InvalidRequest_NoPartialPersistence(t *testing.T) {
	r := &stubRepo{}
	p := newProcessor(r, nil)

	_, _, err := p.Process(context.Background(), domain.OrderRequest{Items: nil}, "K3")
	assert.ErrorIs(t, err, processor.ErrInvalidRequest)
	assert.Empty(t, r.saved)
}

func TestProcess_InvalidItem_QuantityBelowOne(t *testing.T) {
	r := &stubRepo{}
	p := newProcessor(r, nil)

	req := domain.OrderRequest{Items: []domain.OrderItemRequest{{ProductID: "P1", Quantity: 0, Price: decimal.NewFromFloat(1.00)}}}
	_, _, err := p.Process(context.Background(), req, "K4")
	assert.ErrorIs(t, err, processor.ErrInvalidRequest)
	assert.Empty(t, r.saved)
}

func TestProcess_DuplicateKey_PropagatesNonRetryable(t *testing.T) {
	r := &stubRepo{saveErrs: []error{repo.ErrDuplicateKey}}
	p := newProcessor(r, nil)

	_, _, err := p.Process(context.Background(), validRequest(), "K5")
	assert.ErrorIs(t, err, repo.ErrDuplicateKey)
}

func TestProcess_TransientSaveFailure_NoPartialPersistence(t *testing.T) {
	boom := errors.New("connection reset")
	r := &stubRepo{saveErrs: []error{boom}}
	p := newProcessor(r, nil)

	_, _, err := p.Process(context.Background(), validRequest(), "K6")
	require.Error(t, err)
	assert.Empty(t, r.saved)
}
