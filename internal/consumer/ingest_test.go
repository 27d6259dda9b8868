package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/internal/idempotency"
	"github.com/mouts/order-ingestion/internal/processor"
)

type fakeGate struct {
	claimResult     idempotency.ClaimResult
	claimErrs       []error
	claimCalls      int
	markCompleted   int
	markCompleteErr error
}

func (g *fakeGate) TryClaim(ctx context.Context, idempotencyKey string) (idempotency.ClaimResult, error) {
	var err error
	if g.claimCalls < len(g.claimErrs) {
		err = g.claimErrs[g.claimCalls]
	}
	g.claimCalls++
	return g.claimResult, err
}

func (g *fakeGate) MarkCompleted(ctx context.Context, idempotencyKey string) error {
	g.markCompleted++
	return g.markCompleteErr
}

type fakeProcessor struct {
	errsPerCall []error
	calls       int
	published   int
}

func (p *fakeProcessor) Process(ctx context.Context, req domain.OrderRequest, idempotencyKey string) (domain.Order, processor.PendingSideEffect, error) {
	var err error
	if p.calls < len(p.errsPerCall) {
		err = p.errsPerCall[p.calls]
	}
	p.calls++
	if err != nil {
		return domain.Order{}, nil, err
	}
	order := domain.Order{ID: [16]byte{}, IdempotencyKey: idempotencyKey, Status: domain.StatusProcessed}
	return order, func(context.Context) error {
		p.published++
		return nil
	}, nil
}

type fakeDLTWriter struct {
	written []kafka.Message
}

func (w *fakeDLTWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeDLTWriter) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func messageWithKey(key string) kafka.Message {
	return kafka.Message{
		Value:   []byte(`{"items":[{"productId":"P1","quantity":1,"price":1.0}]}`),
		Headers: []kafka.Header{{Key: idempotencyKeyHeader, Value: []byte(key)}},
	}
}

func newTestConsumer(gate idempotencyGate, proc orderProcessor, dlt dltWriter) *IngestConsumer {
	return &IngestConsumer{
		logger:    testLogger(),
		dlt:       dlt,
		gate:      gate,
		processor: proc,
		retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			Multiplier:      2.0,
			MaxInterval:     10 * time.Millisecond,
		},
	}
}

func TestHandle_MissingIdempotencyKeyHeader_RoutesToDLTWithoutProcessing(t *testing.T) {
	gate := &fakeGate{}
	proc := &fakeProcessor{}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	c.handle(context.Background(), kafka.Message{Value: []byte(`{}`)})

	assert.Equal(t, 0, proc.calls)
	require.Len(t, dlt.written, 1)
	cls, ok := headerValue(dlt.written[0].Headers, exceptionClassHeader)
	require.True(t, ok)
	assert.Contains(t, cls, "errorString")
}

func TestHandle_AlreadyProcessed_SkipsWithoutProcessingOrDLT(t *testing.T) {
	gate := &fakeGate{claimResult: idempotency.AlreadyProcessed}
	proc := &fakeProcessor{}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	c.handle(context.Background(), messageWithKey("K1"))

	assert.Equal(t, 0, proc.calls)
	assert.Empty(t, dlt.written)
}

func TestHandle_AlreadyProcessing_SkipsWithoutProcessingOrDLT(t *testing.T) {
	gate := &fakeGate{claimResult: idempotency.AlreadyProcessing}
	proc := &fakeProcessor{}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	c.handle(context.Background(), messageWithKey("K2"))

	assert.Equal(t, 0, proc.calls)
	assert.Empty(t, dlt.written)
}

func TestHandle_Claimed_SuccessOnFirstAttempt_MarksCompletedAndPublishes(t *testing.T) {
	gate := &fakeGate{claimResult: idempotency.Claimed}
	proc := &fakeProcessor{}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	c.handle(context.Background(), messageWithKey("K3"))

	assert.Equal(t, 1, proc.calls)
	assert.Equal(t, 1, proc.published)
	assert.Equal(t, 1, gate.markCompleted)
	assert.Empty(t, dlt.written)
}

func TestHandle_Claimed_TransientFailureThenSuccess_RetriesWithinBudget(t *testing.T) {
	gate := &fakeGate{claimResult: idempotency.Claimed}
	proc := &fakeProcessor{errsPerCall: []error{errors.New("connection reset"), errors.New("connection reset")}}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	c.handle(context.Background(), messageWithKey("K4"))

	assert.Equal(t, 3, proc.calls)
	assert.Equal(t, 1, proc.published)
	assert.Empty(t, dlt.written)
}

func TestHandle_Claimed_ExhaustsRetryBudget_RoutesToDLTWithExceptionHeaders(t *testing.T) {
	gate := &fakeGate{claimResult: idempotency.Claimed}
	boom := errors.New("downstream unavailable")
	proc := &fakeProcessor{errsPerCall: []error{boom, boom, boom}}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	c.handle(context.Background(), messageWithKey("K5"))

	assert.Equal(t, 3, proc.calls)
	assert.Equal(t, 0, gate.markCompleted)
	require.Len(t, dlt.written, 1)
	msg, ok := headerValue(dlt.written[0].Headers, exceptionMessageHeader)
	require.True(t, ok)
	assert.Equal(t, boom.Error(), msg)
}

func TestHandle_Claimed_NonRetryableFailure_SkipsRemainingAttempts(t *testing.T) {
	gate := &fakeGate{claimResult: idempotency.Claimed}
	proc := &fakeProcessor{errsPerCall: []error{processor.ErrInvalidRequest}}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	c.handle(context.Background(), messageWithKey("K6"))

	assert.Equal(t, 1, proc.calls)
	require.Len(t, dlt.written, 1)
}

func TestHandle_UndecodablePayload_RoutesToDLTWithoutClaimingProcessor(t *testing.T) {
	gate := &fakeGate{claimResult: idempotency.Claimed}
	proc := &fakeProcessor{}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	msg := kafka.Message{
		Value:   []byte(`not json`),
		Headers: []kafka.Header{{Key: idempotencyKeyHeader, Value: []byte("K7")}},
	}
	c.handle(context.Background(), msg)

	assert.Equal(t, 0, proc.calls)
	require.Len(t, dlt.written, 1)
}

func TestHandle_GateUnavailable_RetriesWithinBudgetThenLeavesUncommitted(t *testing.T) {
	boom := errors.New("redis down")
	gate := &fakeGate{claimErrs: []error{boom, boom, boom}}
	proc := &fakeProcessor{}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	commit := c.handle(context.Background(), messageWithKey("K8"))

	assert.False(t, commit, "a gate error must never be treated as a final disposition")
	assert.Equal(t, 3, gate.claimCalls)
	assert.Equal(t, 0, proc.calls)
	assert.Empty(t, dlt.written, "gate unavailability is transient infra, never a DLT reason")
}

func TestHandle_GateTransientThenRecovers_ClaimsWithinBudget(t *testing.T) {
	boom := errors.New("redis timeout")
	gate := &fakeGate{claimResult: idempotency.Claimed, claimErrs: []error{boom, boom}}
	proc := &fakeProcessor{}
	dlt := &fakeDLTWriter{}
	c := newTestConsumer(gate, proc, dlt)

	commit := c.handle(context.Background(), messageWithKey("K9"))

	assert.True(t, commit)
	assert.Equal(t, 3, gate.claimCalls)
	assert.Equal(t, 1, proc.calls)
	assert.Equal(t, 1, gate.markCompleted)
	assert.Empty(t, dlt.written)
}
