// Package publisher sends the completion event to the processed-orders
// topic strictly after the owning transaction has committed. It never
// rolls anything back on send failure — the database remains the
// durable state of record (spec §4.5, §9 "Completion-publish gap").
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/mouts/order-ingestion/internal/domain"
)

// dateTimeLayout matches the source's LocalDateTime wire format: no zone
// offset, since the event carries no timezone of its own.
const dateTimeLayout = "2006-01-02T15:04:05"

func init() {
	// Marshal decimal.Decimal as a bare JSON number instead of the
	// package's default quoted-string encoding, matching the numeric
	// "total"/"price" fields the wire format expects.
	decimal.MarshalJSONWithoutQuotes = true
}

type orderItemEvent struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type orderProcessedEvent struct {
	OrderID     string           `json:"orderId"`
	Status      string           `json:"status"`
	Total       decimal.Decimal  `json:"total"`
	ProcessedAt string           `json:"processedAt"`
	Items       []orderItemEvent `json:"items"`
}

type Publisher struct {
	logger *slog.Logger
	writer *kafka.Writer
}

func New(logger *slog.Logger, writer *kafka.Writer) *Publisher {
	return &Publisher{
		logger: logger.With(slog.String("component", "publisher")),
		writer: writer,
	}
}

// Publish writes exactly one completion event keyed by orderId. A send
// failure is logged here and also returned to the caller; nothing is
// rolled back, since the transaction has already committed. A marshal
// failure is logged and nil is returned.
func (p *Publisher) Publish(ctx context.Context, order domain.Order) error {
	items := make([]orderItemEvent, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, orderItemEvent{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	event := orderProcessedEvent{
		OrderID:     order.ID.String(),
		Status:      string(order.Status),
		Total:       order.Total,
		ProcessedAt: order.UpdatedAt.Format(dateTimeLayout),
		Items:       items,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal completion event", slog.Any("error", err), slog.String("order_id", event.OrderID))
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish completion event",
			slog.Any("error", err), slog.String("order_id", event.OrderID))
		return fmt.Errorf("publish completion event: %w", err)
	}

	p.logger.InfoContext(ctx, "published completion event", slog.String("order_id", event.OrderID))
	return nil
}
