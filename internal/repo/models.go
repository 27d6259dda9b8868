package repo

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mouts/order-ingestion/internal/domain"
)

type orderRow struct {
	ID             uuid.UUID       `db:"id"`
	IdempotencyKey string          `db:"idempotency_key"`
	Status         string          `db:"status"`
	Total          decimal.Decimal `db:"total"`
	FailureReason  sql.NullString  `db:"failure_reason"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	Version        int64           `db:"version"`
}

type itemRow struct {
	ID        uuid.UUID       `db:"id"`
	OrderID   uuid.UUID       `db:"order_id"`
	ProductID string          `db:"product_id"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
}

func toDomainOrder(o orderRow, items []itemRow) domain.Order {
	order := domain.Order{
		ID:             o.ID,
		IdempotencyKey: o.IdempotencyKey,
		Status:         domain.OrderStatus(o.Status),
		Total:          o.Total,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Version:        o.Version,
	}
	if o.FailureReason.Valid {
		reason := o.FailureReason.String
		order.FailureReason = &reason
	}
	if len(items) > 0 {
		order.Items = make([]domain.OrderItem, 0, len(items))
		for _, it := range items {
			order.Items = append(order.Items, domain.OrderItem{
				ID:        it.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     it.Price,
			})
		}
	}
	return order
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
