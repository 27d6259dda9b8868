package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mouts/order-ingestion/internal/domain"
)

type orderItemJSON struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type orderJSON struct {
	OrderID        string          `json:"orderId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Status         string          `json:"status"`
	Total          decimal.Decimal `json:"total"`
	Items          []orderItemJSON `json:"items"`
	FailureReason  *string         `json:"failureReason,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toOrderJSON(o domain.Order) orderJSON {
	items := make([]orderItemJSON, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemJSON{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return orderJSON{
		OrderID:        o.ID.String(),
		IdempotencyKey: o.IdempotencyKey,
		Status:         string(o.Status),
		Total:          o.Total,
		Items:          items,
		FailureReason:  o.FailureReason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// fromOrderJSON reconstructs a domain.Order from a cached read-side
// projection. It is only ever used to serve cache hits back out, never
// persisted, so item IDs are not round-tripped.
func fromOrderJSON(j orderJSON) domain.Order {
	id, _ := uuid.Parse(j.OrderID)
	items := make([]domain.OrderItem, 0, len(j.Items))
	for _, it := range j.Items {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return domain.Order{
		ID:             id,
		IdempotencyKey: j.IdempotencyKey,
		Status:         domain.OrderStatus(j.Status),
		Total:          j.Total,
		Items:          items,
		FailureReason:  j.FailureReason,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}
