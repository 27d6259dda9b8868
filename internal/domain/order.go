package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an Order. Transitions are
// one-directional: RECEIVED -> PROCESSING -> PROCESSED, or -> FAILED /
// CANCELLED from outside the happy path (the DLT reconciler only).
type OrderStatus string

const (
	StatusReceived   OrderStatus = "RECEIVED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusProcessed  OrderStatus = "PROCESSED"
	StatusFailed     OrderStatus = "FAILED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// Terminal reports whether no further status change is permitted for an
// order in this status (invariant 4 in the data model).
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusProcessed, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order data")
)

// Order is a value type: it owns its Items exclusively and carries no
// back-reference to them. The FK column that ties an OrderItem to its
// Order exists only at the persistence boundary (internal/repo).
type Order struct {
	ID             uuid.UUID
	IdempotencyKey string
	Status         OrderStatus
	Total          decimal.Decimal
	Items          []OrderItem
	FailureReason  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
}

type OrderItem struct {
	ID        uuid.UUID
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// ComputeTotal sums price*quantity across items using fixed-point decimal
// arithmetic, rounded half-up to scale 2. Never touches float64.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		lineTotal := it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(lineTotal)
	}
	return total.Round(2)
}
