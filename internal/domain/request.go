package domain

import "github.com/shopspring/decimal"

// OrderRequest is the inbound shape from the primary bus topic:
//
//	{ "items": [ { "productId": ..., "quantity": ..., "price": ... }, ... ] }
type OrderRequest struct {
	Items []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderItemRequest struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	Price     decimal.Decimal `json:"price" validate:"required,gte=0.01"`
}
