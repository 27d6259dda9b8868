// Package httpapi serves the read side: a single endpoint that looks an
// order up by ID, backed by an LRU cache in front of the repository.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/internal/repo"
)

type OrderRepository interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
}

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

type reader struct {
	logger *slog.Logger
	repo   OrderRepository
	cache  Cache
}

func newReader(logger *slog.Logger, repo OrderRepository, cache Cache) *reader {
	return &reader{
		logger: logger.With(slog.String("component", "httpapi_reader")),
		repo:   repo,
		cache:  cache,
	}
}

func (r *reader) getByID(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	key := orderID.String()

	if data, ok := r.cache.Get(key); ok {
		var cached orderJSON
		if err := json.Unmarshal(data, &cached); err != nil {
			r.logger.ErrorContext(ctx, "failed to unmarshal cached order", slog.Any("error", err), slog.String("order_id", key))
		} else {
			return fromOrderJSON(cached), nil
		}
	}

	order, err := r.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		r.logger.ErrorContext(ctx, "failed to load order", slog.Any("error", err), slog.String("order_id", key))
		return domain.Order{}, err
	}

	data, err := json.Marshal(toOrderJSON(order))
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to marshal order for cache", slog.Any("error", err), slog.String("order_id", key))
		return order, nil
	}
	r.cache.Set(key, data)
	return order, nil
}
