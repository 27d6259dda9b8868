package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/pkg/trm"
)

const pqUniqueViolation = "23505"

type PostgresRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewPostgresRepo(db *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SaveNew persists a newly processed (or newly failed) order and its
// items in one statement group. Callers are expected to run this inside
// an ambient trm transaction so the order and item inserts commit or
// roll back together.
func (r *PostgresRepo) SaveNew(ctx context.Context, order domain.Order) error {
	query, args := r.qb.Insert("orders").
		Columns("id", "idempotency_key", "status", "total", "failure_reason").
		Values(order.ID, order.IdempotencyKey, string(order.Status), order.Total, nullString(order.FailureReason)).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return r.classifyWriteErr(err)
	}

	if len(order.Items) == 0 {
		return nil
	}

	ib := r.qb.Insert("order_items").
		Columns("id", "order_id", "product_id", "quantity", "price")
	for _, it := range order.Items {
		ib = ib.Values(it.ID, order.ID, it.ProductID, it.Quantity, it.Price)
	}
	query, args = ib.MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return r.classifyWriteErr(err)
	}
	return nil
}

func (r *PostgresRepo) classifyWriteErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicateKey
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func (r *PostgresRepo) FindByIdempotencyKey(ctx context.Context, key string) (domain.Order, error) {
	query, args := r.qb.Select("id", "idempotency_key", "status", "total", "failure_reason", "created_at", "updated_at", "version").
		From("orders").
		Where(sq.Eq{"idempotency_key": key}).
		MustSql()

	var row orderRow
	if err := r.getContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	items, err := r.itemsForOrder(ctx, row.ID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(row, items), nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	query, args := r.qb.Select("id", "idempotency_key", "status", "total", "failure_reason", "created_at", "updated_at", "version").
		From("orders").
		Where(sq.Eq{"id": orderID}).
		MustSql()

	var row orderRow
	if err := r.getContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	items, err := r.itemsForOrder(ctx, row.ID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(row, items), nil
}

func (r *PostgresRepo) itemsForOrder(ctx context.Context, orderID uuid.UUID) ([]itemRow, error) {
	query, args := r.qb.Select("id", "order_id", "product_id", "quantity", "price").
		From("order_items").
		Where(sq.Eq{"order_id": orderID}).
		MustSql()

	var items []itemRow
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return items, nil
}

// MarkFailed transitions an order to FAILED with optimistic concurrency:
// the update only applies if the row's version still matches
// expectedVersion, enforcing invariant 4 (no mutation of a terminal
// order) even under a race with a second DLT delivery.
func (r *PostgresRepo) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string, expectedVersion int64) error {
	query, args := r.qb.Update("orders").
		Set("status", string(domain.StatusFailed)).
		Set("failure_reason", reason).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": orderID, "version": expectedVersion}).
		MustSql()

	result, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx := trm.ExtractTx(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *PostgresRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := trm.ExtractTx(ctx); tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}

func (r *PostgresRepo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := trm.ExtractTx(ctx); tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
