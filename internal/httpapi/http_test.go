package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/internal/repo"
)

type fakeRepo struct {
	order   domain.Order
	findErr error
	calls   int
}

func (r *fakeRepo) GetByID(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	r.calls++
	return r.order, r.findErr
}

type fakeCache struct {
	store map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{store: make(map[string][]byte)} }

func (c *fakeCache) Get(key string) ([]byte, bool) {
	v, ok := c.store[key]
	return v, ok
}

func (c *fakeCache) Set(key string, value []byte) {
	c.store[key] = value
}

func newTestHandler(r OrderRepository, c Cache) *Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), r, c)
}

func TestGetOrderByID_Found_CachesResultAndReturns200(t *testing.T) {
	id := uuid.New()
	order := domain.Order{ID: id, IdempotencyKey: "K1", Status: domain.StatusProcessed, Total: decimal.RequireFromString("25.25")}
	repo := &fakeRepo{order: order}
	cache := newFakeCache()
	h := newTestHandler(repo, cache)

	router := chi.NewRouter()
	h.Init(router)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body orderJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id.String(), body.OrderID)
	assert.Equal(t, 1, repo.calls)
	_, cached := cache.Get(id.String())
	assert.True(t, cached)
}

func TestGetOrderByID_CacheHit_SkipsRepo(t *testing.T) {
	id := uuid.New()
	order := domain.Order{ID: id, Status: domain.StatusProcessed, Total: decimal.Zero}
	repo := &fakeRepo{}
	cache := newFakeCache()
	data, err := json.Marshal(toOrderJSON(order))
	require.NoError(t, err)
	cache.Set(id.String(), data)

	h := newTestHandler(repo, cache)
	router := chi.NewRouter()
	h.Init(router)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, repo.calls)
}

func TestGetOrderByID_NotFound_Returns404(t *testing.T) {
	id := uuid.New()
	rp := &fakeRepo{findErr: repo.ErrNotFound}
	cache := newFakeCache()
	h := newTestHandler(rp, cache)

	router := chi.NewRouter()
	h.Init(router)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderByID_InvalidID_Returns400(t *testing.T) {
	rp := &fakeRepo{}
	cache := newFakeCache()
	h := newTestHandler(rp, cache)

	router := chi.NewRouter()
	h.Init(router)

	req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, rp.calls)
}
