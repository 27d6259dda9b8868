package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mouts/order-ingestion/internal/domain"
	"github.com/mouts/order-ingestion/pkg/httpx"
)

// Handler exposes the single read endpoint the pipeline supports:
// looking an order up by its server-minted ID.
type Handler struct {
	logger   *slog.Logger
	validate *validator.Validate
	reader   *reader
}

func NewHandler(logger *slog.Logger, repo OrderRepository, cache Cache) *Handler {
	return &Handler{
		logger:   logger.With(slog.String("handler", "http")),
		validate: validator.New(),
		reader:   newReader(logger, repo, cache),
	}
}

func (h *Handler) Init(r chi.Router) {
	r.Get("/orders/{order_id}", h.GetOrderByID)
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderIDParam := chi.URLParam(r, "order_id")

	if err := h.validate.Var(orderIDParam, "required,uuid"); err != nil {
		httpx.WriteValidationError(w, err)
		return
	}

	orderID, err := uuid.Parse(orderIDParam)
	if err != nil {
		httpx.WriteValidationError(w, err)
		return
	}

	order, err := h.reader.getByID(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		httpx.WriteError(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		httpx.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, toOrderJSON(order), http.StatusOK)
}
