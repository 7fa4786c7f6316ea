package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/platform/httpx"
	"github.com/snackline/snackline/internal/shared"
)

// Handler wires HTTP endpoints for trade orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.place)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}/deliver", h.deliver)
	r.Put("/{id}/cancel", h.cancel)
}

type orderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type placeOrderRequest struct {
	SalesmanID int64              `json:"salesman_id" validate:"required,gt=0"`
	Items      []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes      string             `json:"notes" validate:"max=1000"`
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	items := make([]NewItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, NewItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	order, err := h.service.Place(r.Context(), principal, NewOrder{
		SalesmanID: req.SalesmanID,
		Items:      items,
		Notes:      req.Notes,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageParams(r, 20, 100)
	pg := shared.NewPagination(page, perPage, 0)

	f := Filter{Status: Status(r.URL.Query().Get("status"))}
	list, total, err := h.service.List(r.Context(), principal, f, perPage, pg.Offset())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders":     list,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.service.Find)
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.service.Deliver)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.service.Cancel)
}

func (h *Handler) withOrder(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor shared.Principal, id int64) (*Order, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	order, err := fn(r.Context(), principal, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrNotAssigned):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission_denied", err.Error())
	case errors.Is(err, ErrNotPending):
		httpx.Problem(w, http.StatusConflict, "Conflict", "conflict", err.Error())
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrBadQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "validation_error", err.Error())
	default:
		h.logger.Error("order operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
