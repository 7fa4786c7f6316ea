package storefront

import (
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

// Handler wires HTTP endpoints for the public store and its back office.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a storefront handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountPublicRoutes registers the unauthenticated store endpoints.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{reference}", h.track)
}

// MountAdminRoutes registers fulfilment endpoints for admins.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Put("/orders/{id}/status", h.setStatus)
}

type cartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type checkoutRequest struct {
	CustomerName    string            `json:"customer_name" validate:"required,max=200"`
	CustomerEmail   string            `json:"customer_email" validate:"required,email"`
	CustomerPhone   string            `json:"customer_phone" validate:"max=30"`
	ShippingAddress string            `json:"shipping_address" validate:"required,max=500"`
	Items           []cartItemRequest `json:"items" validate:"required,min=1,dive"`
}

type storeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=shipped delivered cancelled"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	items := make([]CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	order, err := h.service.PlaceOrder(r.Context(), Checkout{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Track(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	// customers see fulfilment state only
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reference":    order.Reference,
		"status":       order.Status,
		"total_amount": order.TotalAmount,
		"created_at":   order.CreatedAt,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r, 20, 100)
	pg := shared.NewPagination(page, perPage, 0)
	f := Filter{
		Status:        Status(r.URL.Query().Get("status")),
		CustomerEmail: r.URL.Query().Get("customer_email"),
	}
	list, total, err := h.service.List(r.Context(), f, perPage, pg.Offset())
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
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.service.Find(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req storeStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.service.SetStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var stockErr *catalog.StockError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.As(err, &stockErr):
		httpx.Problem(w, http.StatusConflict, "Insufficient stock", "insufficient_stock", stockErr.Error())
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrProductUnavailable):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "validation_error", err.Error())
	case errors.Is(err, ErrBadTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", "conflict", err.Error())
	default:
		h.logger.Error("storefront operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
