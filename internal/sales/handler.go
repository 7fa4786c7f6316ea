package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/platform/httpx"
	"github.com/snackline/snackline/internal/shared"
)

// Handler wires HTTP endpoints for the sales book.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/record", h.record)
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	r.Get("/stats/monthly", h.monthly)
	r.Get("/profit-loss", h.profitLoss)
	r.Get("/{id}", h.get)
	r.Put("/{id}/payment-status", h.paymentStatus)
}

type recordSaleRequest struct {
	SalesmanID    int64           `json:"salesman_id"`
	ShopkeeperID  int64           `json:"shopkeeper_id" validate:"required,gt=0"`
	ProductID     int64           `json:"product_id" validate:"required,gt=0"`
	Quantity      int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer cheque upi other"`
	SaleDate      *time.Time      `json:"sale_date"`
	Notes         string          `json:"notes" validate:"max=1000"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=pending paid partial"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req recordSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	rec, err := h.service.Record(r.Context(), principal, NewSale{
		SalesmanID:    req.SalesmanID,
		ShopkeeperID:  req.ShopkeeperID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		PaymentMethod: ledger.PaymentMethod(req.PaymentMethod),
		SaleDate:      req.SaleDate,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"sales_record": rec})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageParams(r, 20, 100)
	pg := shared.NewPagination(page, perPage, 0)

	list, total, err := h.service.List(r.Context(), principal, filterFromQuery(r), perPage, pg.Offset())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales_records": list,
		"pagination":    shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	rec, err := h.service.Find(r.Context(), principal, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales_record": rec})
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req paymentStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	rec, err := h.service.SetPaymentStatus(r.Context(), principal, id, PaymentStatus(req.PaymentStatus))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales_record": rec})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	stats, err := h.service.Overview(r.Context(), principal, filterFromQuery(r))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) monthly(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	points, err := h.service.MonthlyBreakdown(r.Context(), principal, filterFromQuery(r))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"monthly_stats": points})
}

func (h *Handler) profitLoss(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	report, err := h.service.ProfitLossReport(r.Context(), principal, filterFromQuery(r))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profit_loss": report})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrNotAssigned):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission_denied", err.Error())
	case errors.Is(err, ErrBadQuantity), errors.Is(err, ErrBadStatus):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "validation_error", err.Error())
	default:
		h.logger.Error("sales operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	var f Filter
	f.SalesmanID, _ = strconv.ParseInt(q.Get("salesman_id"), 10, 64)
	f.ShopkeeperID, _ = strconv.ParseInt(q.Get("shopkeeper_id"), 10, 64)
	f.From = parseTimeParam(q.Get("from"))
	f.To = parseTimeParam(q.Get("to"))
	return f
}

func parseTimeParam(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
