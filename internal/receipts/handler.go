package receipts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/orders"
	"github.com/snackline/snackline/internal/platform/httpx"
	"github.com/snackline/snackline/internal/shared"
)

// Handler wires HTTP endpoints for the receipt archive.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a receipts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/stats/summary", h.summary)
	r.Get("/{id}", h.get)
	r.Put("/{id}/status", h.setStatus)
}

type createReceiptRequest struct {
	Kind       string `json:"receipt_type" validate:"required,oneof=order recovery"`
	OrderID    int64  `json:"order_id"`
	RecoveryID int64  `json:"recovery_id"`
	Content    string `json:"receipt_content" validate:"required"`
	Notes      string `json:"notes" validate:"max=1000"`
}

type receiptStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=issued voided"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createReceiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	rc, err := h.service.Create(r.Context(), principal, NewReceipt{
		Kind:       Kind(req.Kind),
		OrderID:    req.OrderID,
		RecoveryID: req.RecoveryID,
		Content:    req.Content,
		Notes:      req.Notes,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"receipt": rc})
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
		"receipts":   list,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	rc, err := h.service.Find(r.Context(), principal, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipt": rc})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req receiptStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	rc, err := h.service.SetStatus(r.Context(), principal, id, Status(req.Status))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipt": rc})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	summary, err := h.service.Overview(r.Context(), principal, filterFromQuery(r))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": summary})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, orders.ErrNotFound), errors.Is(err, ledger.ErrRecoveryNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrForbidden), errors.Is(err, orders.ErrForbidden), errors.Is(err, ledger.ErrWrongRole):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrBadKind), errors.Is(err, ErrBadStatus), errors.Is(err, ErrMissingRef):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "validation_error", err.Error())
	default:
		h.logger.Error("receipt operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	f := Filter{Kind: Kind(q.Get("receipt_type"))}
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
