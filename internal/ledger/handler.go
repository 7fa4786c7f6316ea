package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/platform/db"
	"github.com/snackline/snackline/internal/platform/httpx"
	"github.com/snackline/snackline/internal/shared"
)

// Handler wires HTTP endpoints for recoveries and distributions.
type Handler struct {
	logger      *slog.Logger
	service     *BalanceCalculator
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewHandler constructs a ledger handler. idempotency may be nil, which
// disables Idempotency-Key handling.
func NewHandler(logger *slog.Logger, service *BalanceCalculator, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validator.New()}
}

// MountRecoveryRoutes registers recovery endpoints.
func (h *Handler) MountRecoveryRoutes(r chi.Router) {
	r.Post("/", h.createRecovery)
	r.Get("/", h.listRecoveries)
	r.Get("/stats", h.recoveryStats)
	r.Get("/trend", h.recoveryTrend)
	r.Get("/shopkeepers/{salesmanId}", h.pendingShopkeepers)
	r.Get("/{id}", h.getRecovery)
	r.Put("/{id}", h.updateRecovery)
	r.Delete("/{id}", h.reverseRecovery)
}

// MountDistributionRoutes registers distribution endpoints.
func (h *Handler) MountDistributionRoutes(r chi.Router) {
	r.Post("/admin-to-salesman", h.createAdminToSalesman)
	r.Post("/salesman-to-shopkeeper", h.createSalesmanToShopkeeper)
	r.Get("/", h.listDistributions)
	r.Get("/stats", h.distributionStats)
	r.Get("/availability/{salesmanId}/{productId}", h.salesmanAvailability)
	r.Get("/{id}", h.getDistribution)
	r.Put("/{id}/status", h.setDistributionStatus)
}

func (h *Handler) createRecovery(w http.ResponseWriter, r *http.Request) {
	var req createRecoveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "recoveries"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate request", "duplicate_request", "this idempotency key was already used")
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}

	rec, err := h.service.RecordRecovery(r.Context(), principal, req.toInput())
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"recovery": rec})
}

func (h *Handler) listRecoveries(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageParams(r, 20, 100)
	pg := shared.NewPagination(page, perPage, 0)

	list, total, err := h.service.Recoveries(r.Context(), principal, recoveryFilterFromQuery(r), perPage, pg.Offset())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"recoveries": list,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) getRecovery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	rec, err := h.service.Recovery(r.Context(), principal, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recovery": rec})
}

func (h *Handler) updateRecovery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req updateRecoveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		// Unknown fields are rejected here, which is what keeps the money
		// fields of a recovery immutable over HTTP.
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	upd := RecoveryUpdate{Notes: req.Notes, Location: req.RecoveryLocation}
	if req.Status != nil {
		status := RecoveryStatus(*req.Status)
		upd.Status = &status
	}
	rec, err := h.service.AmendRecovery(r.Context(), principal, id, upd)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recovery": rec})
}

func (h *Handler) reverseRecovery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	rec, err := h.service.ReverseRecovery(r.Context(), principal, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recovery": rec, "reversed": true})
}

func (h *Handler) pendingShopkeepers(w http.ResponseWriter, r *http.Request) {
	salesmanID, err := pathID(r, "salesmanId")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	shopkeepers, err := h.service.PendingShopkeepers(r.Context(), principal, salesmanID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shopkeepers": shopkeepers})
}

func (h *Handler) recoveryStats(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	stats, err := h.service.RecoveryOverview(r.Context(), principal, recoveryFilterFromQuery(r))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) recoveryTrend(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	months, _ := strconv.Atoi(r.URL.Query().Get("months"))
	trend, err := h.service.MonthlyTrend(r.Context(), principal, recoveryFilterFromQuery(r), months)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trend": trend})
}

func (h *Handler) createAdminToSalesman(w http.ResponseWriter, r *http.Request) {
	h.createDistribution(w, r, DistributionAdminToSalesman)
}

func (h *Handler) createSalesmanToShopkeeper(w http.ResponseWriter, r *http.Request) {
	h.createDistribution(w, r, DistributionSalesmanToShopkeeper)
}

func (h *Handler) createDistribution(w http.ResponseWriter, r *http.Request, distType DistributionType) {
	var req createDistributionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	d, err := h.service.RecordDistribution(r.Context(), principal, NewDistribution{
		ProductID: req.ProductID,
		ToID:      req.ToID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Type:      distType,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"distribution": d})
}

func (h *Handler) listDistributions(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageParams(r, 20, 100)
	pg := shared.NewPagination(page, perPage, 0)

	list, total, err := h.service.Distributions(r.Context(), principal, distributionFilterFromQuery(r), perPage, pg.Offset())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"distributions": list,
		"pagination":    shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) distributionStats(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	stats, err := h.service.DistributionOverview(r.Context(), principal, distributionFilterFromQuery(r))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) getDistribution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	d, err := h.service.Distribution(r.Context(), principal, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"distribution": d})
}

func (h *Handler) setDistributionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req distributionStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "validation_error", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	d, err := h.service.SetDistributionStatus(r.Context(), principal, id, DistributionStatus(req.Status), req.ReturnReason)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"distribution": d})
}

func (h *Handler) salesmanAvailability(w http.ResponseWriter, r *http.Request) {
	salesmanID, err := pathID(r, "salesmanId")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	productID, err := pathID(r, "productId")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	available, err := h.service.SalesmanAvailability(r.Context(), principal, salesmanID, productID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"salesman_id": salesmanID,
		"product_id":  productID,
		"available":   available,
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "validation_error", err.Error())
	case errors.Is(err, ErrRecoveryNotFound), errors.Is(err, ErrDistributionNotFound),
		errors.Is(err, ErrAccountNotFound), errors.Is(err, accounts.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrWrongRole), errors.Is(err, accounts.ErrWrongRole):
		httpx.RespondError(w, httpx.ErrInvalidRole)
	case errors.Is(err, ErrNotAssigned), errors.Is(err, ErrNotManaged):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission_denied", err.Error())
	case errors.Is(err, ErrAccountInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Account inactive", "account_inactive", err.Error())
	case errors.Is(err, ErrAlreadyReversed), errors.Is(err, ErrNotReversible),
		errors.Is(err, ErrImmutableRecovery):
		httpx.Problem(w, http.StatusConflict, "Conflict", "conflict", err.Error())
	case errors.Is(err, db.ErrSerialization):
		httpx.RespondError(w, httpx.ErrTransient)
	default:
		h.logger.Error("ledger operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
