package assignments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/auth"
	"github.com/snackline/snackline/internal/platform/httpx"
	"github.com/snackline/snackline/internal/shared"
)

// Handler wires HTTP endpoints for assignments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an assignments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleSuperAdmin))
		r.Get("/", h.listActive)
		r.Post("/", h.create)
		r.Delete("/{id}", h.revoke)
	})
	r.Get("/salesman/{salesmanId}", h.listBySalesman)
	r.Get("/salesman/{salesmanId}/shopkeepers", h.shopkeepers)
}

type createAssignmentRequest struct {
	SalesmanID   int64  `json:"salesman_id" validate:"required,gt=0"`
	ShopkeeperID int64  `json:"shopkeeper_id" validate:"required,gt=0"`
	Notes        string `json:"notes" validate:"max=500"`
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": list})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	assignment, err := h.service.Assign(r.Context(), req.SalesmanID, req.ShopkeeperID, principal.ID, req.Notes)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"assignment": assignment})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.Revoke(r.Context(), id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// salesmanScope authorizes access to a salesman's assignment data: the
// salesman themselves or a superadmin.
func salesmanScope(r *http.Request) (int64, bool) {
	salesmanID, err := strconv.ParseInt(chi.URLParam(r, "salesmanId"), 10, 64)
	if err != nil {
		return 0, false
	}
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		return 0, false
	}
	if principal.Role == shared.RoleSalesman && principal.ID != salesmanID {
		return 0, false
	}
	if principal.Role == shared.RoleShopkeeper {
		return 0, false
	}
	return salesmanID, true
}

func (h *Handler) listBySalesman(w http.ResponseWriter, r *http.Request) {
	salesmanID, ok := salesmanScope(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	list, err := h.service.ListBySalesman(r.Context(), salesmanID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": list})
}

func (h *Handler) shopkeepers(w http.ResponseWriter, r *http.Request) {
	salesmanID, ok := salesmanScope(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	shopkeepers, err := h.service.AssignedShopkeepers(r.Context(), salesmanID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shopkeepers": shopkeepers})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, accounts.ErrWrongRole):
		httpx.RespondError(w, httpx.ErrInvalidRole)
	default:
		h.logger.Error("assignment operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
