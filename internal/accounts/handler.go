package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/auth"
	"github.com/snackline/snackline/internal/platform/httpx"
	"github.com/snackline/snackline/internal/shared"
)

// Handler wires HTTP endpoints for the account directory.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers account management routes. All routes require an
// admin or superadmin principal; the middleware is applied by the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleAdmin, shared.RoleSuperAdmin))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.deactivate)
	})
}

type createAccountRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Email       string  `json:"email" validate:"required,email"`
	Phone       string  `json:"phone" validate:"max=30"`
	Address     string  `json:"address" validate:"max=300"`
	Role        string  `json:"role" validate:"required,oneof=admin salesman shopkeeper"`
	Password    string  `json:"password" validate:"required,min=8"`
	CreditLimit *string `json:"credit_limit,omitempty"`
}

type updateAccountRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=120"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address     *string `json:"address,omitempty" validate:"omitempty,max=300"`
	CreditLimit *string `json:"credit_limit,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Search: r.URL.Query().Get("search")}
	if roleStr := r.URL.Query().Get("role"); roleStr != "" {
		role := shared.Role(roleStr)
		if !role.IsValid() {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		filter.Role = &role
	}

	principal, _ := shared.PrincipalFromContext(r.Context())
	// Admins only see the salesmen they manage plus shopkeepers.
	if principal.Role == shared.RoleAdmin {
		filter.AssignedBy = &principal.ID
		if filter.Role != nil && *filter.Role == shared.RoleShopkeeper {
			filter.AssignedBy = nil
		}
	}

	page, perPage := shared.PageParams(r, 50, 200)
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	accounts, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"accounts":   accounts,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	acc, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": acc})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	principal, _ := shared.PrincipalFromContext(r.Context())
	role := shared.Role(req.Role)
	if role == shared.RoleAdmin && principal.Role != shared.RoleSuperAdmin {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	input := NewAccount{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		Role:    role,
	}
	if role == shared.RoleSalesman {
		adminID := principal.ID
		input.AssignedBy = &adminID
	}
	if req.CreditLimit != nil {
		limit, err := decimal.NewFromString(*req.CreditLimit)
		if err != nil || limit.IsNegative() {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		input.CreditLimit = &limit
	}

	acc, err := h.service.Provision(r.Context(), input, req.Password)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"account": acc})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	upd := Update{Name: req.Name, Phone: req.Phone, Address: req.Address, IsActive: req.IsActive}
	if req.CreditLimit != nil {
		limit, err := decimal.NewFromString(*req.CreditLimit)
		if err != nil || limit.IsNegative() {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		upd.CreditLimit = &limit
	}

	acc, err := h.service.UpdateAccount(r.Context(), id, upd)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": acc})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrWrongRole):
		httpx.RespondError(w, httpx.ErrInvalidRole)
	case errors.Is(err, ErrEmailTaken):
		httpx.RespondError(w, httpx.ErrDuplicate)
	default:
		h.logger.Error("accounts operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
