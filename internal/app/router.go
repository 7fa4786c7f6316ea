package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/analytics"
	"github.com/snackline/snackline/internal/assignments"
	"github.com/snackline/snackline/internal/audit"
	"github.com/snackline/snackline/internal/auth"
	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/observability"
	"github.com/snackline/snackline/internal/orders"
	"github.com/snackline/snackline/internal/receipts"
	"github.com/snackline/snackline/internal/sales"
	"github.com/snackline/snackline/internal/shared"
	"github.com/snackline/snackline/internal/storefront"
	"github.com/snackline/snackline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	Tokens *auth.TokenStore

	AuthHandler        *auth.Handler
	AccountsHandler    *accounts.Handler
	CatalogHandler     *catalog.Handler
	AssignmentsHandler *assignments.Handler
	LedgerHandler      *ledger.Handler
	OrdersHandler      *orders.Handler
	SalesHandler       *sales.Handler
	ReceiptsHandler    *receipts.Handler
	StorefrontHandler  *storefront.Handler
	AnalyticsHandler   *analytics.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with snackline defaults. Everything
// under /api except auth, the product catalogue and the storefront requires
// a bearer token.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		// Public surface. The storefront checkout and order tracking have no
		// account behind them and the catalogue is browsable by anyone.
		if params.CatalogHandler != nil {
			r.Route("/products", params.CatalogHandler.MountPublicRoutes)
		}
		if params.StorefrontHandler != nil {
			r.Route("/store", params.StorefrontHandler.MountPublicRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(params.Tokens))

			if params.AccountsHandler != nil {
				r.Route("/accounts", params.AccountsHandler.MountRoutes)
			}
			if params.CatalogHandler != nil {
				r.Route("/catalog", func(r chi.Router) {
					r.Use(auth.RequireRole(shared.RoleAdmin, shared.RoleSuperAdmin))
					params.CatalogHandler.MountAdminRoutes(r)
				})
			}
			if params.AssignmentsHandler != nil {
				r.Route("/assignments", params.AssignmentsHandler.MountRoutes)
			}
			if params.LedgerHandler != nil {
				r.Route("/recoveries", params.LedgerHandler.MountRecoveryRoutes)
				r.Route("/distribution", params.LedgerHandler.MountDistributionRoutes)
			}
			if params.OrdersHandler != nil {
				r.Route("/orders", params.OrdersHandler.MountRoutes)
			}
			if params.SalesHandler != nil {
				r.Route("/sales", params.SalesHandler.MountRoutes)
			}
			if params.ReceiptsHandler != nil {
				r.Route("/receipts", params.ReceiptsHandler.MountRoutes)
			}
			if params.StorefrontHandler != nil {
				r.Route("/store-admin", func(r chi.Router) {
					r.Use(auth.RequireRole(shared.RoleAdmin, shared.RoleSuperAdmin))
					params.StorefrontHandler.MountAdminRoutes(r)
				})
			}
			if params.AnalyticsHandler != nil {
				r.Route("/analytics", func(r chi.Router) {
					r.Use(auth.RequireRole(shared.RoleAdmin, shared.RoleSuperAdmin))
					params.AnalyticsHandler.MountRoutes(r)
				})
			}
			if params.AuditHandler != nil {
				r.Route("/audit", func(r chi.Router) {
					r.Use(auth.RequireRole(shared.RoleAdmin, shared.RoleSuperAdmin))
					params.AuditHandler.MountRoutes(r)
				})
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(auth.RequireRole(shared.RoleSuperAdmin))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	return r
}
