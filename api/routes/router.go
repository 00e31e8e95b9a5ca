package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ppetrack/ppetrack-backend/api/controllers"
	"github.com/ppetrack/ppetrack-backend/api/middleware"
	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/identity"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/internal/live"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/internal/tables"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	pkgredis "github.com/ppetrack/ppetrack-backend/pkg/redis"
)

// Cache is the Redis surface the HTTP layer needs: idempotency records,
// auth rate limit counters and the readiness ping.
type Cache interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type Services struct {
	Identity  identity.Service
	Roles     roles.Service
	Inventory inventory.Service
	Catalog   catalog.Service
	Ledger    ledger.Service
	Reports   reports.Service
	Tables    tables.Service
	Live      *live.Hub
}

// NewRouter mounts every HTTP route. A nil cache disables idempotency and
// auth rate limiting.
func NewRouter(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, cache Cache, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idemStore pkgredis.IdempotencyStore
		rateStore interface {
			FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
		}
	)
	deps := map[string]db.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	if cache != nil {
		idemStore = cache
		rateStore = cache
		deps["redis"] = cache
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	idempotent := middleware.Idempotency(idemStore, cfg.Idempotency.TTL, logg)
	allow := func(op access.Operation) func(http.Handler) http.Handler {
		return middleware.RequirePermission(op, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AuthLogin(svc.Identity, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, rateStore, logg)).Post("/register", controllers.AuthRegister(svc.Identity, logg))
		r.Post("/logout", controllers.AuthLogout(svc.Identity, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(svc.Identity, svc.Roles, logg))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/session", controllers.SessionCurrent(logg))

			r.Route("/items", func(r chi.Router) {
				r.With(allow(access.OpRead)).Get("/", controllers.ItemsList(svc.Inventory, logg))
				r.With(allow(access.OpEditItem), idempotent).Post("/", controllers.ItemCreate(svc.Inventory, logg))
				r.With(allow(access.OpRead)).Get("/{itemId}", controllers.ItemGet(svc.Inventory, logg))
				r.With(allow(access.OpEditItem)).Patch("/{itemId}", controllers.ItemUpdate(svc.Inventory, logg))
				r.With(allow(access.OpDeleteItem)).Delete("/{itemId}", controllers.ItemDelete(svc.Inventory, logg))
			})

			r.Route("/catalog/{kind}", func(r chi.Router) {
				r.With(allow(access.OpRead)).Get("/", controllers.CatalogList(svc.Catalog, logg))
				r.With(allow(access.OpManageCatalog), idempotent).Post("/", controllers.CatalogCreate(svc.Catalog, logg))
				r.With(allow(access.OpManageCatalog)).Patch("/{id}", controllers.CatalogRename(svc.Catalog, logg))
				r.With(allow(access.OpManageCatalog)).Delete("/{id}", controllers.CatalogDelete(svc.Catalog, logg))
			})

			r.Route("/usage", func(r chi.Router) {
				r.With(allow(access.OpRead)).Get("/", controllers.UsageList(svc.Ledger, logg))
				r.With(allow(access.OpRecordUsage), idempotent).Post("/", controllers.UsageRecord(svc.Ledger, logg))
				r.With(allow(access.OpEditUsageLog)).Patch("/{eventId}", controllers.UsageEdit(svc.Ledger, logg))
				r.With(allow(access.OpEditUsageLog)).Delete("/{eventId}", controllers.UsageDelete(svc.Ledger, logg))
			})
			r.With(allow(access.OpRestock), idempotent).Post("/restock", controllers.RestockRecord(svc.Ledger, logg))
			r.With(allow(access.OpRead)).Get("/purchases", controllers.PurchasesList(svc.Ledger, logg))

			r.Route("/reports", func(r chi.Router) {
				r.Use(allow(access.OpRead))
				r.Get("/events", controllers.ReportEvents(svc.Reports, logg))
				r.Get("/summary", controllers.ReportSummary(svc.Reports, logg))
				r.Get("/dashboard", controllers.ReportDashboard(svc.Reports, logg))
				r.Get("/export", controllers.ReportExport(svc.Reports, logg))
			})

			if svc.Live != nil {
				r.With(allow(access.OpRead)).Get("/live/{collection}", controllers.LiveStream(svc.Live, cfg.Live.Heartbeat, logg))
			}
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.With(allow(access.OpManageRoles)).Get("/users", controllers.AdminListUsers(svc.Roles, logg))
			r.With(allow(access.OpManageRoles)).Patch("/users/{uid}/role", controllers.AdminChangeRole(svc.Roles, logg))

			r.Route("/tables", func(r chi.Router) {
				r.Use(allow(access.OpRawTables))
				r.Get("/", controllers.AdminListTables(svc.Tables, logg))
				r.Get("/{table}", controllers.AdminTableRows(svc.Tables, logg))
				r.Patch("/{table}/{id}", controllers.AdminEditRow(svc.Tables, logg))
				r.Delete("/{table}/{id}", controllers.AdminDeleteRow(svc.Tables, logg))
			})
		})
	})

	return r
}
