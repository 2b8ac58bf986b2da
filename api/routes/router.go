package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brovar/digimarket-backend/api/controllers"
	"github.com/brovar/digimarket-backend/api/middleware"
	adminsvc "github.com/brovar/digimarket-backend/internal/admin"
	authsvc "github.com/brovar/digimarket-backend/internal/auth"
	"github.com/brovar/digimarket-backend/internal/offers"
	"github.com/brovar/digimarket-backend/internal/orders"
	"github.com/brovar/digimarket-backend/internal/settlement"
	"github.com/brovar/digimarket-backend/pkg/auth/session"
	"github.com/brovar/digimarket-backend/pkg/config"
	"github.com/brovar/digimarket-backend/pkg/db"
	"github.com/brovar/digimarket-backend/pkg/enums"
	"github.com/brovar/digimarket-backend/pkg/logger"
	"github.com/brovar/digimarket-backend/pkg/redis"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Sessions session.Checker
	Registry *prometheus.Registry

	Auth       authsvc.Service
	Offers     offers.Service
	Orders     orders.Service
	Settlement settlement.Service
	Admin      adminsvc.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(deps.Auth, logg))
		r.Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(deps.Auth, cfg.JWT, logg))
	})

	// the gateway has no account; the transaction id scopes the callback
	r.Post("/api/v1/payments/callback", controllers.PaymentCallback(deps.Settlement, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", controllers.OfferList(deps.Offers, logg))
			r.Get("/{offerId}", controllers.OfferGet(deps.Offers, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.UserRoleSeller, logg))
				r.Post("/", controllers.OfferCreate(deps.Offers, logg))
				r.Post("/{offerId}/activate", controllers.OfferActivate(deps.Offers, logg))
				r.Post("/{offerId}/deactivate", controllers.OfferDeactivate(deps.Offers, logg))
				r.Post("/{offerId}/mark-sold", controllers.OfferMarkSold(deps.Offers, logg))
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.UserRoleBuyer, logg))
				r.Post("/", controllers.OrderCreate(deps.Orders, logg))
				r.Get("/", controllers.OrderList(deps.Orders, logg))
			})
		})

		r.Route("/sales", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.UserRoleSeller, logg))
			r.Get("/", controllers.SalesList(deps.Orders, logg))
			r.Post("/{orderId}/ship", controllers.SalesShip(deps.Orders, logg))
			r.Post("/{orderId}/deliver", controllers.SalesDeliver(deps.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

		r.Get("/orders", controllers.AdminOrderList(deps.Orders, logg))
		r.Post("/orders/{orderId}/cancel", controllers.AdminOrderCancel(deps.Orders, logg))
		r.Post("/offers/{offerId}/moderate", controllers.AdminOfferModerate(deps.Offers, logg))
		r.Post("/offers/{offerId}/unmoderate", controllers.AdminOfferUnmoderate(deps.Offers, logg))
		r.Get("/users", controllers.AdminUserList(deps.Admin, logg))
		r.Post("/users/{userId}/block", controllers.AdminUserBlock(deps.Admin, logg))
		r.Post("/users/{userId}/unblock", controllers.AdminUserUnblock(deps.Admin, logg))
	})

	return r
}
