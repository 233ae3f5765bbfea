package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/authz"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs for rate limiting and
// request idempotency.
type Store interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything NewRouter mounts.
type Dependencies struct {
	Config     *config.Config
	Logger     *logger.Logger
	Store      Store
	Authorizer authz.Authorizer
	Readiness  map[string]controllers.Pinger
	Gatherer   prometheus.Gatherer

	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Payments  payments.Service
	Inventory inventory.Service
	Webhook   webhookcontrollers.GatewayWebhookOptions
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	webhook := deps.Webhook
	if webhook.Logger == nil {
		webhook.Logger = logg
	}
	r.Post("/api/v1/webhooks/gateway", webhookcontrollers.GatewayWebhook(webhook))

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.Checkout.RateLimitWindow, cfg.Checkout.RateLimit)
	requireOrders := func(action authz.Action) func(http.Handler) http.Handler {
		return middleware.RequirePermission(deps.Authorizer, authz.ResourceOrders, action, logg)
	}
	requireInventory := func(action authz.Action) func(http.Handler) http.Handler {
		return middleware.RequirePermission(deps.Authorizer, authz.ResourceInventory, action, logg)
	}

	idempotent := func(ttl time.Duration) func(http.Handler) http.Handler {
		return middleware.Idempotent(deps.Store, ttl, logg)
	}
	critical := idempotent(middleware.CriticalIdempotencyTTL)
	staff := idempotent(middleware.DefaultIdempotencyTTL)

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(checkoutPolicy, deps.Store, logg))
		r.With(critical).Post("/", controllers.Checkout(deps.Checkout, logg))
		r.Post("/validate", controllers.ValidateCart(deps.Checkout, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.With(requireOrders(authz.ActionRead)).Get("/", controllers.ListOrders(deps.Orders, logg))
		r.Route("/{orderId}", func(r chi.Router) {
			r.With(requireOrders(authz.ActionRead)).Get("/", controllers.OrderDetail(deps.Orders, logg))
			r.With(requireOrders(authz.ActionRead)).Get("/history", controllers.OrderHistory(deps.Orders, logg))
			r.With(requireOrders(authz.ActionCancelOwn), critical).Post("/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.With(requireOrders(authz.ActionUpdateNotes)).Patch("/notes", controllers.UpdateOrderNotes(deps.Orders, logg))
			r.With(requireOrders(authz.ActionRead)).Get("/payments", controllers.OrderPayments(deps.Payments, logg))
			r.With(middleware.RequirePermission(deps.Authorizer, authz.ResourcePayments, authz.ActionRetry, logg), critical).
				Post("/payments", controllers.RetryPayment(deps.Payments, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(requireOrders(authz.ActionReadAll)).Get("/", controllers.ListOrders(deps.Orders, logg))
			r.With(requireOrders(authz.ActionTransition), staff).Post("/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
			r.With(requireOrders(authz.ActionAdminNotes)).Patch("/{orderId}/notes", controllers.UpdateOrderNotes(deps.Orders, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.With(requireInventory(authz.ActionRead)).Get("/low-stock", controllers.LowStockReport(deps.Inventory, logg))
			r.With(requireInventory(authz.ActionRead)).Get("/{variantId}/movements", controllers.InventoryMovements(deps.Inventory, logg))
			r.With(requireInventory(authz.ActionAdjust), staff).Post("/{variantId}/adjust", controllers.AdjustInventory(deps.Inventory, logg))
		})
	})

	return r
}
