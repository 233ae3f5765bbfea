package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	gatewaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/env"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, logg := bootstrap.Start("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap database", err)
	defer bootstrap.Close(logg, "database", dbClient)

	bootstrap.Must(ctx, logg, "failed to run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap redis", err)
	defer bootstrap.Close(logg, "redis", redisClient)

	signaturePolicy, err := cfg.Webhooks.Policy(cfg.App)
	bootstrap.Must(ctx, logg, "invalid webhook configuration", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	authorizer := authz.DefaultPolicy()
	gormDB := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(gormDB), logg)
	catalogRepo := catalog.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)

	emails, err := notifications.NewEmails(notifications.NewSender(cfg.SMTP, logg), cfg.App.PublicURL)
	bootstrap.Must(ctx, logg, "failed to create order emails", err)

	inventoryService, err := inventory.NewService(inventory.NewRepository(gormDB), dbClient, events, logg)
	bootstrap.Must(ctx, logg, "failed to create inventory service", err)

	ordersService, err := orders.NewService(orders.Deps{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Outbox:    events,
		Inventory: inventoryService,
		Payments:  payments.NewOfflineLedger(paymentsRepo),
		Authz:     authorizer,
		Images:    catalogRepo,
		Notifier:  emails,
		Logger:    logg,
	})
	bootstrap.Must(ctx, logg, "failed to create orders service", err)

	gateway, err := payments.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, payments.WithTimeout(cfg.Gateway.Timeout))
	bootstrap.Must(ctx, logg, "failed to create payment gateway", err)

	paymentsService, err := payments.NewService(payments.Deps{
		Repo:       paymentsRepo,
		Orders:     ordersRepo,
		OrderNotes: ordersService,
		Inventory:  inventoryService,
		Gateway:    gateway,
		Tx:         dbClient,
		Outbox:     events,
		Authz:      authorizer,
		MerchantID: cfg.Gateway.MerchantID,
		URLs: payments.URLs{
			Return: cfg.App.PublicURL + cfg.Gateway.ReturnPath,
			Cancel: cfg.App.PublicURL + cfg.Gateway.CancelPath,
			Notify: cfg.App.PublicURL + cfg.Gateway.NotifyPath,
		},
		Logger: logg,
	})
	bootstrap.Must(ctx, logg, "failed to create payments service", err)

	checkoutService, err := checkoutsvc.NewService(dbClient, catalogRepo, inventoryService, ordersRepo, paymentsService, events, authorizer, logg)
	bootstrap.Must(ctx, logg, "failed to create checkout service", err)

	reconciler, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Payments:          paymentsRepo,
		Orders:            ordersRepo,
		Transitions:       ordersService,
		Inventory:         inventoryService,
		Outbox:            events,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	bootstrap.Must(ctx, logg, "failed to create webhook reconciler", err)

	guard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.DeliveryTTL)
	bootstrap.Must(ctx, logg, "failed to create webhook guard", err)

	handler := routes.NewRouter(routes.Dependencies{
		Config:     cfg,
		Logger:     logg,
		Store:      redisClient,
		Authorizer: authorizer,
		Readiness: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Gatherer:  registry,
		Checkout:  checkoutService,
		Orders:    ordersService,
		Payments:  paymentsService,
		Inventory: inventoryService,
		Webhook: webhookcontrollers.GatewayWebhookOptions{
			Service: reconciler,
			Guard:   guard,
			Policy:  signaturePolicy,
			Secret:  cfg.Webhooks.Secret,
			Metrics: metrics.NewWebhookMetrics(registry),
			Logger:  logg,
		},
	})

	// Cloud Run injects PORT; it wins over the configured one.
	addr := ":" + env.Get("PORT", cfg.App.Port)
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":              cfg.App.Env,
		"addr":             addr,
		"instance":         instance.GetID(),
		"signature_policy": string(signaturePolicy),
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}
