package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func main() {
	cfg, logg := bootstrap.Start("cron-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap database", err)
	defer bootstrap.Close(logg, "database", dbClient)

	bootstrap.Must(ctx, logg, "failed to run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap redis", err)
	defer bootstrap.Close(logg, "redis", redisClient)

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	registry := cron.NewRegistry()

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outboxRepo,
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	bootstrap.Must(ctx, logg, "failed to create outbox retention job", err)
	registry.Register(retention)

	if after := cfg.Orders.AutoCancelAfter(); after > 0 {
		expiry, err := newExpiryJob(cfg, logg, dbClient, outbox.NewService(outboxRepo, logg))
		bootstrap.Must(ctx, logg, "failed to create pending order expiry job", err)
		registry.Register(expiry)
		logg.Info(logg.WithField(ctx, "after", after.String()), "pending order expiry enabled")
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	bootstrap.Must(ctx, logg, "failed to create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	bootstrap.Must(ctx, logg, "failed to create cron service", err)

	logg.Info(logg.WithField(ctx, "jobs", registry.Len()), "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

// newExpiryJob wires the same orders service the API uses so sweeps write
// history, release stock and emit events exactly like a manual cancel.
func newExpiryJob(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, events *outbox.Service) (cron.Job, error) {
	gormDB := dbClient.DB()
	ordersRepo := orders.NewRepository(gormDB)

	emails, err := notifications.NewEmails(notifications.NewSender(cfg.SMTP, logg), cfg.App.PublicURL)
	if err != nil {
		return nil, err
	}
	inventoryService, err := inventory.NewService(inventory.NewRepository(gormDB), dbClient, events, logg)
	if err != nil {
		return nil, err
	}
	ordersService, err := orders.NewService(orders.Deps{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Outbox:    events,
		Inventory: inventoryService,
		Payments:  payments.NewOfflineLedger(payments.NewRepository(gormDB)),
		Authz:     authz.DefaultPolicy(),
		Images:    catalog.NewRepository(gormDB),
		Notifier:  emails,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewPendingOrderExpiryJob(cron.PendingOrderExpiryJobParams{
		Logger:      logg,
		Orders:      ordersRepo,
		Transitions: ordersService,
		After:       cfg.Orders.AutoCancelAfter(),
		BatchSize:   cfg.Orders.SweepBatchSize,
	})
}
