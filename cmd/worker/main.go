package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func main() {
	cfg, logg := bootstrap.Start("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap database", err)
	defer bootstrap.Close(logg, "database", dbClient)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap redis", err)
	defer bootstrap.Close(logg, "redis", redisClient)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap pubsub", err)
	defer bootstrap.Close(logg, "pubsub client", pubsubClient)

	tracker, err := idempotency.NewTracker(redisClient, cfg.PubSub.IdempotencyTTL)
	bootstrap.Must(ctx, logg, "failed to create event tracker", err)

	emails, err := notifications.NewEmails(notifications.NewSender(cfg.SMTP, logg), cfg.App.PublicURL)
	bootstrap.Must(ctx, logg, "failed to create order emails", err)

	orderEmails, err := notifications.NewConsumer(
		orders.NewRepository(dbClient.DB()),
		emails,
		pubsubClient.NotificationsSubscription(),
		tracker,
		logg,
	)
	bootstrap.Must(ctx, logg, "failed to create notifications consumer", err)

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: map[string]func(context.Context) error{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
		},
		Consumers: map[string]runner{"order-emails": orderEmails},
	})
	bootstrap.Must(ctx, logg, "failed to create worker service", err)

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shut down")
}
