package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

func main() {
	cfg, logg := bootstrap.Start("outbox-publisher")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
		"topic":    cfg.PubSub.DomainTopic,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap database", err)
	defer bootstrap.Close(logg, "database", dbClient)

	bootstrap.Must(ctx, logg, "failed to run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	broker, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	bootstrap.Must(ctx, logg, "failed to bootstrap pubsub", err)
	defer bootstrap.Close(logg, "pubsub client", broker)

	routes, err := registry.NewEventRegistry(cfg.PubSub)
	bootstrap.Must(ctx, logg, "failed to build event registry", err)

	publishers := newPublisherCache(broker)
	defer publishers.Stop()

	gormDB := dbClient.DB()
	service, err := NewService(ServiceParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Broker:     broker,
		Repository: outbox.NewRepository(gormDB),
		DLQ:        outbox.NewDLQRepository(gormDB),
		Registry:   routes,
		Publishers: publishers.For,
	})
	bootstrap.Must(ctx, logg, "failed to create outbox publisher", err)

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}
