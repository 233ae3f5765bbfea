// Package bootstrap holds the start-up steps shared by every binary under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Start loads .env when present, reads the configuration and returns a
// logger tuned by it. A configuration error ends the process.
func Start(service string) (*config.Config, *logger.Logger) {
	cfg, logg, err := load(service, os.Stdout)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	return cfg, logg
}

func load(service string, out io.Writer) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: service, Output: out})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, err
	}
	return cfg, logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Output:      out,
	}), nil
}

// Must ends the process when err is set.
func Must(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

// Close closes c and logs a failure. Meant for defer.
func Close(logg *logger.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logg.Error(context.Background(), fmt.Sprintf("error closing %s", what), err)
	}
}
