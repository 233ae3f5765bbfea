package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestRunFailsFastOnUnreadyDependency(t *testing.T) {
	started := false
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Dependencies: map[string]func(context.Context) error{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
		Consumers: map[string]runner{"order-emails": runnerFunc(func(context.Context) error {
			started = true
			return nil
		})},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis not ready")
	assert.False(t, started)
}

func TestRunStopsSiblingsWhenConsumerFails(t *testing.T) {
	stopped := make(chan struct{})
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Consumers: map[string]runner{
			"broken": runnerFunc(func(context.Context) error { return errors.New("subscription deleted") }),
			"healthy": runnerFunc(func(ctx context.Context) error {
				<-ctx.Done()
				close(stopped)
				return ctx.Err()
			}),
		},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("healthy consumer was not cancelled")
	}
}

func TestRunReturnsCancellation(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Consumers: map[string]runner{"order-emails": runnerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: quietLogger()})
	assert.Error(t, err)
}
