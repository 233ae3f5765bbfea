package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultExpiryBatch = 100
	expiryNote         = "cancelled automatically: payment not received in time"
)

var expirableStatuses = []enums.OrderStatus{
	enums.OrderStatusDraft,
	enums.OrderStatusPendingPayment,
}

type staleOrderFinder interface {
	FindStale(ctx context.Context, statuses []enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
}

// PendingOrderExpiryJobParams configure the unpaid order sweep.
type PendingOrderExpiryJobParams struct {
	Logger      *logger.Logger
	Orders      staleOrderFinder
	Transitions orderTransitioner
	After       time.Duration
	BatchSize   int
}

// NewPendingOrderExpiryJob builds the sweep that cancels orders left unpaid
// for longer than After. Each cancellation runs in its own transaction and
// hands reserved stock back through the normal transition path.
func NewPendingOrderExpiryJob(params PendingOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order finder required")
	}
	if params.Transitions == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if params.After <= 0 {
		return nil, fmt.Errorf("expiry threshold must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &pendingOrderExpiryJob{
		logg:        params.Logger,
		orders:      params.Orders,
		transitions: params.Transitions,
		after:       params.After,
		batch:       batch,
		now:         time.Now,
	}, nil
}

type pendingOrderExpiryJob struct {
	logg        *logger.Logger
	orders      staleOrderFinder
	transitions orderTransitioner
	after       time.Duration
	batch       int
	now         func() time.Time
}

func (j *pendingOrderExpiryJob) Name() string { return "pending-order-expiry" }

func (j *pendingOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	stale, err := j.orders.FindStale(ctx, expirableStatuses, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("load stale orders: %w", err)
	}

	var (
		errs      error
		cancelled int
		skipped   int
	)
	for _, order := range stale {
		_, err := j.transitions.Transition(ctx, orders.TransitionInput{
			OrderID: order.ID,
			To:      enums.OrderStatusCancelled,
			Notes:   expiryNote,
			Actor:   authz.System(),
		})
		switch {
		case err == nil:
			cancelled++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			// paid or cancelled between the scan and the lock
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"scanned":   len(stale),
		"cancelled": cancelled,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	}), "pending order sweep complete")
	return errs
}
