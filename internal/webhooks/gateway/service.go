package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	defaultFailureReason = "payment failed"
	cancelledReason      = "cancelled by user"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus, notes string, actor authz.Subject) (*models.Order, error)
	AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor authz.Subject) error
}

type stockReleaser interface {
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]inventory.Result, error)
}

type ServiceParams struct {
	Payments          payments.Repository
	Orders            orders.Repository
	Transitions       orderTransitioner
	Inventory         stockReleaser
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service applies gateway notifications to payments, orders and stock in one
// transaction per delivery.
type Service struct {
	payments    payments.Repository
	orders      orders.Repository
	transitions orderTransitioner
	inventory   stockReleaser
	outbox      outbox.Emitter
	txRunner    txRunner
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Transitions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments:    params.Payments,
		orders:      params.Orders,
		transitions: params.Transitions,
		inventory:   params.Inventory,
		outbox:      params.Outbox,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// HandleEvent reconciles one delivery. A payment that is already completed or
// failed makes the delivery a duplicate with no writes.
func (s *Service) HandleEvent(ctx context.Context, event Event) (Outcome, error) {
	if !event.Event.Known() {
		return OutcomeIgnored, nil
	}
	sessionID := strings.TrimSpace(event.SessionID)
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "sessionId is required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"webhook_event": string(event.Event),
		"session_id":    sessionID,
	})

	outcome := OutcomeProcessed
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := s.payments.WithTx(tx).FindByExternalIDForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		if payment.Status != enums.PaymentStatusPending {
			outcome = OutcomeDuplicate
			return nil
		}
		ctx = s.logg.WithOrderID(ctx, payment.OrderID.String())

		if event.Event == EventPaymentCompleted {
			return s.completed(ctx, tx, payment, event)
		}
		reason := strings.TrimSpace(event.Reason)
		if event.Event == EventPaymentCancelled {
			reason = cancelledReason
		} else if reason == "" {
			reason = defaultFailureReason
		}
		return s.failed(ctx, tx, payment, event, reason)
	})
	if err != nil {
		return "", err
	}

	s.logg.Info(s.logg.WithField(ctx, "outcome", string(outcome)), "gateway webhook reconciled")
	return outcome, nil
}

func (s *Service) completed(ctx context.Context, tx *gorm.DB, payment *models.Payment, event Event) error {
	if event.Amount != nil && !event.Amount.Equal(payment.Amount) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"expected_amount": payment.Amount.StringFixed(2),
			"reported_amount": event.Amount.StringFixed(2),
		}), "gateway reported a different amount")
	}

	metadata := dbtypes.JSONMap{}
	for k, v := range payment.Metadata {
		metadata[k] = v
	}
	if event.CardLast4 != "" {
		metadata["cardLast4"] = event.CardLast4
	}
	if event.CardBrand != "" {
		metadata["cardBrand"] = event.CardBrand
	}
	if err := s.payments.WithTx(tx).MarkCompleted(ctx, payment.ID, payments.Completion{
		TransactionID:  event.TransactionID,
		ExternalStatus: event.Status,
		Metadata:       metadata,
		ProcessedAt:    event.OccurredAt(s.now().UTC()),
	}); err != nil {
		return markError(err)
	}

	order, err := s.orders.WithTx(tx).LockByID(ctx, payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	system := authz.Subject{}
	if !order.Status.HoldsReservation() {
		// Staff already marked the order paid, or it can no longer be paid
		// (e.g. the sweep cancelled it). Keep the record and leave stock alone.
		s.logg.Warn(s.logg.WithField(ctx, "order_status", string(order.Status)), "payment completed for an order that is not awaiting payment")
		note := fmt.Sprintf("Payment %s confirmed by the gateway after the order was %s", payment.ExternalID, order.Status)
		if order.Status == enums.OrderStatusCancelled || order.Status == enums.OrderStatusRefunded {
			note = fmt.Sprintf("Payment %s completed while order was %s; refund required", payment.ExternalID, order.Status)
		}
		return s.transitions.AppendNote(ctx, tx, order.ID, note, system)
	}

	if order.Status == enums.OrderStatusDraft {
		if _, err := s.transitions.TransitionTx(ctx, tx, order.ID, enums.OrderStatusPendingPayment, "Awaiting payment confirmation", system); err != nil {
			return err
		}
	}
	note := "Payment confirmed"
	if event.TransactionID != "" {
		note += " (transaction " + event.TransactionID + ")"
	}
	// the paid transition sells the order's stock
	if _, err := s.transitions.TransitionTx(ctx, tx, order.ID, enums.OrderStatusPaid, note, system); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			PaymentID:     payment.ID,
			ExternalID:    payment.ExternalID,
			TransactionID: event.TransactionID,
			Amount:        payment.Amount.StringFixed(2),
			Currency:      payment.Currency,
		},
	})
}

// failed records the failure and gives the order's stock back unless another
// attempt is still pending and needs it. The order itself stays
// pending_payment so the customer can retry.
func (s *Service) failed(ctx context.Context, tx *gorm.DB, payment *models.Payment, event Event, reason string) error {
	if err := s.payments.WithTx(tx).MarkFailed(ctx, payment.ID, payments.Failure{
		Reason:         reason,
		ExternalStatus: event.Status,
		ProcessedAt:    event.OccurredAt(s.now().UTC()),
	}); err != nil {
		return markError(err)
	}

	order, err := s.orders.WithTx(tx).LockByID(ctx, payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	system := authz.Subject{}
	if err := s.transitions.AppendNote(ctx, tx, order.ID, "Payment failed: "+reason, system); err != nil {
		return err
	}
	open, err := s.hasPendingAttempt(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if order.Status.HoldsReservation() && !open {
		if _, err := s.inventory.ReleaseOrder(ctx, tx, order.ID, nil); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentStatusEvent{
			OrderID:    order.ID,
			PaymentID:  payment.ID,
			ExternalID: payment.ExternalID,
			Status:     enums.PaymentStatusFailed,
			Reason:     reason,
		},
	})
}

func (s *Service) hasPendingAttempt(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	attempts, err := s.payments.WithTx(tx).ListByOrder(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	for _, p := range attempts {
		if p.Status == enums.PaymentStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func markError(err error) error {
	if errors.Is(err, payments.ErrNotPending) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment changed concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment")
}
