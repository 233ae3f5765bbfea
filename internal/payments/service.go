package payments

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
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const cashOnDeliveryPrefix = "cod_"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderReserver interface {
	ReserveOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]inventory.Result, error)
}

type orderNoter interface {
	AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor authz.Subject) error
}

// URLs are the storefront addresses the gateway redirects and posts back to.
type URLs struct {
	Return string
	Cancel string
	Notify string
}

// Attempt is a freshly opened payment and, for gateway methods, where to send the customer.
type Attempt struct {
	Payment    models.Payment
	PaymentURL *string
}

// RetryInput starts a new payment attempt for an unpaid order.
type RetryInput struct {
	OrderID uuid.UUID
	Method  enums.PaymentMethod
	Actor   authz.Subject
}

// Service opens payment attempts.
type Service interface {
	Open(ctx context.Context, tx *gorm.DB, order models.Order) (*Attempt, error)
	Retry(ctx context.Context, input RetryInput) (*Attempt, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID, actor authz.Subject) ([]models.Payment, error)
}

// Deps groups the collaborators of the payment service.
type Deps struct {
	Repo       Repository
	Orders     orders.Repository
	OrderNotes orderNoter
	Inventory  orderReserver
	Gateway    Gateway
	Tx         txRunner
	Outbox     outbox.Emitter
	Authz      authz.Authorizer
	MerchantID string
	URLs       URLs
	Logger     *logger.Logger
}

type service struct {
	deps Deps
	now  func() time.Time
}

// NewService builds the payment service.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.OrderNotes == nil:
		return nil, fmt.Errorf("order history writer required")
	case deps.Inventory == nil:
		return nil, fmt.Errorf("inventory reserver required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Authz == nil:
		return nil, fmt.Errorf("authorizer required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{deps: deps, now: time.Now}, nil
}

// Open records a pending payment for the order inside tx. Gateway methods get
// a hosted session first so a gateway failure rolls the caller back; cash on
// delivery gets a local reference and never waits for a webhook.
func (s *service) Open(ctx context.Context, tx *gorm.DB, order models.Order) (*Attempt, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	payment := models.Payment{
		OrderID:  order.ID,
		Method:   order.PaymentMethod,
		Status:   enums.PaymentStatusPending,
		Amount:   order.Total,
		Currency: order.Currency,
		Metadata: dbtypes.JSONMap{},
	}

	if order.PaymentMethod.RequiresGateway() {
		session, err := s.deps.Gateway.CreateSession(ctx, SessionRequest{
			MerchantID:    s.deps.MerchantID,
			Amount:        order.Total,
			Currency:      order.Currency,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.CustomerEmail,
			ReturnURL:     withOrder(s.deps.URLs.Return, order.ID),
			CancelURL:     withOrder(s.deps.URLs.Cancel, order.ID),
			NotifyURL:     s.deps.URLs.Notify,
		})
		if err != nil {
			return nil, err
		}
		payment.ExternalID = session.SessionID
		payment.PaymentURL = &session.PaymentURL
		payment.ExpiresAt = session.ExpiresAt
	} else {
		payment.ExternalID = cashOnDeliveryPrefix + uuid.NewString()
	}

	if err := s.deps.Repo.WithTx(tx).Create(ctx, &payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
	}
	return &Attempt{Payment: payment, PaymentURL: payment.PaymentURL}, nil
}

// Retry opens a new attempt for an order still waiting for payment. Stock the
// order gave back when the last attempt failed is reserved again first. An
// unexpired gateway session blocks the retry, since the customer may still pay
// through it.
func (s *service) Retry(ctx context.Context, input RetryInput) (*Attempt, error) {
	if input.Actor.IsSystem() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !s.deps.Authz.Allowed(input.Actor.Roles, authz.ResourcePayments, authz.ActionRetry) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Insufficient permissions")
	}

	var attempt *Attempt
	err := s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.deps.Orders.WithTx(tx)
		order, err := orderRepo.LockByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if !order.OwnedBy(input.Actor.UserID) && !authz.IsStaff(s.deps.Authz, input.Actor.Roles) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Insufficient permissions")
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only orders awaiting payment can be retried").
				WithDetails(map[string]any{"status": order.Status})
		}

		method := input.Method
		if method == "" {
			method = order.PaymentMethod
		}
		if !method.RequiresGateway() {
			return pkgerrors.New(pkgerrors.CodeValidation, "retry requires an online payment method").
				WithDetails(map[string]any{"method": method})
		}
		if method != order.PaymentMethod {
			if err := orderRepo.Update(ctx, order.ID, map[string]any{"payment_method": method}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment method")
			}
			order.PaymentMethod = method
		}

		if err := s.ensureNoLiveAttempt(ctx, tx, order.ID); err != nil {
			return err
		}

		if _, err := s.deps.Inventory.ReserveOrder(ctx, tx, order.ID, input.Actor.ActorID()); err != nil {
			return err
		}

		attempt, err = s.Open(ctx, tx, *order)
		if err != nil {
			return err
		}

		if err := s.deps.OrderNotes.AppendNote(ctx, tx, order.ID, "Payment retried with "+string(method), input.Actor); err != nil {
			return err
		}

		return s.deps.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRetried,
			AggregateType: enums.AggregatePayment,
			AggregateID:   attempt.Payment.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, input.Actor.Roles),
			Data: payloads.PaymentStatusEvent{
				OrderID:    order.ID,
				PaymentID:  attempt.Payment.ID,
				ExternalID: attempt.Payment.ExternalID,
				Status:     attempt.Payment.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info(s.deps.Logger.WithFields(ctx, map[string]any{
		"order_id":    input.OrderID.String(),
		"payment_id":  attempt.Payment.ID.String(),
		"external_id": attempt.Payment.ExternalID,
	}), "payment retry opened")
	return attempt, nil
}

func (s *service) ensureNoLiveAttempt(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	attempts, err := s.deps.Repo.WithTx(tx).ListByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	now := s.now().UTC()
	for _, p := range attempts {
		if p.Status != enums.PaymentStatusPending || !p.Method.RequiresGateway() {
			continue
		}
		if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
			continue
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "a payment attempt is still in progress").
			WithDetails(map[string]any{"paymentId": p.ID, "expiresAt": p.ExpiresAt})
	}
	return nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID, actor authz.Subject) ([]models.Payment, error) {
	order, err := s.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	canReadAll := s.deps.Authz.Allowed(actor.Roles, authz.ResourcePayments, authz.ActionRead)
	if !canReadAll && !order.OwnedBy(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Insufficient permissions")
	}
	rows, err := s.deps.Repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return rows, nil
}

func withOrder(base string, orderID uuid.UUID) string {
	if strings.TrimSpace(base) == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "order=" + orderID.String()
}

