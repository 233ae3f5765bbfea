package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const orderEmailConsumer = "order-emails"

type orderLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type eventClaims interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns payment and cancellation domain events into customer email.
type Consumer struct {
	orders       orderLoader
	emails       *Emails
	subscription *pubsub.Subscriber
	idempotency  eventClaims
	logg         *logger.Logger
}

// NewConsumer builds the order email consumer.
func NewConsumer(orders orderLoader, emails *Emails, subscription *pubsub.Subscriber, tracker eventClaims, logg *logger.Logger) (*Consumer, error) {
	if orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if emails == nil {
		return nil, fmt.Errorf("emails required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notifications subscription required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		orders:       orders,
		emails:       emails,
		subscription: subscription,
		idempotency:  tracker,
		logg:         logg,
	}, nil
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ctx = c.logg.WithField(ctx, "message_id", msg.ID)
		if c.handle(ctx, msg.Attributes["event_type"], msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handle reports whether the message should be acknowledged. Malformed
// messages are acked since redelivery cannot fix them.
func (c *Consumer) handle(ctx context.Context, eventType string, data []byte) bool {
	ctx = c.logg.WithField(ctx, "event_type", eventType)
	switch enums.OutboxEventType(eventType) {
	case enums.EventOrderPaid, enums.EventPaymentFailed, enums.EventOrderCanceled:
	default:
		return true
	}

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(ctx, "undecodable envelope", err)
		return true
	}
	eventID := envelope.EventID

	first, err := c.idempotency.Claim(ctx, orderEmailConsumer, eventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	if !first {
		c.logg.Info(ctx, "event already processed")
		return true
	}

	if err := c.dispatch(ctx, enums.OutboxEventType(eventType), envelope.Data); err != nil {
		if errors.Is(err, errSkip) {
			return true
		}
		c.logg.Error(ctx, "order email failed", err)
		if delErr := c.idempotency.Release(ctx, orderEmailConsumer, eventID); delErr != nil {
			c.logg.Error(ctx, "failed to clear idempotency mark", delErr)
		}
		return false
	}
	return true
}

var errSkip = errors.New("skip")

func (c *Consumer) dispatch(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage) error {
	switch eventType {
	case enums.EventOrderPaid:
		var payload payloads.OrderPaidEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		order, err := c.load(ctx, payload.OrderID)
		if err != nil {
			return err
		}
		return c.emails.OrderPaid(ctx, *order)
	case enums.EventPaymentFailed:
		var payload payloads.PaymentStatusEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		order, err := c.load(ctx, payload.OrderID)
		if err != nil {
			return err
		}
		return c.emails.PaymentFailed(ctx, *order, payload.Reason)
	case enums.EventOrderCanceled:
		var payload payloads.OrderCanceledEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		order, err := c.load(ctx, payload.OrderID)
		if err != nil {
			return err
		}
		return c.emails.OrderCancelled(ctx, *order, payload.RequiresRefund)
	}
	return errSkip
}

func (c *Consumer) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := c.orders.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.logg.Warn(c.logg.WithField(ctx, "order_id", orderID.String()), "order for email not found")
		return nil, errSkip
	}
	return order, err
}
