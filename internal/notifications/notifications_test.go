package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type captureSender struct {
	sent []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

type stubOrders map[uuid.UUID]models.Order

func (s stubOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &order, nil
}

type memoryTracker struct {
	seen    map[uuid.UUID]bool
	deleted int
}

func (m *memoryTracker) Claim(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memoryTracker) Release(_ context.Context, _ string, id uuid.UUID) error {
	delete(m.seen, id)
	m.deleted++
	return nil
}

func sampleOrder() models.Order {
	return models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20261015-ABCDEF12",
		CustomerEmail: "dana@example.com",
		CustomerName:  "Dana <Buyer>",
		Total:         decimal.RequireFromString("108"),
		Currency:      "USD",
	}
}

func TestEmailsRenderEscapedHTML(t *testing.T) {
	sender := &captureSender{}
	emails, err := NewEmails(sender, "https://shop.test")
	require.NoError(t, err)
	order := sampleOrder()

	require.NoError(t, emails.OrderShipped(context.Background(), order))
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "dana@example.com", msg.To)
	assert.Equal(t, "Your order has shipped (ORD-20261015-ABCDEF12)", msg.Subject)
	assert.Contains(t, msg.HTML, "Dana &lt;Buyer&gt;")
	assert.Contains(t, msg.HTML, "108.00 USD")
	assert.Contains(t, msg.HTML, "https://shop.test/orders/"+order.ID.String())

	order.CustomerEmail = ""
	assert.Error(t, emails.OrderDelivered(context.Background(), order))
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotBody string
	)
	sender := &SMTPSender{
		cfg: config.SMTPConfig{Host: "smtp.test", Port: 2525, Username: "u", Password: "p", From: "orders@shop.test"},
		send: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotBody = addr, to, string(msg)
			return nil
		},
	}
	require.NoError(t, sender.Send(context.Background(), Message{To: "dana@example.com", Subject: "Hi", HTML: "<p>x</p>"}))
	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, []string{"dana@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotBody, "From: orders@shop.test\r\nTo: dana@example.com\r\nSubject: Hi\r\n"))
	assert.True(t, strings.HasSuffix(gotBody, "\r\n\r\n<p>x</p>"))

	assert.Error(t, sender.Send(context.Background(), Message{To: "a@b.c\r\nBcc: x@y.z", Subject: "Hi"}))
}

func TestNewSenderFallsBackToLogging(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	_, ok := NewSender(config.SMTPConfig{}, logg).(*LogSender)
	assert.True(t, ok)
	_, ok = NewSender(config.SMTPConfig{Host: "smtp.test"}, logg).(*SMTPSender)
	assert.True(t, ok)
}

func envelope(t *testing.T, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.New(), OccurredAt: time.Now(), Data: raw})
	require.NoError(t, err)
	return out
}

func TestConsumerHandle(t *testing.T) {
	order := sampleOrder()
	sender := &captureSender{}
	emails, err := NewEmails(sender, "")
	require.NoError(t, err)
	tracker := &memoryTracker{seen: map[uuid.UUID]bool{}}
	c := &Consumer{
		orders:      stubOrders{order.ID: order},
		emails:      emails,
		idempotency: tracker,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	ctx := context.Background()

	paid := envelope(t, payloads.OrderPaidEvent{OrderID: order.ID})
	assert.True(t, c.handle(ctx, string(enums.EventOrderPaid), paid))
	assert.True(t, c.handle(ctx, string(enums.EventOrderPaid), paid))
	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasPrefix(sender.sent[0].Subject, "Payment received"))

	failed := envelope(t, payloads.PaymentStatusEvent{OrderID: order.ID, Reason: "card declined"})
	assert.True(t, c.handle(ctx, string(enums.EventPaymentFailed), failed))
	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[1].HTML, "card declined")

	cancelled := envelope(t, payloads.OrderCanceledEvent{OrderID: order.ID, RequiresRefund: true})
	assert.True(t, c.handle(ctx, string(enums.EventOrderCanceled), cancelled))
	assert.Contains(t, sender.sent[2].HTML, "refunded")

	// unrelated events, garbage and unknown orders are acked without email
	assert.True(t, c.handle(ctx, string(enums.EventLowStock), []byte("{}")))
	assert.True(t, c.handle(ctx, string(enums.EventOrderPaid), []byte("not json")))
	assert.True(t, c.handle(ctx, string(enums.EventOrderPaid), envelope(t, payloads.OrderPaidEvent{OrderID: uuid.New()})))
	assert.Len(t, sender.sent, 3)

	// a send failure nacks and clears the mark for redelivery
	sender.err = errors.New("smtp down")
	retry := envelope(t, payloads.OrderPaidEvent{OrderID: order.ID})
	assert.False(t, c.handle(ctx, string(enums.EventOrderPaid), retry))
	assert.Equal(t, 1, tracker.deleted)
	sender.err = nil
	assert.True(t, c.handle(ctx, string(enums.EventOrderPaid), retry))
	assert.Len(t, sender.sent, 4)
}
