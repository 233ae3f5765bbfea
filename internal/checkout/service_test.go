package checkout

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubGateway struct {
	calls int
	err   error
}

func (g *stubGateway) CreateSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &payments.Session{SessionID: "sess_" + req.OrderID.String()[:8], PaymentURL: "https://pay.test/" + req.OrderNumber}, nil
}

type recordingEmitter struct{ events []outbox.DomainEvent }

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type harness struct {
	svc     Service
	orders  orders.Service
	conn    *gorm.DB
	gateway *stubGateway
	events  *recordingEmitter
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	runner := dbpkg.NewFromGorm(conn)
	events := &recordingEmitter{}
	policy := authz.DefaultPolicy()
	catalogRepo := catalog.NewRepository(conn)

	inv, err := inventory.NewService(inventory.NewRepository(conn), runner, events, logg)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(conn)
	payRepo := payments.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.Deps{
		Repo: orderRepo, Tx: runner, Outbox: events, Inventory: inv,
		Payments: payments.NewOfflineLedger(payRepo),
		Authz: policy, Images: catalogRepo, Logger: logg,
	})
	require.NoError(t, err)

	gateway := &stubGateway{}
	paySvc, err := payments.NewService(payments.Deps{
		Repo: payRepo, Orders: orderRepo, OrderNotes: orderSvc,
		Inventory: inv, Gateway: gateway, Tx: runner, Outbox: events, Authz: policy,
		MerchantID: "m_test", URLs: payments.URLs{Return: "https://shop.test/checkout/complete"}, Logger: logg,
	})
	require.NoError(t, err)

	svc, err := NewService(runner, catalogRepo, inv, orderRepo, paySvc, events, policy, logg)
	require.NoError(t, err)
	return harness{svc: svc, orders: orderSvc, conn: conn, gateway: gateway, events: events}
}

func buyer() authz.Subject {
	return authz.Subject{UserID: uuid.New(), Roles: []enums.Role{enums.RoleCustomer}}
}

func input(actor authz.Subject, method enums.PaymentMethod, lines ...CartLine) CheckoutInput {
	return CheckoutInput{
		Cart:          Cart{Lines: lines, ShippingMethod: enums.ShippingMethodStandard},
		PaymentMethod: method,
		Customer:      Customer{Email: " Dana@Example.com ", Name: "Dana Buyer"},
		ShippingAddress: types.Address{
			Name: "Dana Buyer", Line1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "12345",
		},
		Actor: actor,
	}
}

func TestCheckoutReservesStockAndOpensPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := dbtest.SeedVariant(t, h.conn, "50.00", 2)
	actor := buyer()

	result, err := h.svc.Checkout(ctx, input(actor, enums.PaymentMethodCard, CartLine{VariantID: v.Variant.ID, Quantity: 2}))
	require.NoError(t, err)

	order := dbtest.ReloadOrder(t, h.conn, result.Order.ID)
	assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, "100", order.Subtotal.String())
	assert.True(t, order.ShippingCost.IsZero())
	assert.Equal(t, "8", order.TaxAmount.String())
	assert.Equal(t, "108", order.Total.String())
	assert.True(t, order.Total.Equal(order.Subtotal.Add(order.ShippingCost).Add(order.TaxAmount).Sub(order.DiscountAmount)))
	assert.Equal(t, "dana@example.com", order.CustomerEmail)
	assert.Equal(t, "US", order.ShippingAddress.Country)
	require.True(t, order.OwnedBy(actor.UserID))

	item := dbtest.ReloadItem(t, h.conn, v.Variant.ID)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, 2, item.ReservedQuantity)

	require.NotNil(t, result.PaymentURL)
	assert.Equal(t, 1, h.gateway.calls)
	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.True(t, strings.HasPrefix(result.Payment.ExternalID, "sess_"))

	var items []models.OrderItem
	require.NoError(t, h.conn.Where("order_id = ?", order.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, v.Variant.SKU, items[0].SKU)
	assert.Equal(t, "50", items[0].UnitPrice.String())

	var history []models.OrderStatusHistory
	require.NoError(t, h.conn.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, enums.OrderStatusPendingPayment, history[0].ToStatus)

	var created int
	for _, e := range h.events.events {
		if e.EventType == enums.EventOrderCreated {
			created++
			assert.Equal(t, order.ID, e.AggregateID)
		}
	}
	assert.Equal(t, 1, created)
}

func TestCheckoutCashOnDeliveryStartsAsDraft(t *testing.T) {
	h := newHarness(t)
	v := dbtest.SeedVariant(t, h.conn, "12.50", 5)

	result, err := h.svc.Checkout(context.Background(), input(authz.Subject{}, enums.PaymentMethodCashOnDelivery, CartLine{VariantID: v.Variant.ID, Quantity: 1}))
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusDraft, result.Order.Status)
	assert.True(t, result.Order.IsGuest())
	assert.Nil(t, result.PaymentURL)
	assert.True(t, strings.HasPrefix(result.Payment.ExternalID, "cod_"))
	assert.Zero(t, h.gateway.calls)
	// 12.50 + 9.99 shipping + 1.00 tax
	assert.Equal(t, "23.49", result.Order.Total.StringFixed(2))
	assert.Equal(t, 1, dbtest.ReloadItem(t, h.conn, v.Variant.ID).ReservedQuantity)
}

func TestCashOnDeliveryOrderSellsStockWhenStaffConfirmPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := dbtest.SeedVariant(t, h.conn, "12.50", 2)

	result, err := h.svc.Checkout(ctx, input(buyer(), enums.PaymentMethodCashOnDelivery, CartLine{VariantID: v.Variant.ID, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, 2, dbtest.ReloadItem(t, h.conn, v.Variant.ID).ReservedQuantity)

	clerk := authz.Subject{UserID: uuid.New(), Roles: []enums.Role{enums.RoleStaff}}
	steps := []enums.OrderStatus{
		enums.OrderStatusPendingPayment,
		enums.OrderStatusPaid,
		enums.OrderStatusProcessing,
		enums.OrderStatusPacking,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
	}
	for _, to := range steps {
		_, err := h.orders.Transition(ctx, orders.TransitionInput{OrderID: result.Order.ID, To: to, Actor: clerk})
		require.NoError(t, err, "transition to %s", to)
	}

	item := dbtest.ReloadItem(t, h.conn, v.Variant.ID)
	assert.Equal(t, 0, item.Quantity)
	assert.Equal(t, 0, item.ReservedQuantity)

	var sales []models.InventoryMovement
	require.NoError(t, h.conn.Where("variant_id = ? AND type = ?", v.Variant.ID, enums.MovementSale).Find(&sales).Error)
	require.Len(t, sales, 1)
	assert.Equal(t, -2, sales[0].Quantity)

	var payment models.Payment
	require.NoError(t, h.conn.Where("order_id = ?", result.Order.ID).First(&payment).Error)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.NotNil(t, payment.ProcessedAt)
	assert.Equal(t, enums.OrderStatusDelivered, dbtest.ReloadOrder(t, h.conn, result.Order.ID).Status)
}

func TestCheckoutGatewayFailureLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)
	v := dbtest.SeedVariant(t, h.conn, "20.00", 3)
	h.gateway.err = pkgerrors.New(pkgerrors.CodeDependency, "gateway unavailable")

	_, err := h.svc.Checkout(context.Background(), input(buyer(), enums.PaymentMethodCard, CartLine{VariantID: v.Variant.ID, Quantity: 3}))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	assert.Equal(t, 0, dbtest.ReloadItem(t, h.conn, v.Variant.ID).ReservedQuantity)
	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, h.conn.Model(&models.InventoryMovement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestValidateCollectsEveryFailingLine(t *testing.T) {
	h := newHarness(t)
	ok := dbtest.SeedVariant(t, h.conn, "10.00", 10)
	short := dbtest.SeedVariant(t, h.conn, "10.00", 3, dbtest.WithReserved(2))
	repriced := dbtest.SeedVariant(t, h.conn, "15.00", 10)
	inactive := dbtest.SeedVariant(t, h.conn, "10.00", 10, dbtest.Inactive())
	hidden := dbtest.SeedVariant(t, h.conn, "10.00", 10, dbtest.InactiveProduct())
	stale := decimal.RequireFromString("12.00")

	_, err := h.svc.Validate(context.Background(), Cart{
		ShippingMethod: enums.ShippingMethodExpress,
		Lines: []CartLine{
			{VariantID: ok.Variant.ID, Quantity: 1},
			{VariantID: short.Variant.ID, Quantity: 2},
			{VariantID: repriced.Variant.ID, Quantity: 1, ExpectedUnitPrice: &stale},
			{VariantID: inactive.Variant.ID, Quantity: 1},
			{VariantID: hidden.Variant.ID, Quantity: 1},
			{VariantID: uuid.New(), Quantity: 1},
			{VariantID: ok.Variant.ID, Quantity: 0},
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	failures := checkout.LineErrorsFrom(err)
	require.Len(t, failures, 6)
	issues := map[int]checkout.LineIssue{}
	for _, f := range failures {
		issues[f.Index] = f.Issue
	}
	assert.Equal(t, map[int]checkout.LineIssue{
		1: checkout.IssueInsufficientStock,
		2: checkout.IssuePriceChanged,
		3: checkout.IssueVariantInactive,
		4: checkout.IssueProductInactive,
		5: checkout.IssueVariantNotFound,
		6: checkout.IssueInvalidQuantity,
	}, issues)
	require.NotNil(t, failures[0].Available)
	assert.Equal(t, 1, *failures[0].Available)
	assert.Equal(t, "15", failures[1].CurrentPrice.String())

	assert.Equal(t, 0, dbtest.ReloadItem(t, h.conn, ok.Variant.ID).ReservedQuantity)
}

func TestValidateSumsRepeatedVariantLines(t *testing.T) {
	h := newHarness(t)
	v := dbtest.SeedVariant(t, h.conn, "30.00", 3)

	_, err := h.svc.Validate(context.Background(), Cart{
		ShippingMethod: enums.ShippingMethodStandard,
		Lines:          []CartLine{{VariantID: v.Variant.ID, Quantity: 2}, {VariantID: v.Variant.ID, Quantity: 2}},
	})
	failures := checkout.LineErrorsFrom(err)
	require.Len(t, failures, 2)
	assert.Equal(t, checkout.IssueInsufficientStock, failures[0].Issue)

	draft, err := h.svc.Validate(context.Background(), Cart{
		ShippingMethod: enums.ShippingMethodStandard,
		Lines:          []CartLine{{VariantID: v.Variant.ID, Quantity: 1}, {VariantID: v.Variant.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "90", draft.Totals.Subtotal.String())
	assert.Equal(t, "9.99", draft.Totals.ShippingCost.String())
	assert.Equal(t, "7.2", draft.Totals.TaxAmount.String())
	assert.Equal(t, "107.19", draft.Totals.Total.String())
}

func TestCheckoutRejectsIncompleteDetails(t *testing.T) {
	h := newHarness(t)
	v := dbtest.SeedVariant(t, h.conn, "10.00", 1)
	in := input(buyer(), enums.PaymentMethodCard, CartLine{VariantID: v.Variant.ID, Quantity: 1})
	in.ShippingAddress.City = " "
	in.Customer.Email = ""

	_, err := h.svc.Checkout(context.Background(), in)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "shippingAddress.city")
	assert.Contains(t, details, "customer.email")
	assert.Zero(t, h.gateway.calls)
}

func TestCheckoutRequiresCreatePermission(t *testing.T) {
	h := newHarness(t)
	v := dbtest.SeedVariant(t, h.conn, "10.00", 1)
	nobody := authz.Subject{UserID: uuid.New()}

	_, err := h.svc.Checkout(context.Background(), input(nobody, enums.PaymentMethodCard, CartLine{VariantID: v.Variant.ID, Quantity: 1}))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
