package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const defaultCurrency = "USD"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReader interface {
	Get(ctx context.Context, variantID uuid.UUID) (*models.InventoryItem, error)
	ReserveOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]inventory.Result, error)
}

type paymentOpener interface {
	Open(ctx context.Context, tx *gorm.DB, order models.Order) (*payments.Attempt, error)
}

// Service turns carts into orders.
type Service interface {
	Validate(ctx context.Context, cart Cart) (*Draft, error)
	Checkout(ctx context.Context, input CheckoutInput) (*Result, error)
}

type service struct {
	tx        txRunner
	catalog   catalog.VariantLookup
	inventory stockReader
	orders    orders.Repository
	payments  paymentOpener
	outbox    outbox.Emitter
	authz     authz.Authorizer
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	variants catalog.VariantLookup,
	stock stockReader,
	ordersRepo orders.Repository,
	opener paymentOpener,
	publisher outbox.Emitter,
	authorizer authz.Authorizer,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if variants == nil {
		return nil, fmt.Errorf("variant lookup required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if opener == nil {
		return nil, fmt.Errorf("payment opener required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:        tx,
		catalog:   variants,
		inventory: stock,
		orders:    ordersRepo,
		payments:  opener,
		outbox:    publisher,
		authz:     authorizer,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Validate prices the cart against the live catalog and stock without
// writing anything. Every failing line is reported together.
func (s *service) Validate(ctx context.Context, cart Cart) (*Draft, error) {
	if len(cart.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	if !cart.ShippingMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping method").
			WithDetails(map[string]any{"shippingMethod": cart.ShippingMethod})
	}

	ids := make([]uuid.UUID, 0, len(cart.Lines))
	requested := make(map[uuid.UUID]int, len(cart.Lines))
	for _, line := range cart.Lines {
		if _, seen := requested[line.VariantID]; !seen {
			ids = append(ids, line.VariantID)
		}
		if line.Quantity > 0 {
			requested[line.VariantID] += line.Quantity
		}
	}

	variants, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	available, err := s.available(ctx, variants)
	if err != nil {
		return nil, err
	}

	var (
		failures []checkout.LineError
		lines    = make([]DraftLine, 0, len(cart.Lines))
		subtotal = decimal.Zero
	)
	for i, line := range cart.Lines {
		fail := checkout.LineError{Index: i, VariantID: line.VariantID, Requested: line.Quantity}
		if line.Quantity <= 0 {
			fail.Issue = checkout.IssueInvalidQuantity
			failures = append(failures, fail)
			continue
		}
		variant, ok := variants[line.VariantID]
		switch {
		case !ok:
			fail.Issue = checkout.IssueVariantNotFound
		case !variant.ProductIsActive:
			fail.Issue = checkout.IssueProductInactive
		case !variant.IsActive:
			fail.Issue = checkout.IssueVariantInactive
		case available[line.VariantID] < requested[line.VariantID]:
			free := available[line.VariantID]
			fail.Issue = checkout.IssueInsufficientStock
			fail.Available = &free
		case line.ExpectedUnitPrice != nil && !line.ExpectedUnitPrice.Equal(variant.Price):
			expected, current := *line.ExpectedUnitPrice, variant.Price
			fail.Issue = checkout.IssuePriceChanged
			fail.ExpectedPrice = &expected
			fail.CurrentPrice = &current
		}
		if fail.Issue != "" {
			failures = append(failures, fail)
			continue
		}

		lineTotal := checkout.LineSubtotal(variant.Price, line.Quantity)
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, DraftLine{
			Variant:   variant,
			VariantID: variant.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: variant.Price,
			Subtotal:  lineTotal,
		})
	}
	if err := checkout.LineErrors(failures); err != nil {
		return nil, err
	}

	return &Draft{
		Lines:  lines,
		Totals: checkout.CalculateOrderTotals(subtotal, cart.ShippingMethod, decimal.Zero),
	}, nil
}

// available returns quantity minus reserved per variant; variants without an
// inventory row have nothing to sell.
func (s *service) available(ctx context.Context, variants map[uuid.UUID]catalog.Variant) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(variants))
	for id := range variants {
		item, err := s.inventory.Get(ctx, id)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				out[id] = 0
				continue
			}
			return nil, err
		}
		out[id] = item.Available()
	}
	return out, nil
}

// Checkout validates the cart, then creates the order, its lines, the stock
// reservation and the first payment attempt in one transaction. A gateway
// failure rolls every write back.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*Result, error) {
	if !input.Actor.IsSystem() && !s.authz.Allowed(input.Actor.Roles, authz.ResourceOrders, authz.ActionCreate) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Insufficient permissions")
	}
	if err := validateContact(input); err != nil {
		return nil, err
	}

	draft, err := s.Validate(ctx, input.Cart)
	if err != nil {
		return nil, err
	}

	order := s.buildOrder(input, draft)
	var result *Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.Create(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		items := buildItems(order.ID, draft.Lines)
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
		}
		order.Items = items

		if _, err := s.inventory.ReserveOrder(ctx, tx, order.ID, input.Actor.ActorID()); err != nil {
			return err
		}

		attempt, err := s.payments.Open(ctx, tx, order)
		if err != nil {
			return err
		}

		if err := repo.AppendHistory(ctx, orders.InitialHistory(order.ID, order.Status, input.Actor)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append status history")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, input.Actor.Roles),
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CustomerID:    order.CustomerID,
				Status:        order.Status,
				PaymentMethod: order.PaymentMethod,
				Total:         order.Total.StringFixed(2),
				Currency:      order.Currency,
				ItemCount:     len(items),
			},
		}); err != nil {
			return err
		}

		result = &Result{Order: order, Payment: attempt.Payment, PaymentURL: attempt.PaymentURL}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"order_number":   order.OrderNumber,
		"payment_method": string(order.PaymentMethod),
		"total":          order.Total.StringFixed(2),
	}), "checkout completed")
	return result, nil
}

func (s *service) buildOrder(input CheckoutInput, draft *Draft) models.Order {
	status := enums.OrderStatusPendingPayment
	if !input.PaymentMethod.RequiresGateway() {
		status = enums.OrderStatusDraft
	}

	var customerID *uuid.UUID
	if !input.Actor.IsSystem() {
		id := input.Actor.UserID
		customerID = &id
	}

	order := models.Order{
		ID:              uuid.New(),
		OrderNumber:     orders.NewOrderNumber(s.now()),
		CustomerID:      customerID,
		Status:          status,
		Subtotal:        draft.Totals.Subtotal,
		TaxAmount:       draft.Totals.TaxAmount,
		ShippingCost:    draft.Totals.ShippingCost,
		DiscountAmount:  draft.Totals.DiscountAmount,
		Total:           draft.Totals.Total,
		Currency:        defaultCurrency,
		ShippingMethod:  input.ShippingMethod,
		PaymentMethod:   input.PaymentMethod,
		CustomerEmail:   strings.ToLower(strings.TrimSpace(input.Customer.Email)),
		CustomerName:    strings.TrimSpace(input.Customer.Name),
		CustomerPhone:   trimmed(input.Customer.Phone),
		ShippingAddress: input.ShippingAddress.Normalize(),
		Notes:           trimmed(input.Notes),
	}
	if input.BillingAddress != nil {
		billing := input.BillingAddress.Normalize()
		order.BillingAddress = &billing
	}
	return order
}

func buildItems(orderID uuid.UUID, lines []DraftLine) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		variantID := line.Variant.VariantID
		items = append(items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   line.Variant.ProductID,
			VariantID:   &variantID,
			ProductName: line.Variant.ProductName,
			VariantName: line.Variant.VariantName,
			SKU:         line.Variant.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
		})
	}
	return items
}

func validateContact(input CheckoutInput) error {
	fields := map[string]any{}
	if !input.PaymentMethod.IsValid() {
		fields["paymentMethod"] = "invalid"
	}
	if strings.TrimSpace(input.Customer.Email) == "" {
		fields["customer.email"] = "required"
	}
	if strings.TrimSpace(input.Customer.Name) == "" {
		fields["customer.name"] = "required"
	}
	for _, name := range input.ShippingAddress.MissingFields() {
		fields["shippingAddress."+name] = "required"
	}
	if input.BillingAddress != nil {
		for _, name := range input.BillingAddress.MissingFields() {
			fields["billingAddress."+name] = "required"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout details: "+strings.Join(keys, ", ")).
		WithDetails(fields)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	out := strings.TrimSpace(*value)
	if out == "" {
		return nil
	}
	return &out
}
