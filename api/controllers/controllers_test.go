package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/authz"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/query"
)

type stubCheckout struct {
	validateFn func(ctx context.Context, cart checkoutsvc.Cart) (*checkoutsvc.Draft, error)
	checkoutFn func(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error)
}

func (s stubCheckout) Validate(ctx context.Context, cart checkoutsvc.Cart) (*checkoutsvc.Draft, error) {
	return s.validateFn(ctx, cart)
}

func (s stubCheckout) Checkout(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error) {
	return s.checkoutFn(ctx, input)
}

type stubOrders struct {
	transitionFn func(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error)
	cancelFn     func(ctx context.Context, orderID uuid.UUID, customer authz.Subject, reason string) (*models.Order, error)
	listFn       func(ctx context.Context, actor authz.Subject, params internalorders.ListParams) (*internalorders.OrderList, error)
}

func (s stubOrders) Transition(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error) {
	return s.transitionFn(ctx, input)
}

func (s stubOrders) CancelByCustomer(ctx context.Context, orderID uuid.UUID, customer authz.Subject, reason string) (*models.Order, error) {
	return s.cancelFn(ctx, orderID, customer, reason)
}

func (s stubOrders) UpdateNotes(context.Context, uuid.UUID, authz.Subject, internalorders.NotesInput) (*internalorders.OrderDetail, error) {
	return &internalorders.OrderDetail{}, nil
}

func (s stubOrders) Get(_ context.Context, orderID uuid.UUID, _ authz.Subject) (*internalorders.OrderDetail, error) {
	return &internalorders.OrderDetail{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func (s stubOrders) List(ctx context.Context, actor authz.Subject, params internalorders.ListParams) (*internalorders.OrderList, error) {
	return s.listFn(ctx, actor, params)
}

func (s stubOrders) History(context.Context, uuid.UUID, authz.Subject) ([]internalorders.HistoryEntry, error) {
	return nil, nil
}

type stubPayments struct {
	retryFn func(ctx context.Context, input payments.RetryInput) (*payments.Attempt, error)
}

func (s stubPayments) Retry(ctx context.Context, input payments.RetryInput) (*payments.Attempt, error) {
	return s.retryFn(ctx, input)
}

func (s stubPayments) ListForOrder(context.Context, uuid.UUID, authz.Subject) ([]models.Payment, error) {
	return nil, nil
}

type stubInventory struct {
	adjustFn func(ctx context.Context, input inventory.AdjustInput) (*inventory.Result, error)
	listFn   func(ctx context.Context, variantID uuid.UUID, spec query.Spec, params pagination.Params) (*inventory.MovementPage, error)
}

func (s stubInventory) Adjust(ctx context.Context, _ *gorm.DB, input inventory.AdjustInput) (*inventory.Result, error) {
	return s.adjustFn(ctx, input)
}

func (s stubInventory) ListMovements(ctx context.Context, variantID uuid.UUID, spec query.Spec, params pagination.Params) (*inventory.MovementPage, error) {
	return s.listFn(ctx, variantID, spec, params)
}

func (s stubInventory) LowStock(context.Context, int) ([]models.InventoryItem, error) {
	return []models.InventoryItem{{VariantID: uuid.New(), Quantity: 5, ReservedQuantity: 3, LowStockThreshold: 2}}, nil
}

const shippingAddress = `{"name":"Ana","line1":"1 Main","city":"Austin","state":"TX","postal_code":"78701"}`

var customer = authz.Subject{UserID: uuid.New(), Roles: []enums.Role{enums.RoleCustomer}}

func serve(t *testing.T, method, pattern, target, body string, handler http.HandlerFunc, subject *authz.Subject) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Method(method, pattern, handler)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if subject != nil {
		req = req.WithContext(middleware.WithSubject(req.Context(), *subject))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestCheckoutPassesCallerAndReturnsPaymentURL(t *testing.T) {
	url := "https://pay.test/sess_1"
	var got checkoutsvc.CheckoutInput
	svc := stubCheckout{checkoutFn: func(_ context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error) {
		got = input
		return &checkoutsvc.Result{
			Order:      models.Order{ID: uuid.New(), OrderNumber: "ORD-1", Status: enums.OrderStatusPendingPayment, Total: decimal.RequireFromString("108.00"), Currency: "USD"},
			Payment:    models.Payment{ID: uuid.New(), Method: enums.PaymentMethodCard, Status: enums.PaymentStatusPending, ExternalID: "sess_1"},
			PaymentURL: &url,
		}, nil
	}}
	body := `{"lines":[{"variantId":"` + uuid.NewString() + `","quantity":2}],"shippingMethod":"standard","paymentMethod":"card",
		"customer":{"email":"a@b.test","name":"Ana"},"shippingAddress":` + shippingAddress + `}`

	rec := serve(t, http.MethodPost, "/checkout", "/checkout", body, Checkout(svc, nil), &customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, customer.UserID, got.Actor.UserID)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)

	var resp struct {
		Data checkoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ORD-1", resp.Data.OrderNumber)
	assert.Equal(t, "108", resp.Data.Total.String())
	require.NotNil(t, resp.Data.Payment.PaymentURL)
	assert.Equal(t, url, *resp.Data.Payment.PaymentURL)
}

func TestCheckoutAnonymousCallerIsGuest(t *testing.T) {
	var got checkoutsvc.CheckoutInput
	svc := stubCheckout{checkoutFn: func(_ context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error) {
		got = input
		return &checkoutsvc.Result{}, nil
	}}
	rec := serve(t, http.MethodPost, "/checkout", "/checkout", `{"lines":[],"shippingAddress":`+shippingAddress+`}`, Checkout(svc, nil), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, got.Actor.IsSystem())
}

func TestValidateCartReportsLineErrors(t *testing.T) {
	variantID := uuid.New()
	available := 1
	svc := stubCheckout{validateFn: func(context.Context, checkoutsvc.Cart) (*checkoutsvc.Draft, error) {
		return nil, pkgcheckout.LineErrors([]pkgcheckout.LineError{{Index: 0, VariantID: variantID, Issue: pkgcheckout.IssueInsufficientStock, Requested: 3, Available: &available}})
	}}
	rec := serve(t, http.MethodPost, "/validate", "/validate", `{"lines":[{"variantId":"`+variantID.String()+`","quantity":3}],"shippingMethod":"standard"}`, ValidateCart(svc, nil), &customer)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := errorBody(t, rec)
	assert.Equal(t, pkgcheckout.ReasonCartInvalid, apiErr["reason"])
	lines := apiErr["details"].(map[string]any)["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, string(pkgcheckout.IssueInsufficientStock), lines[0].(map[string]any)["issue"])
}

func TestValidateCartReturnsTotals(t *testing.T) {
	svc := stubCheckout{validateFn: func(context.Context, checkoutsvc.Cart) (*checkoutsvc.Draft, error) {
		return &checkoutsvc.Draft{Totals: pkgcheckout.Totals{Total: decimal.RequireFromString("23.49")}}, nil
	}}
	rec := serve(t, http.MethodPost, "/validate", "/validate", `{"lines":[],"shippingMethod":"standard"}`, ValidateCart(svc, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"23.49"`)
}

func TestListOrdersParsesFilterSpec(t *testing.T) {
	var got internalorders.ListParams
	svc := stubOrders{listFn: func(_ context.Context, _ authz.Subject, params internalorders.ListParams) (*internalorders.OrderList, error) {
		got = params
		return &internalorders.OrderList{}, nil
	}}
	rec := serve(t, http.MethodGet, "/orders", "/orders?status[in]=paid,processing&total[gte]=50&limit=10&bogus=1", "", ListOrders(svc, nil), &customer)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, got.Pagination.Limit)
	require.Len(t, got.Spec.Filters, 2)
	assert.Equal(t, query.Filter{Field: "status", Operator: query.OpIn, Value: []string{"paid", "processing"}}, got.Spec.Filters[0])
	assert.Equal(t, query.OpGte, got.Spec.Filters[1].Operator)
}

func TestListOrdersRejectsBadLimit(t *testing.T) {
	rec := serve(t, http.MethodGet, "/orders", "/orders?limit=0", "", ListOrders(stubOrders{}, nil), &customer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelOrderAcceptsEmptyBody(t *testing.T) {
	orderID := uuid.New()
	var reason string
	svc := stubOrders{cancelFn: func(_ context.Context, id uuid.UUID, actor authz.Subject, r string) (*models.Order, error) {
		assert.Equal(t, orderID, id)
		assert.Equal(t, customer.UserID, actor.UserID)
		reason = r
		return &models.Order{ID: id}, nil
	}}
	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+orderID.String()+"/cancel", "", CancelOrder(svc, nil), &customer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, reason)
}

func TestCancelOrderSurfacesStateConflict(t *testing.T) {
	svc := stubOrders{cancelFn: func(context.Context, uuid.UUID, authz.Subject, string) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "This order cannot be cancelled. Please contact support.")
	}}
	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+uuid.NewString()+"/cancel", `{"reason":"changed my mind"}`, CancelOrder(svc, nil), &customer)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "This order cannot be cancelled. Please contact support.", errorBody(t, rec)["message"])
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	staff := authz.Subject{UserID: uuid.New(), Roles: []enums.Role{enums.RoleStaff}}
	var got internalorders.TransitionInput
	svc := stubOrders{transitionFn: func(_ context.Context, input internalorders.TransitionInput) (*models.Order, error) {
		got = input
		return &models.Order{ID: input.OrderID, Status: input.To}, nil
	}}
	handler := AdminUpdateOrderStatus(svc, nil)
	orderID := uuid.New()

	rec := serve(t, http.MethodPost, "/orders/{orderId}/status", "/orders/"+orderID.String()+"/status", `{"status":"shipped","notes":"  tracking 1Z  "}`, handler, &staff)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.OrderStatusShipped, got.To)
	assert.Equal(t, "tracking 1Z", got.Notes)
	assert.Equal(t, staff.UserID, got.Actor.UserID)

	rec = serve(t, http.MethodPost, "/orders/{orderId}/status", "/orders/"+orderID.String()+"/status", `{"status":"lost"}`, handler, &staff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodPost, "/orders/{orderId}/status", "/orders/not-a-uuid/status", `{"status":"shipped"}`, handler, &staff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryPayment(t *testing.T) {
	url := "https://pay.test/sess_2"
	var got payments.RetryInput
	svc := stubPayments{retryFn: func(_ context.Context, input payments.RetryInput) (*payments.Attempt, error) {
		got = input
		return &payments.Attempt{Payment: models.Payment{ID: uuid.New(), Method: input.Method, Status: enums.PaymentStatusPending}, PaymentURL: &url}, nil
	}}
	orderID := uuid.New()

	rec := serve(t, http.MethodPost, "/orders/{orderId}/payments", "/orders/"+orderID.String()+"/payments", `{"method":"e_wallet"}`, RetryPayment(svc, nil), &customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, got.OrderID)
	assert.Equal(t, enums.PaymentMethodEWallet, got.Method)
	assert.Contains(t, rec.Body.String(), url)

	rec = serve(t, http.MethodPost, "/orders/{orderId}/payments", "/orders/"+orderID.String()+"/payments", `{"method":"barter"}`, RetryPayment(svc, nil), &customer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjustInventory(t *testing.T) {
	manager := authz.Subject{UserID: uuid.New(), Roles: []enums.Role{enums.RoleManager}}
	variantID := uuid.New()
	var got inventory.AdjustInput
	svc := stubInventory{adjustFn: func(_ context.Context, input inventory.AdjustInput) (*inventory.Result, error) {
		got = input
		return &inventory.Result{
			Item:     models.InventoryItem{VariantID: input.VariantID, Quantity: 12, ReservedQuantity: 2},
			Movement: models.InventoryMovement{Type: enums.MovementPurchase, Quantity: 10, PreviousQuantity: 2, NewQuantity: 12},
		}, nil
	}}
	handler := AdjustInventory(svc, nil)
	target := "/inventory/" + variantID.String() + "/adjust"

	rec := serve(t, http.MethodPost, "/inventory/{variantId}/adjust", target, `{"delta":10,"type":"purchase","reason":"restock"}`, handler, &manager)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, variantID, got.VariantID)
	assert.Equal(t, enums.MovementPurchase, got.Type)
	require.NotNil(t, got.ActorID)
	assert.Equal(t, manager.UserID, *got.ActorID)
	assert.Contains(t, rec.Body.String(), `"available":10`)

	rec = serve(t, http.MethodPost, "/inventory/{variantId}/adjust", target, `{"delta":0,"reason":"noop"}`, handler, &manager)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodPost, "/inventory/{variantId}/adjust", target, `{"delta":1,"type":"sale","reason":"sneaky"}`, handler, &manager)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInventoryMovementsAndLowStock(t *testing.T) {
	variantID := uuid.New()
	svc := stubInventory{listFn: func(_ context.Context, id uuid.UUID, spec query.Spec, params pagination.Params) (*inventory.MovementPage, error) {
		assert.Equal(t, variantID, id)
		require.Len(t, spec.Filters, 1)
		assert.Equal(t, "type", spec.Filters[0].Field)
		assert.Equal(t, "abc", params.Cursor)
		return &inventory.MovementPage{Movements: []models.InventoryMovement{{Type: enums.MovementReserved, Quantity: 0}}, NextCursor: "next"}, nil
	}}

	rec := serve(t, http.MethodGet, "/inventory/{variantId}/movements", "/inventory/"+variantID.String()+"/movements?type=reserved&cursor=abc", "", InventoryMovements(svc, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"nextCursor":"next"`)

	rec = serve(t, http.MethodGet, "/inventory/low-stock", "/inventory/low-stock", "", LowStockReport(svc, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":2`)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := serve(t, http.MethodGet, "/health/ready", "/health/ready", "", HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}, nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, http.MethodGet, "/health/ready", "/health/ready", "", HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("down")}}, nil), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []any{"redis"}, errorBody(t, rec)["details"].(map[string]any)["failing"])

	rec = serve(t, http.MethodGet, "/health/live", "/health/live", "", HealthLive(cfg), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-Storefront-Env"))
}
