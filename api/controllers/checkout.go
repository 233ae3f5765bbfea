package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type checkoutService interface {
	Validate(ctx context.Context, cart checkoutsvc.Cart) (*checkoutsvc.Draft, error)
	Checkout(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error)
}

// Checkout turns the submitted cart into an order and opens its first payment.
// Anonymous callers check out as guests.
func Checkout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.CheckoutInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Actor = middleware.SubjectFromContext(r.Context())

		result, err := svc.Checkout(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

// ValidateCart prices the cart and reports every line that cannot be bought
// without writing anything.
func ValidateCart(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.Cart
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.Validate(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

type checkoutResponse struct {
	OrderID        uuid.UUID         `json:"orderId"`
	OrderNumber    string            `json:"orderNumber"`
	Status         enums.OrderStatus `json:"status"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	TaxAmount      decimal.Decimal   `json:"taxAmount"`
	ShippingCost   decimal.Decimal   `json:"shippingCost"`
	DiscountAmount decimal.Decimal   `json:"discountAmount"`
	Total          decimal.Decimal   `json:"total"`
	Currency       string            `json:"currency"`
	Payment        paymentResponse   `json:"payment"`
}

type paymentResponse struct {
	ID            uuid.UUID           `json:"id"`
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	ExternalID    string              `json:"externalId"`
	Amount        decimal.Decimal     `json:"amount"`
	PaymentURL    *string             `json:"paymentUrl,omitempty"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	FailureReason *string             `json:"failureReason,omitempty"`
	ProcessedAt   *time.Time          `json:"processedAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	order := result.Order
	payment := newPaymentResponse(result.Payment)
	payment.PaymentURL = result.PaymentURL
	return checkoutResponse{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		Subtotal:       order.Subtotal,
		TaxAmount:      order.TaxAmount,
		ShippingCost:   order.ShippingCost,
		DiscountAmount: order.DiscountAmount,
		Total:          order.Total,
		Currency:       order.Currency,
		Payment:        payment,
	}
}
