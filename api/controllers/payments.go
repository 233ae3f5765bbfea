package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type paymentsService interface {
	Retry(ctx context.Context, input payments.RetryInput) (*payments.Attempt, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID, actor authz.Subject) ([]models.Payment, error)
}

func OrderPayments(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListForOrder(r.Context(), orderID, middleware.SubjectFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]paymentResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newPaymentResponse(row))
		}
		responses.WriteSuccess(w, map[string]any{"payments": out})
	}
}

type retryPaymentRequest struct {
	Method string `json:"method"`
}

// RetryPayment opens a fresh gateway session for an order still awaiting
// payment, optionally switching the payment method.
func RetryPayment(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload retryPaymentRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var method enums.PaymentMethod
		if payload.Method != "" {
			method, err = enums.ParsePaymentMethod(payload.Method)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
				return
			}
		}

		attempt, err := svc.Retry(r.Context(), payments.RetryInput{
			OrderID: orderID,
			Method:  method,
			Actor:   middleware.SubjectFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := newPaymentResponse(attempt.Payment)
		resp.PaymentURL = attempt.PaymentURL
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func newPaymentResponse(p models.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		Method:        p.Method,
		Status:        p.Status,
		ExternalID:    p.ExternalID,
		Amount:        p.Amount,
		PaymentURL:    p.PaymentURL,
		ExpiresAt:     p.ExpiresAt,
		FailureReason: p.FailureReason,
		ProcessedAt:   p.ProcessedAt,
		CreatedAt:     p.CreatedAt,
	}
}
