package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/authz"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/query"
)

type ordersService interface {
	Transition(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error)
	CancelByCustomer(ctx context.Context, orderID uuid.UUID, customer authz.Subject, reason string) (*models.Order, error)
	UpdateNotes(ctx context.Context, orderID uuid.UUID, actor authz.Subject, input internalorders.NotesInput) (*internalorders.OrderDetail, error)
	Get(ctx context.Context, orderID uuid.UUID, actor authz.Subject) (*internalorders.OrderDetail, error)
	List(ctx context.Context, actor authz.Subject, params internalorders.ListParams) (*internalorders.OrderList, error)
	History(ctx context.Context, orderID uuid.UUID, actor authz.Subject) ([]internalorders.HistoryEntry, error)
}

// ListOrders returns the caller's orders, or every order for staff. Filters use
// the field[op]=value query form, e.g. status[in]=paid,processing.
func ListOrders(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), middleware.SubjectFromContext(r.Context()), internalorders.ListParams{
			Spec:       query.FromValues(r.URL.Query(), internalorders.Fields),
			Pagination: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func OrderDetail(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), orderID, middleware.SubjectFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func OrderHistory(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context(), orderID, middleware.SubjectFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"history": history})
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CancelOrder lets the owning customer cancel an order that has not shipped.
// The body is optional.
func CancelOrder(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelOrderRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.SubjectFromContext(r.Context())
		if _, err := svc.CancelByCustomer(r.Context(), orderID, actor, validators.SanitizeString(payload.Reason, 500)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrderDetail(w, r, svc, orderID, actor, logg)
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// AdminUpdateOrderStatus moves an order along the status graph.
func AdminUpdateOrderStatus(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := parseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.SubjectFromContext(r.Context())
		if _, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			To:      to,
			Notes:   validators.SanitizeString(payload.Notes, 2000),
			Actor:   actor,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrderDetail(w, r, svc, orderID, actor, logg)
	}
}

// UpdateOrderNotes edits customer notes; staff may also set admin notes.
func UpdateOrderNotes(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload internalorders.NotesInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.UpdateNotes(r.Context(), orderID, middleware.SubjectFromContext(r.Context()), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func writeOrderDetail(w http.ResponseWriter, r *http.Request, svc ordersService, orderID uuid.UUID, actor authz.Subject, logg *logger.Logger) {
	detail, err := svc.Get(r.Context(), orderID, actor)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, detail)
}

// decodeOptionalBody treats an empty body as the zero value of dest.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}

func parseOrderStatus(raw string) (enums.OrderStatus, error) {
	status, err := enums.ParseOrderStatus(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
			WithDetails(map[string]any{"status": raw})
	}
	return status, nil
}
