package inventory

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonInvalidAdjustment = "INVALID_ADJUSTMENT"
)

// InsufficientStock is returned when a reservation or sale exceeds what the
// item can give.
func InsufficientStock(variantID uuid.UUID, requested, available int) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
		WithReason(ReasonInsufficientStock).
		WithDetails(map[string]any{
			"variantId": variantID.String(),
			"requested": requested,
			"available": available,
		})
}

// InvalidAdjustment is returned when a manual correction would leave on-hand
// stock negative or below what is already reserved.
func InvalidAdjustment(variantID uuid.UUID, quantity, reserved, delta int) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeConflict, "adjustment would leave stock below zero or below reserved units").
		WithReason(ReasonInvalidAdjustment).
		WithDetails(map[string]any{
			"variantId": variantID.String(),
			"quantity":  quantity,
			"reserved":  reserved,
			"delta":     delta,
		})
}

// IsInsufficientStock reports whether err is an InsufficientStock rejection.
func IsInsufficientStock(err error) bool {
	return pkgerrors.IsReason(err, ReasonInsufficientStock)
}
