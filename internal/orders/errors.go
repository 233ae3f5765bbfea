package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	ReasonInvalidTransition = "INVALID_STATUS_TRANSITION"
	ReasonNotCancellable    = "ORDER_NOT_CANCELLABLE"

	notCancellableMessage = "This order cannot be cancelled. Please contact support."
)

// InvalidStatusTransition reports a move the status graph does not allow.
func InvalidStatusTransition(from, to enums.OrderStatus) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move order from "+string(from)+" to "+string(to)).
		WithReason(ReasonInvalidTransition).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": from.NextStatuses(),
		})
}

func notCancellable(status enums.OrderStatus) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, notCancellableMessage).
		WithReason(ReasonNotCancellable).
		WithDetails(map[string]any{"status": status})
}

func orderNotFound() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}
