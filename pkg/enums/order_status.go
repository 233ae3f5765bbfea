package enums

import "fmt"

// OrderStatus is the lifecycle state of a customer order.
type OrderStatus string

const (
	OrderStatusDraft          OrderStatus = "draft"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusPacking        OrderStatus = "packing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// orderGraph is the complete directed status graph. Every status is a key;
// terminal ones have no successors. Anything absent is rejected.
var orderGraph = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:          {OrderStatusPendingPayment, OrderStatusCancelled},
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusPacking, OrderStatusCancelled},
	OrderStatusPacking:        {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered},
	OrderStatusDelivered:      {OrderStatusRefunded},
	OrderStatusCancelled:      nil,
	OrderStatusRefunded:       nil,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool {
	_, ok := orderGraph[s]
	return ok
}

// CanTransitionTo reports whether next is a permitted successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return member(next, orderGraph[s])
}

// NextStatuses returns the permitted successors of s. The slice is the
// caller's to modify.
func (s OrderStatus) NextStatuses() []OrderStatus {
	return append([]OrderStatus(nil), orderGraph[s]...)
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(orderGraph[s]) == 0
}

// CustomerCancellable reports whether the owning customer may still cancel.
// Once fulfilment starts only staff can.
func (s OrderStatus) CustomerCancellable() bool {
	return member(s, []OrderStatus{OrderStatusDraft, OrderStatusPendingPayment, OrderStatusPaid})
}

// HoldsReservation reports whether an order in s still has stock reserved.
// Reservations are settled when payment completes.
func (s OrderStatus) HoldsReservation() bool {
	return s == OrderStatusDraft || s == OrderStatusPendingPayment
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid order status %q", value)
	}
	return status, nil
}
