package enums

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusDraft:          {OrderStatusPendingPayment, OrderStatusCancelled},
		OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
		OrderStatusPaid:           {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing:     {OrderStatusPacking, OrderStatusCancelled},
		OrderStatusPacking:        {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:        {OrderStatusDelivered},
		OrderStatusDelivered:      {OrderStatusRefunded},
	}

	all := []OrderStatus{
		OrderStatusDraft, OrderStatusPendingPayment, OrderStatusPaid, OrderStatusProcessing, OrderStatusPacking,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded,
	}
	for _, from := range all {
		require.True(t, from.IsValid())
		for _, to := range all {
			want := slices.Contains(allowed[from], to)
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderStatusTerminalAndCancellable(t *testing.T) {
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.True(t, OrderStatusRefunded.IsTerminal())
	assert.False(t, OrderStatusDelivered.IsTerminal())
	assert.False(t, OrderStatus("bogus").IsTerminal())

	assert.True(t, OrderStatusPaid.CustomerCancellable())
	assert.False(t, OrderStatusProcessing.CustomerCancellable())
	assert.False(t, OrderStatusShipped.CustomerCancellable())

	assert.True(t, OrderStatusPendingPayment.HoldsReservation())
	assert.False(t, OrderStatusPaid.HoldsReservation())
}

func TestNextStatusesReturnsCopy(t *testing.T) {
	next := OrderStatusDraft.NextStatuses()
	require.Len(t, next, 2)
	next[0] = OrderStatusRefunded
	assert.True(t, OrderStatusDraft.CanTransitionTo(OrderStatusPendingPayment))
}

func TestParseEnums(t *testing.T) {
	status, err := ParseOrderStatus("packing")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPacking, status)
	_, err = ParseOrderStatus("lost")
	require.Error(t, err)

	method, err := ParsePaymentMethod("cash_on_delivery")
	require.NoError(t, err)
	assert.False(t, method.RequiresGateway())
	assert.True(t, PaymentMethodCard.RequiresGateway())

	assert.True(t, PaymentStatusFailed.IsTerminal())
	assert.False(t, PaymentStatusPending.IsTerminal())

	assert.True(t, MovementReleased.TracksReserved())
	assert.False(t, MovementSale.TracksReserved())
	assert.True(t, MovementReturn.IsManual())
	assert.False(t, MovementReserved.IsManual())

	assert.Equal(t, []Role{RoleStaff, RoleAdmin}, ParseRoles([]string{"staff", "ghost", "admin"}))

	_, err = ParseShippingMethod("drone")
	assert.EqualError(t, err, `invalid shipping method "drone"`)
	event, err := ParseOutboxEventType("order_paid")
	require.NoError(t, err)
	assert.Equal(t, EventOrderPaid, event)
}
