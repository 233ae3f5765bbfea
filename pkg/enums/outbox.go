package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregatePayment   OutboxAggregateType = "payment"
	AggregateInventory OutboxAggregateType = "inventory_item"
)

func (a OutboxAggregateType) IsValid() bool {
	return member(a, []OutboxAggregateType{AggregateOrder, AggregatePayment, AggregateInventory})
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, []OutboxAggregateType{AggregateOrder, AggregatePayment, AggregateInventory})
}

// OutboxEventType maps to the event_type enum in Postgres. Consumers key
// their handler registry on these values.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderCanceled      OutboxEventType = "order_canceled"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventPaymentFailed      OutboxEventType = "payment_failed"
	EventPaymentRetried     OutboxEventType = "payment_retried"
	EventLowStock           OutboxEventType = "inventory_low_stock"
)

var eventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderCanceled,
	EventOrderPaid,
	EventPaymentFailed,
	EventPaymentRetried,
	EventLowStock,
}

func (e OutboxEventType) IsValid() bool { return member(e, eventTypes) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, eventTypes)
}
