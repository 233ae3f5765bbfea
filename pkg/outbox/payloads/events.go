package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once checkout commits.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    *uuid.UUID          `json:"customer_id,omitempty"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Total         string              `json:"total"`
	Currency      string              `json:"currency"`
	ItemCount     int                 `json:"item_count"`
}

// OrderStatusChangedEvent is emitted for every recorded transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	FromStatus  *enums.OrderStatus `json:"from_status,omitempty"`
	ToStatus    enums.OrderStatus  `json:"to_status"`
	Note        string             `json:"note,omitempty"`
}

// OrderCanceledEvent carries the lines whose reservations were released.
type OrderCanceledEvent struct {
	OrderID          uuid.UUID   `json:"order_id"`
	OrderNumber      string      `json:"order_number"`
	Reason           string      `json:"reason,omitempty"`
	ReleasedVariants []uuid.UUID `json:"released_variants,omitempty"`
	RequiresRefund   bool        `json:"requires_refund"`
}

// OrderPaidEvent is emitted when a gateway confirms payment.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	PaymentID     uuid.UUID `json:"payment_id"`
	ExternalID    string    `json:"external_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
}

// PaymentStatusEvent covers failed and retried payments.
type PaymentStatusEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	PaymentID  uuid.UUID           `json:"payment_id"`
	ExternalID string              `json:"external_id"`
	Status     enums.PaymentStatus `json:"status"`
	Reason     string              `json:"reason,omitempty"`
}

// LowStockEvent is emitted when available stock first drops to the threshold.
type LowStockEvent struct {
	VariantID uuid.UUID `json:"variant_id"`
	ItemID    uuid.UUID `json:"item_id"`
	Available int       `json:"available"`
	Threshold int       `json:"threshold"`
}
