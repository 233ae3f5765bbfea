package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the customer order aggregate root. Customer and address fields are
// snapshots taken at checkout and never follow later profile edits.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string               `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID      *uuid.UUID           `gorm:"column:customer_id;type:uuid"`
	Status          enums.OrderStatus    `gorm:"column:status;type:order_status;not null"`
	Subtotal        decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount       decimal.Decimal      `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	ShippingCost    decimal.Decimal      `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	DiscountAmount  decimal.Decimal      `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	Total           decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	Currency        string               `gorm:"column:currency;not null;default:'USD'"`
	ShippingMethod  enums.ShippingMethod `gorm:"column:shipping_method;not null"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;not null"`
	CustomerEmail   string               `gorm:"column:customer_email;not null"`
	CustomerName    string               `gorm:"column:customer_name;not null"`
	CustomerPhone   *string              `gorm:"column:customer_phone"`
	ShippingAddress types.Address        `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress  *types.Address       `gorm:"column:billing_address;type:jsonb"`
	Notes           *string              `gorm:"column:notes"`
	AdminNotes      *string              `gorm:"column:admin_notes"`
	PaidAt          *time.Time           `gorm:"column:paid_at"`
	CancelledAt     *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool {
	return o.CustomerID == nil
}

// OwnedBy reports whether the customer placed the order.
func (o Order) OwnedBy(customerID uuid.UUID) bool {
	return o.CustomerID != nil && *o.CustomerID == customerID
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
