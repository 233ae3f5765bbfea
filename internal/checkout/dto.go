package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CartLine is one requested variant. ExpectedUnitPrice, when set, is the
// price the customer saw; checkout fails if the catalog price moved since.
type CartLine struct {
	VariantID         uuid.UUID        `json:"variantId"`
	Quantity          int              `json:"quantity"`
	ExpectedUnitPrice *decimal.Decimal `json:"expectedUnitPrice,omitempty"`
}

// Cart is what the customer wants to buy and how it should ship.
type Cart struct {
	Lines          []CartLine           `json:"lines" validate:"max=100"`
	ShippingMethod enums.ShippingMethod `json:"shippingMethod"`
}

// Customer is the identity snapshot copied onto the order.
type Customer struct {
	Email string  `json:"email" validate:"max=254"`
	Name  string  `json:"name" validate:"max=120"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// CheckoutInput is a complete checkout submission.
type CheckoutInput struct {
	Cart
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	Customer        Customer            `json:"customer"`
	ShippingAddress types.Address       `json:"shippingAddress"`
	BillingAddress  *types.Address      `json:"billingAddress,omitempty"`
	Notes           *string             `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Actor           authz.Subject       `json:"-"`
}

// DraftLine is a validated, priced cart line.
type DraftLine struct {
	Variant   catalog.Variant `json:"-"`
	VariantID uuid.UUID       `json:"variantId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Draft is a cart that passed validation, with its totals.
type Draft struct {
	Lines  []DraftLine     `json:"lines"`
	Totals checkout.Totals `json:"totals"`
}

// Result is a committed checkout.
type Result struct {
	Order      models.Order   `json:"-"`
	Payment    models.Payment `json:"-"`
	PaymentURL *string        `json:"-"`
}
