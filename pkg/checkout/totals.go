package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var (
	standardShipping      = decimal.RequireFromString("9.99")
	expressShipping       = decimal.RequireFromString("19.99")
	freeShippingThreshold = decimal.NewFromInt(100)
	taxRate               = decimal.RequireFromString("0.08")
)

// Totals is the monetary breakdown of an order. Total is always
// Subtotal + ShippingCost + TaxAmount - DiscountAmount.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
}

// ShippingCost prices a shipping method for the given subtotal. Standard is
// free from 100.00 up; express is flat.
func ShippingCost(subtotal decimal.Decimal, method enums.ShippingMethod) decimal.Decimal {
	switch method {
	case enums.ShippingMethodExpress:
		return expressShipping
	default:
		if subtotal.GreaterThanOrEqual(freeShippingThreshold) {
			return decimal.Zero
		}
		return standardShipping
	}
}

// CalculateOrderTotals applies shipping, 8% tax and the discount to subtotal.
// Amounts are rounded half away from zero to cents.
func CalculateOrderTotals(subtotal decimal.Decimal, method enums.ShippingMethod, discount decimal.Decimal) Totals {
	subtotal = subtotal.Round(2)
	discount = decimal.Max(discount, decimal.Zero).Round(2)
	shipping := ShippingCost(subtotal, method)
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{
		Subtotal:       subtotal,
		ShippingCost:   shipping,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Total:          subtotal.Add(shipping).Add(tax).Sub(discount).Round(2),
	}
}

// LineSubtotal is unit price times quantity, rounded to cents.
func LineSubtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
