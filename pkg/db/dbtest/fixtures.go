package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Variant is a seeded sellable variant with its stock row.
type Variant struct {
	Product models.Product
	Variant models.ProductVariant
	Item    models.InventoryItem
}

// VariantOption tweaks a seeded variant before insert.
type VariantOption func(*Variant)

// WithThreshold sets the low-stock threshold.
func WithThreshold(n int) VariantOption {
	return func(v *Variant) { v.Item.LowStockThreshold = n }
}

// WithReserved seeds units already held by other orders.
func WithReserved(n int) VariantOption {
	return func(v *Variant) { v.Item.ReservedQuantity = n }
}

// Inactive marks the variant inactive.
func Inactive() VariantOption {
	return func(v *Variant) { v.Variant.IsActive = false }
}

// InactiveProduct marks the parent product inactive.
func InactiveProduct() VariantOption {
	return func(v *Variant) { v.Product.IsActive = false }
}

// SeedVariant inserts a product, one variant priced at price and an inventory
// row holding quantity units.
func SeedVariant(t *testing.T, db *gorm.DB, price string, quantity int, opts ...VariantOption) Variant {
	t.Helper()
	suffix := uuid.NewString()[:8]
	v := Variant{
		Product: models.Product{Name: "Trail Shoe " + suffix, Slug: "trail-shoe-" + suffix, IsActive: true},
		Variant: models.ProductVariant{Name: "Size 42", SKU: "TS-42-" + suffix, Price: decimal.RequireFromString(price), IsActive: true},
		Item:    models.InventoryItem{Quantity: quantity},
	}
	for _, opt := range opts {
		opt(&v)
	}
	// gorm skips zero-valued bools with defaults, so persist the flags explicitly.
	if err := db.Create(&v.Product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := db.Model(&v.Product).Update("is_active", v.Product.IsActive).Error; err != nil {
		t.Fatalf("seed product flag: %v", err)
	}
	v.Variant.ProductID = v.Product.ID
	if err := db.Create(&v.Variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	if err := db.Model(&v.Variant).Update("is_active", v.Variant.IsActive).Error; err != nil {
		t.Fatalf("seed variant flag: %v", err)
	}
	v.Item.VariantID = v.Variant.ID
	if err := db.Create(&v.Item).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return v
}

// ReloadItem reads the current stock row for a variant.
func ReloadItem(t *testing.T, db *gorm.DB, variantID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := db.Where("variant_id = ?", variantID).First(&item).Error; err != nil {
		t.Fatalf("reload inventory: %v", err)
	}
	return item
}

// OrderLine is one line of a seeded order.
type OrderLine struct {
	Variant  Variant
	Quantity int
}

// OrderOption tweaks a seeded order before insert.
type OrderOption func(*models.Order)

// OwnedBy attaches the order to a customer account.
func OwnedBy(customerID uuid.UUID) OrderOption {
	return func(o *models.Order) { o.CustomerID = &customerID }
}

// PaidWith sets the payment method.
func PaidWith(method enums.PaymentMethod) OrderOption {
	return func(o *models.Order) { o.PaymentMethod = method }
}

// SeedOrder inserts an order in status with the given lines priced from the
// seeded variants. It does not touch inventory.
func SeedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, lines []OrderLine, opts ...OrderOption) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:    "ORD-TEST-" + uuid.NewString()[:8],
		Status:         status,
		Subtotal:       decimal.Zero,
		TaxAmount:      decimal.Zero,
		ShippingCost:   decimal.Zero,
		DiscountAmount: decimal.Zero,
		Currency:       "USD",
		ShippingMethod: enums.ShippingMethodStandard,
		PaymentMethod:  enums.PaymentMethodCard,
		CustomerEmail:  "buyer@example.com",
		CustomerName:   "Dana Buyer",
		ShippingAddress: types.Address{
			Name:       "Dana Buyer",
			Line1:      "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "12345",
			Country:    "US",
		},
	}
	for _, opt := range opts {
		opt(&order)
	}
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		variantID := line.Variant.Variant.ID
		subtotal := line.Variant.Variant.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		order.Subtotal = order.Subtotal.Add(subtotal)
		items = append(items, models.OrderItem{
			ProductID:   line.Variant.Product.ID,
			VariantID:   &variantID,
			ProductName: line.Variant.Product.Name,
			VariantName: line.Variant.Variant.Name,
			SKU:         line.Variant.Variant.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   line.Variant.Variant.Price,
			Subtotal:    subtotal,
		})
	}
	order.Total = order.Subtotal
	if err := db.Omit("Items").Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := db.Create(&items).Error; err != nil {
			t.Fatalf("seed order items: %v", err)
		}
	}
	order.Items = items
	return order
}

// ReloadOrder reads the current order row.
func ReloadOrder(t *testing.T, db *gorm.DB, orderID uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	if err := db.Where("id = ?", orderID).First(&order).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}
