package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryItem tracks on-hand and reserved counts for one sellable variant.
// Quantity includes reserved units; ReservedQuantity never exceeds Quantity.
type InventoryItem struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID         uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex"`
	Quantity          int       `gorm:"column:quantity;not null;default:0"`
	ReservedQuantity  int       `gorm:"column:reserved_quantity;not null;default:0"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Available is the sellable amount shown to customers.
func (i InventoryItem) Available() int {
	return i.Quantity - i.ReservedQuantity
}

// IsLowStock reports whether available stock is at or below the threshold.
func (i InventoryItem) IsLowStock() bool {
	return i.LowStockThreshold > 0 && i.Available() <= i.LowStockThreshold
}

func (i *InventoryItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
