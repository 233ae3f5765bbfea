package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// InventoryMovement is an append-only audit row. NewQuantity always equals
// PreviousQuantity + Quantity; reserved/released rows track the reserved counter.
type InventoryMovement struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InventoryItemID  uuid.UUID                   `gorm:"column:inventory_item_id;type:uuid;not null"`
	VariantID        uuid.UUID                   `gorm:"column:variant_id;type:uuid;not null"`
	Type             enums.InventoryMovementType `gorm:"column:type;type:inventory_movement_type;not null"`
	Quantity         int                         `gorm:"column:quantity;not null"`
	PreviousQuantity int                         `gorm:"column:previous_quantity;not null"`
	NewQuantity      int                         `gorm:"column:new_quantity;not null"`
	ReferenceType    *string                     `gorm:"column:reference_type"`
	ReferenceID      *uuid.UUID                  `gorm:"column:reference_id;type:uuid"`
	Notes            *string                     `gorm:"column:notes"`
	ActorID          *uuid.UUID                  `gorm:"column:actor_id;type:uuid"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (m *InventoryMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
