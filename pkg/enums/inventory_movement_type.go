package enums

// InventoryMovementType maps to the inventory_movement_type enum in Postgres.
type InventoryMovementType string

const (
	MovementPurchase   InventoryMovementType = "purchase"
	MovementSale       InventoryMovementType = "sale"
	MovementAdjustment InventoryMovementType = "adjustment"
	MovementReturn     InventoryMovementType = "return"
	MovementReserved   InventoryMovementType = "reserved"
	MovementReleased   InventoryMovementType = "released"
)

var movementTypes = []InventoryMovementType{
	MovementPurchase, MovementSale, MovementAdjustment, MovementReturn, MovementReserved, MovementReleased,
}

func (t InventoryMovementType) String() string { return string(t) }

func (t InventoryMovementType) IsValid() bool { return member(t, movementTypes) }

// TracksReserved reports whether the movement's counters refer to the
// reserved quantity rather than on-hand stock.
func (t InventoryMovementType) TracksReserved() bool {
	return t == MovementReserved || t == MovementReleased
}

// IsManual reports whether staff may record the movement through an adjustment.
func (t InventoryMovementType) IsManual() bool {
	return member(t, []InventoryMovementType{MovementAdjustment, MovementPurchase, MovementReturn})
}

func ParseInventoryMovementType(value string) (InventoryMovementType, error) {
	return parse("inventory movement type", value, movementTypes)
}
