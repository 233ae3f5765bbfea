package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/query"
)

// ErrCountsChanged is returned when a compare-and-set update finds the row no
// longer matches what was read under lock.
var ErrCountsChanged = errors.New("inventory counts changed concurrently")

// MovementFields whitelists filterable movement columns.
var MovementFields = query.Fields{
	"type":           "inventory_movements.type",
	"reference_type": "inventory_movements.reference_type",
	"reference_id":   "inventory_movements.reference_id",
	"actor_id":       "inventory_movements.actor_id",
	"created_at":     "inventory_movements.created_at",
}

// Repository persists inventory items and their movement log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryItem, error)
	LockByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryItem, error)
	Create(ctx context.Context, item *models.InventoryItem) error
	UpdateCounts(ctx context.Context, item *models.InventoryItem, prevQuantity, prevReserved int) error
	InsertMovement(ctx context.Context, movement *models.InventoryMovement) error
	ListMovements(ctx context.Context, variantID uuid.UUID, spec query.Spec, params pagination.Params) ([]models.InventoryMovement, error)
	ListLowStock(ctx context.Context, limit int) ([]models.InventoryItem, error)
	OrderLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	HeldByOrder(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("variant_id = ?", variantID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) LockByVariant(ctx context.Context, variantID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("variant_id = ?", variantID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// UpdateCounts writes the new counters only if the row still holds the values
// read under lock.
func (r *repository) UpdateCounts(ctx context.Context, item *models.InventoryItem, prevQuantity, prevReserved int) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND quantity = ? AND reserved_quantity = ?", item.ID, prevQuantity, prevReserved).
		Updates(map[string]any{
			"quantity":          item.Quantity,
			"reserved_quantity": item.ReservedQuantity,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCountsChanged
	}
	item.UpdatedAt = now
	return nil
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovements(ctx context.Context, variantID uuid.UUID, spec query.Spec, params pagination.Params) ([]models.InventoryMovement, error) {
	q := r.db.WithContext(ctx).Model(&models.InventoryMovement{}).Where("variant_id = ?", variantID)

	q, err := pagination.Seek(q, "", params.Cursor)
	if err != nil {
		return nil, err
	}

	// cursor pages are keyed on creation order
	spec.Sort = nil
	q, err = query.Apply(q, spec, MovementFields, "created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}

	var rows []models.InventoryMovement
	if err := q.Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListLowStock(ctx context.Context, limit int) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("low_stock_threshold > 0 AND quantity - reserved_quantity <= low_stock_threshold").
		Order("quantity - reserved_quantity ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) OrderLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var rows []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// HeldByOrder nets the reserved, released and sale movements referencing the
// order, which is how many units of each variant the order still holds.
func (r *repository) HeldByOrder(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		VariantID uuid.UUID `gorm:"column:variant_id"`
		Held      int       `gorm:"column:held"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Select("variant_id, COALESCE(SUM(quantity), 0) AS held").
		Where("reference_type = ? AND reference_id = ?", orderReferenceType, orderID).
		Where("type IN ?", []enums.InventoryMovementType{enums.MovementReserved, enums.MovementReleased, enums.MovementSale}).
		Group("variant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	held := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		if row.Held > 0 {
			held[row.VariantID] = row.Held
		}
	}
	return held, nil
}
