package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ErrVariantNotFound is returned when a variant id does not exist.
var ErrVariantNotFound = errors.New("variant not found")

// Variant is the read model checkout needs from the catalog.
type Variant struct {
	VariantID       uuid.UUID
	ProductID       uuid.UUID
	ProductName     string
	VariantName     string
	SKU             string
	Price           decimal.Decimal
	IsActive        bool
	ProductIsActive bool
}

// VariantLookup resolves variants for pricing and availability checks.
type VariantLookup interface {
	GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error)
	GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Variant, error)
}

// ImageLookup resolves one display image per product.
type ImageLookup interface {
	PrimaryImages(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

// Repository reads variants and images. The order core never writes catalog rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

type variantRow struct {
	VariantID       uuid.UUID       `gorm:"column:variant_id"`
	ProductID       uuid.UUID       `gorm:"column:product_id"`
	ProductName     string          `gorm:"column:product_name"`
	VariantName     string          `gorm:"column:variant_name"`
	SKU             string          `gorm:"column:sku"`
	Price           decimal.Decimal `gorm:"column:price"`
	IsActive        bool            `gorm:"column:is_active"`
	ProductIsActive bool            `gorm:"column:product_is_active"`
}

func (r variantRow) toVariant() Variant {
	return Variant(r)
}

func (r *Repository) variantQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("product_variants AS v").
		Select(`v.id AS variant_id, v.product_id, p.name AS product_name, v.name AS variant_name,
			v.sku, v.price, v.is_active, p.is_active AS product_is_active`).
		Joins("JOIN products p ON p.id = v.product_id")
}

func (r *Repository) GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error) {
	var rows []variantRow
	if err := r.variantQuery(ctx).Where("v.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrVariantNotFound
	}
	v := rows[0].toVariant()
	return &v, nil
}

// GetVariants returns the variants that exist; missing ids are absent from the map.
func (r *Repository) GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Variant, error) {
	out := make(map[uuid.UUID]Variant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []variantRow
	if err := r.variantQuery(ctx).Where("v.id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.VariantID] = row.toVariant()
	}
	return out, nil
}

// PrimaryImages returns one URL per product: the image flagged primary, else
// the lowest position. Products without images are absent from the map.
func (r *Repository) PrimaryImages(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.ProductImage
	err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Order("product_id ASC, is_primary DESC, position ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, seen := out[row.ProductID]; !seen {
			out[row.ProductID] = row.URL
		}
	}
	return out, nil
}
