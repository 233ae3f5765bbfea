package orders

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

// ErrStatusChanged is returned when a conditional status update no longer
// matches the status read under lock.
var ErrStatusChanged = errors.New("order status changed concurrently")

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items").Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves the order from one status to another, writing extra
// columns in the same statement. It fails with ErrStatusChanged when the row
// is no longer in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, extra map[string]any) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.CustomerID != nil {
		q = q.Where("orders.customer_id = ?", *filter.CustomerID)
	}

	q, err := pagination.Seek(q, "orders.", filter.Pagination.Cursor)
	if err != nil {
		return nil, err
	}

	spec := filter.Spec
	spec.Sort = nil
	q, err = query.Apply(q, spec, Fields, "orders.created_at DESC, orders.id DESC")
	if err != nil {
		return nil, err
	}

	var rows []models.Order
	if err := q.Limit(pagination.LimitWithBuffer(filter.Pagination.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LineSummaries counts each order's lines and reports the product of its first line.
func (r *repository) LineSummaries(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]LineSummary, error) {
	out := make(map[uuid.UUID]LineSummary, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var rows []models.OrderItem
	err := r.db.WithContext(ctx).
		Select("order_id, product_id, created_at, id").
		Where("order_id IN ?", orderIDs).
		Order("order_id, created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		summary, seen := out[row.OrderID]
		if !seen {
			summary.FirstProductID = row.ProductID
		}
		summary.ItemCount++
		out[row.OrderID] = summary
	}
	return out, nil
}

// FindStale returns the oldest orders in statuses created before cutoff.
// Cash on delivery orders wait for the courier, not a payment, so they are
// never stale.
func (r *repository) FindStale(ctx context.Context, statuses []enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", statuses, cutoff).
		Where("payment_method <> ?", enums.PaymentMethodCashOnDelivery).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
