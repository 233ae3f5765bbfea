package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists orders, their lines and their status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, extra map[string]any) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
	LineSummaries(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]LineSummary, error)
	FindStale(ctx context.Context, statuses []enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OrderStock sells the stock an order holds once it is paid and gives it
// back when the order is cancelled.
type OrderStock interface {
	SettleOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]inventory.Result, error)
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]inventory.Result, error)
}

// OfflinePayments completes the attempts no gateway will ever confirm, such
// as cash on delivery, when staff mark the order paid.
type OfflinePayments interface {
	CompleteOffline(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, processedAt time.Time) (int, error)
}

// Notifier sends customer-facing messages. Calls happen after commit and
// their failures never affect the order.
type Notifier interface {
	OrderShipped(ctx context.Context, order models.Order) error
	OrderDelivered(ctx context.Context, order models.Order) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) OrderShipped(context.Context, models.Order) error   { return nil }
func (NopNotifier) OrderDelivered(context.Context, models.Order) error { return nil }
