package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrNotPending is returned when a terminal payment is asked to change.
var ErrNotPending = errors.New("payment is no longer pending")

// Completion carries what the gateway reported for a successful payment.
type Completion struct {
	TransactionID  string
	ExternalStatus string
	Metadata       dbtypes.JSONMap
	ProcessedAt    time.Time
}

// Failure carries what the gateway reported for a failed or abandoned payment.
type Failure struct {
	Reason         string
	ExternalStatus string
	ProcessedAt    time.Time
}

// Repository persists payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	FindByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Payment, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, completion Completion) error
	MarkFailed(ctx context.Context, id uuid.UUID, failure Failure) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	CompletePendingOffline(ctx context.Context, orderID uuid.UUID, processedAt time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Payment, error) {
	var payment models.Payment
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("external_id = ?", externalID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkCompleted succeeds only for a pending payment.
func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, completion Completion) error {
	updates := map[string]any{
		"status":       enums.PaymentStatusCompleted,
		"processed_at": completion.ProcessedAt,
		"updated_at":   time.Now().UTC(),
	}
	if completion.TransactionID != "" {
		updates["transaction_id"] = completion.TransactionID
	}
	if completion.ExternalStatus != "" {
		updates["external_status"] = completion.ExternalStatus
	}
	if len(completion.Metadata) > 0 {
		updates["metadata"] = completion.Metadata
	}
	return r.markPending(ctx, id, updates)
}

// MarkFailed succeeds only for a pending payment.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, failure Failure) error {
	updates := map[string]any{
		"status":         enums.PaymentStatusFailed,
		"failure_reason": failure.Reason,
		"processed_at":   failure.ProcessedAt,
		"updated_at":     time.Now().UTC(),
	}
	if failure.ExternalStatus != "" {
		updates["external_status"] = failure.ExternalStatus
	}
	return r.markPending(ctx, id, updates)
}

func (r *repository) markPending(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// CompletePendingOffline completes the order's pending cash on delivery
// attempts and reports how many changed.
func (r *repository) CompletePendingOffline(ctx context.Context, orderID uuid.UUID, processedAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ? AND method = ?", orderID, enums.PaymentStatusPending, enums.PaymentMethodCashOnDelivery).
		Updates(map[string]any{
			"status":       enums.PaymentStatusCompleted,
			"processed_at": processedAt,
			"updated_at":   time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
