package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

const maxLastErrorBytes = 2048

// Repository owns the outbox_events table. Every method takes the caller's
// transaction; nothing here opens one.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// ClaimBatch returns the oldest unpublished rows that still have attempts
// left. On Postgres the rows stay locked until tx ends and concurrent
// publishers skip them.
func (r *Repository) ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	q := tx.Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at, id").
		Limit(limit)
	if dbpkg.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var batch []models.OutboxEvent
	if err := q.Find(&batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return update(tx, id, map[string]any{"published_at": time.Now().UTC()})
}

// RecordFailure stores the publish error and spends one attempt.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return update(tx, id, map[string]any{
		"last_error":    lastError(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkExhausted pins attempt_count at ceiling so ClaimBatch never returns
// the row again. The dead letter copy is written separately.
func (r *Repository) MarkExhausted(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return update(tx, id, map[string]any{
		"last_error":    lastError(cause),
		"attempt_count": ceiling,
	})
}

// PurgePublished deletes rows published before cutoff.
func (r *Repository) PurgePublished(tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.Where("published_at IS NOT NULL").
		Where("published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func lastError(err error) string {
	if err == nil {
		return ""
	}
	return truncateUTF8(err.Error(), maxLastErrorBytes)
}
