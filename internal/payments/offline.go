package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OfflineLedger lets the order service complete payments that staff confirm
// by hand when they mark an order paid.
type OfflineLedger struct {
	repo Repository
}

func NewOfflineLedger(repo Repository) OfflineLedger {
	return OfflineLedger{repo: repo}
}

func (l OfflineLedger) CompleteOffline(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, processedAt time.Time) (int, error) {
	n, err := l.repo.WithTx(tx).CompletePendingOffline(ctx, orderID, processedAt)
	return int(n), err
}
