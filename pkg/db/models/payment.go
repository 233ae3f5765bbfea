package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment is one attempt to pay an order. ExternalID is the gateway session
// reference and is unique across all attempts.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method         enums.PaymentMethod `gorm:"column:method;not null"`
	Status         enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	ExternalID     string              `gorm:"column:external_id;not null;uniqueIndex"`
	ExternalStatus *string             `gorm:"column:external_status"`
	TransactionID  *string             `gorm:"column:transaction_id"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       string              `gorm:"column:currency;not null;default:'USD'"`
	PaymentURL     *string             `gorm:"column:payment_url"`
	ExpiresAt      *time.Time          `gorm:"column:expires_at"`
	FailureReason  *string             `gorm:"column:failure_reason"`
	ProcessedAt    *time.Time          `gorm:"column:processed_at"`
	Metadata       dbtypes.JSONMap     `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Metadata == nil {
		p.Metadata = dbtypes.JSONMap{}
	}
	return nil
}
