package earnings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAvailable Status = "available"
	StatusPaid      Status = "paid"
)

// CreatorEarning is one ledger credit. StripePaymentIntentID is the idempotency
// key: one entry per successfully processed payment, whichever path saw it first.
type CreatorEarning struct {
	ID                    uint            `gorm:"primaryKey"`
	CreatorID             uint            `gorm:"not null;index"`
	SubscriptionID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	StripePaymentIntentID string          `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex:idx_creator_earnings_intent"`
	GrossAmount           decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Currency              string          `gorm:"type:varchar(3);not null"`
	CommissionRate        decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	CommissionAmount      decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	NetAmount             decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	PaymentDate           time.Time       `gorm:"not null"`
	Status                Status          `gorm:"type:varchar(20);not null;default:'pending'"`
	CreatedAt             time.Time
}
