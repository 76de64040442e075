package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Subscription pairs a subscriber with a creator. Status and period fields are
// owned by the processor's lifecycle events; identity and price are owned by the
// orchestrator that created the remote subscription.
type Subscription struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubscriberID         uint      `gorm:"not null;default:0;index:idx_subscriptions_pair,priority:1"`
	CreatorID            uint      `gorm:"not null;default:0;index:idx_subscriptions_pair,priority:2"`
	StripeSubscriptionID *string   `gorm:"column:stripe_subscription_id;uniqueIndex:idx_subscriptions_stripe_subscription_id"`
	Status               Status    `gorm:"type:varchar(20);not null;default:'incomplete';index"`

	CurrentPeriodStart *time.Time `gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end"`

	Price    decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0"`
	Currency string          `gorm:"type:varchar(3);not null;default:'usd'"`

	// Placeholder rows come from lifecycle events that beat the orchestrator's insert.
	Placeholder bool       `gorm:"not null;default:false"`
	CanceledAt  *time.Time `gorm:"column:canceled_at"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsLive reports whether the subscription currently entitles the subscriber.
func (s *Subscription) IsLive(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}

// RemoteID returns the processor subscription id or "".
func (s *Subscription) RemoteID() string {
	if s.StripeSubscriptionID == nil {
		return ""
	}
	return *s.StripeSubscriptionID
}
