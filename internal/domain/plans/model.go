package plans

import "time"

// CreatorPrice caches the processor's recurring price for a creator at a given
// amount, so repeated subscriptions reuse one remote price.
type CreatorPrice struct {
	ID            uint   `gorm:"primaryKey"`
	CreatorID     uint   `gorm:"not null;index"`
	AmountMinor   int64  `gorm:"not null"`
	Currency      string `gorm:"type:varchar(3);not null"`
	LookupKey     string `gorm:"column:lookup_key;not null;uniqueIndex:idx_creator_prices_lookup_key"`
	StripePriceID string `gorm:"column:stripe_price_id;not null"`
	Interval      string `gorm:"not null;default:'month'"`
	CreatedAt     time.Time
}
