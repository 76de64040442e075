package events

import "time"

// ProcessedEvent marks a processor event id as claimed or applied.
//
// A row with ProcessedAt set is final. A row without it is either held by an
// in-flight delivery (ClaimedUntil in the future) or free to be retried.
type ProcessedEvent struct {
	ID              uint       `gorm:"primaryKey"`
	StripeEventID   string     `gorm:"column:stripe_event_id;type:varchar(191);not null;uniqueIndex:idx_processed_events_stripe_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index"`
	Attempts        int        `gorm:"not null;default:0"`
	ClaimedUntil    *time.Time `gorm:"column:claimed_until"`
	ProcessedAt     *time.Time `gorm:"column:processed_at"`
	ProcessingError string     `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (e *ProcessedEvent) Processed() bool {
	return e.ProcessedAt != nil
}

// Claim is the result of trying to take ownership of an event delivery.
type Claim int

const (
	// ClaimAcquired: this delivery owns the event and must apply it.
	ClaimAcquired Claim = iota
	// ClaimProcessed: the event was already applied.
	ClaimProcessed
	// ClaimInFlight: another delivery holds an unexpired claim.
	ClaimInFlight
)

func (c Claim) String() string {
	switch c {
	case ClaimAcquired:
		return "acquired"
	case ClaimProcessed:
		return "processed"
	case ClaimInFlight:
		return "in_flight"
	}
	return "unknown"
}
