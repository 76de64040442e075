package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

const TypeSubscription = "subscription"

// PaymentTransaction is one charge attempt, keyed by the processor's payment intent.
type PaymentTransaction struct {
	ID                    uint            `gorm:"primaryKey"`
	StripePaymentIntentID string          `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex:idx_payment_transactions_intent"`
	StripeInvoiceID       *string         `gorm:"column:stripe_invoice_id"`
	SubscriptionID        *uuid.UUID      `gorm:"type:uuid;index"`
	PayerID               uint            `gorm:"index"`
	RecipientID           uint            `gorm:"index"`
	Amount                decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Currency              string          `gorm:"type:varchar(3);not null"`
	Status                PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending'"`
	Type                  string          `gorm:"type:varchar(32);not null;default:'subscription'"`
	Description           string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NextPaymentStatus applies a terminal outcome to a transaction status.
// succeeded never changes again; a failed attempt may still succeed when the
// processor retries the same intent.
func NextPaymentStatus(from, to PaymentStatus) (PaymentStatus, bool) {
	if from == to || from == PaymentSucceeded {
		return from, false
	}
	switch to {
	case PaymentSucceeded, PaymentFailed:
		return to, true
	}
	return from, false
}
