package reconcile

import (
	"context"
	"time"

	"creator-subscriptions/internal/domain/subscriptions"
)

// Payment intent statuses reported by the processor.
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentRequiresAction        = "requires_action"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentCanceled              = "canceled"
)

// Metadata keys stamped on remote subscriptions so lifecycle events can be
// attributed even before the local row exists.
const (
	MetadataSubscriberID = "subscriber_id"
	MetadataCreatorID    = "creator_id"
)

// Processor is the remote billing service as seen by the orchestrator.
type Processor interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	// FindOrCreatePrice returns the recurring price registered under
	// req.LookupKey, creating it only when none exists.
	FindOrCreatePrice(ctx context.Context, req PriceRequest) (string, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*RemoteSubscription, error)
	// CancelSubscription is idempotent: canceling a missing or already
	// canceled subscription succeeds.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type CustomerRequest struct {
	UserID uint
	Email  string
}

type PriceRequest struct {
	LookupKey   string
	CreatorID   uint
	AmountMinor int64
	Currency    string
	Interval    string
	ProductName string
}

type SubscriptionRequest struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	Metadata        map[string]string
	IdempotencyKey  string
}

type RemoteSubscription struct {
	ID            string
	Status        subscriptions.Status
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	PaymentIntent *RemotePaymentIntent
}

type RemotePaymentIntent struct {
	ID           string
	Status       string
	ClientSecret string
	AmountMinor  int64
	Currency     string
	InvoiceID    string
}
