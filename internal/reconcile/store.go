package reconcile

import (
	"context"
	"time"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/earnings"
	"creator-subscriptions/internal/domain/events"
	"creator-subscriptions/internal/domain/plans"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"

	"github.com/google/uuid"
)

// Store is the persistence boundary of the reconciliation core. Every write is
// keyed by a stable processor id so repeated or concurrent deliveries converge;
// callers never hold locks between calls.
//
// Mutating methods take a callback that runs against the current row while the
// implementation holds it exclusively (a row lock for postgres). The callback
// returns whether it changed the row.
type Store interface {
	// InTx runs fn against a Store bound to a single transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	GetUser(ctx context.Context, id uint) (*users.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*users.User, error)
	SetStripeCustomerID(ctx context.Context, userID uint, customerID string) error
	SetDefaultPaymentMethod(ctx context.Context, userID uint, paymentMethodID string) (bool, error)

	FindCreatorPrice(ctx context.Context, lookupKey string) (*plans.CreatorPrice, error)
	SaveCreatorPrice(ctx context.Context, price *plans.CreatorPrice) error

	FindLiveSubscription(ctx context.Context, subscriberID, creatorID uint, now time.Time) (*subscriptions.Subscription, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*subscriptions.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*subscriptions.Subscription, error)
	// UpsertSubscriptionByStripeID inserts seed when no row carries the remote id
	// and returns seed itself; otherwise it applies mutate to the existing row.
	UpsertSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string, seed *subscriptions.Subscription, mutate func(*subscriptions.Subscription) bool) (*subscriptions.Subscription, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, mutate func(*subscriptions.Subscription) bool) (*subscriptions.Subscription, error)
	ListSubscriptionsForUser(ctx context.Context, userID uint) ([]subscriptions.Subscription, error)
	ListRecentSubscriptions(ctx context.Context, limit int) ([]subscriptions.Subscription, error)

	// CreatePaymentTransaction inserts unless a row with the same intent id exists.
	CreatePaymentTransaction(ctx context.Context, txn *billing.PaymentTransaction) (bool, error)
	UpdatePaymentTransaction(ctx context.Context, paymentIntentID string, mutate func(*billing.PaymentTransaction) bool) (*billing.PaymentTransaction, error)
	ListPaymentTransactionsForUser(ctx context.Context, userID uint) ([]billing.PaymentTransaction, error)
	ListRecentPaymentTransactions(ctx context.Context, limit int) ([]billing.PaymentTransaction, error)

	// InsertEarning inserts unless an entry with the same intent id exists.
	InsertEarning(ctx context.Context, entry *earnings.CreatorEarning) (bool, error)
	ListEarnings(ctx context.Context, creatorID uint) ([]earnings.CreatorEarning, error)

	ClaimEvent(ctx context.Context, eventID, eventType string, now time.Time, lease time.Duration) (*events.ProcessedEvent, events.Claim, error)
	MarkEventProcessed(ctx context.Context, id uint, now time.Time) error
	ReleaseEvent(ctx context.Context, id uint, processingErr string) error
}
