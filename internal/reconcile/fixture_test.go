package reconcile_test

import (
	"context"
	"testing"
	"time"

	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile"
	"creator-subscriptions/internal/reconcile/reconciletest"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	store      *reconciletest.MemoryStore
	processor  *reconciletest.StubProcessor
	ledger     *reconcile.Ledger
	recorder   *reconcile.Recorder
	reconciler *reconcile.Reconciler
	orch       *reconcile.Orchestrator

	creatorID    uint
	subscriberID uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := reconciletest.NewMemoryStore()
	processor := reconciletest.NewStubProcessor()
	ledger := reconcile.NewLedger(store, logger)

	f := &fixture{
		store:      store,
		processor:  processor,
		ledger:     ledger,
		recorder:   reconcile.NewRecorder(store, ledger, logger),
		reconciler: reconcile.NewReconciler(store, logger),
		orch: reconcile.NewOrchestrator(store, processor, ledger, nil, logger, reconcile.OrchestratorConfig{
			CompensationTimeout: time.Second,
			CompensationBackOff: func() backoff.BackOff {
				return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
			},
		}),
	}
	f.creatorID = store.AddUser(users.User{
		Name:                 "Ada",
		Email:                "ada@example.com",
		Role:                 "artist",
		SubscriptionPrice:    decimal.RequireFromString("19.99"),
		SubscriptionCurrency: "usd",
		CommissionRate:       decimal.NewFromInt(30),
	})
	f.subscriberID = store.AddUser(users.User{Name: "Fan", Email: "fan@example.com", Role: "user"})
	return f
}

func (f *fixture) principal() users.Principal {
	return users.Principal{UserID: f.subscriberID, Email: "fan@example.com", Role: "user"}
}

func (f *fixture) request() reconcile.CreateSubscriptionRequest {
	return reconcile.CreateSubscriptionRequest{
		CreatorID:       f.creatorID,
		PaymentMethodID: "pm_card_visa",
		Price:           decimal.RequireFromString("19.99"),
		Currency:        "USD",
	}
}

// seedSubscription stores a tracked subscription for the fixture's pair.
func (f *fixture) seedSubscription(t *testing.T, remoteID string, status subscriptions.Status) *subscriptions.Subscription {
	t.Helper()
	sub, err := f.store.UpsertSubscriptionByStripeID(context.Background(), remoteID, &subscriptions.Subscription{
		SubscriberID: f.subscriberID,
		CreatorID:    f.creatorID,
		Status:       status,
		Price:        decimal.RequireFromString("19.99"),
		Currency:     "usd",
	}, nil)
	require.NoError(t, err)
	return sub
}

func (f *fixture) subscription(t *testing.T, remoteID string) *subscriptions.Subscription {
	t.Helper()
	sub, err := f.store.GetSubscriptionByStripeID(context.Background(), remoteID)
	require.NoError(t, err)
	return sub
}

func ptrTime(t time.Time) *time.Time { return &t }
