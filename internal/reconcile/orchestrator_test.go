package reconcile_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSubscriptionSynchronousSuccess(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, res.Status)
	assert.False(t, res.RequiresAction)

	assert.Equal(t, []string{"CreateCustomer", "AttachPaymentMethod", "FindOrCreatePrice", "CreateSubscription"}, f.processor.Calls())
	created := f.processor.Created()
	require.Len(t, created, 1)
	assert.Equal(t, strconv.FormatUint(uint64(f.subscriberID), 10), created[0].Metadata[reconcile.MetadataSubscriberID])
	assert.Equal(t, strconv.FormatUint(uint64(f.creatorID), 10), created[0].Metadata[reconcile.MetadataCreatorID])

	subs := f.store.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, res.SubscriptionID, subs[0].ID)
	assert.False(t, subs[0].Placeholder)

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, billing.PaymentSucceeded, txns[0].Status)
	assert.True(t, decimal.RequireFromString("19.99").Equal(txns[0].Amount))

	entries := f.store.Earnings()
	require.Len(t, entries, 1)
	assert.True(t, decimal.RequireFromString("13.993").Equal(entries[0].NetAmount))
	assert.Equal(t, txns[0].StripePaymentIntentID, entries[0].StripePaymentIntentID)

	subscriber, err := f.store.GetUser(context.Background(), f.subscriberID)
	require.NoError(t, err)
	require.NotNil(t, subscriber.StripeCustomerID)
}

func TestCreateSubscriptionRejectsBeforeRemoteCalls(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(t *testing.T, f *fixture, p *users.Principal, req *reconcile.CreateSubscriptionRequest)
		want   error
	}{
		{
			name: "active subscription exists",
			mutate: func(t *testing.T, f *fixture, _ *users.Principal, _ *reconcile.CreateSubscriptionRequest) {
				f.seedSubscription(t, "sub_existing", subscriptions.StatusActive)
			},
			want: reconcile.ErrDuplicateSubscription,
		},
		{
			name: "price differs",
			mutate: func(_ *testing.T, _ *fixture, _ *users.Principal, req *reconcile.CreateSubscriptionRequest) {
				req.Price = decimal.RequireFromString("9.99")
			},
			want: reconcile.ErrPriceMismatch,
		},
		{
			name: "currency differs",
			mutate: func(_ *testing.T, _ *fixture, _ *users.Principal, req *reconcile.CreateSubscriptionRequest) {
				req.Currency = "eur"
			},
			want: reconcile.ErrPriceMismatch,
		},
		{
			name: "creator without price",
			mutate: func(_ *testing.T, f *fixture, _ *users.Principal, req *reconcile.CreateSubscriptionRequest) {
				req.CreatorID = f.store.AddUser(users.User{Email: "free@example.com"})
			},
			want: reconcile.ErrCreatorNotAccepting,
		},
		{
			name: "self subscription",
			mutate: func(_ *testing.T, f *fixture, p *users.Principal, _ *reconcile.CreateSubscriptionRequest) {
				p.UserID = f.creatorID
			},
			want: reconcile.ErrInvalidRequest,
		},
		{
			name: "missing payment method",
			mutate: func(_ *testing.T, _ *fixture, _ *users.Principal, req *reconcile.CreateSubscriptionRequest) {
				req.PaymentMethodID = ""
			},
			want: reconcile.ErrInvalidRequest,
		},
		{
			name: "unknown creator",
			mutate: func(_ *testing.T, _ *fixture, _ *users.Principal, req *reconcile.CreateSubscriptionRequest) {
				req.CreatorID = 424242
			},
			want: reconcile.ErrInvalidRequest,
		},
		{
			name: "anonymous caller",
			mutate: func(_ *testing.T, _ *fixture, p *users.Principal, _ *reconcile.CreateSubscriptionRequest) {
				*p = users.Principal{}
			},
			want: reconcile.ErrInvalidRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			p, req := f.principal(), f.request()
			tc.mutate(t, f, &p, &req)

			_, err := f.orch.CreateSubscription(context.Background(), p, req)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.processor.Calls())
		})
	}
}

func TestCreateSubscriptionExpiredSubscriptionDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	old := f.seedSubscription(t, "sub_old", subscriptions.StatusActive)
	_, err := f.store.UpdateSubscription(context.Background(), old.ID, func(s *subscriptions.Subscription) bool {
		s.CurrentPeriodEnd = ptrTime(time.Now().Add(-time.Hour))
		return true
	})
	require.NoError(t, err)

	_, err = f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.NoError(t, err)
}

func TestCreateSubscriptionRequiresAction(t *testing.T) {
	f := newFixture(t)
	f.processor.IntentStatus = reconcile.IntentRequiresAction
	f.processor.ClientSecret = "pi_secret_123"

	res, err := f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.NoError(t, err)
	assert.True(t, res.RequiresAction)
	assert.Equal(t, "pi_secret_123", res.ClientContinuationToken)
	assert.Equal(t, subscriptions.StatusIncomplete, res.Status)

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, billing.PaymentPending, txns[0].Status)
	assert.Empty(t, f.store.Earnings())
}

func TestCreateSubscriptionDeclined(t *testing.T) {
	f := newFixture(t)
	f.processor.IntentStatus = reconcile.IntentRequiresPaymentMethod

	_, err := f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.ErrorIs(t, err, reconcile.ErrPaymentDeclined)

	subs := f.store.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, subscriptions.StatusIncomplete, subs[0].Status)
	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, billing.PaymentFailed, txns[0].Status)
	assert.Empty(t, f.store.Earnings())
}

func TestCreateSubscriptionCompensatesWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	f.processor.RemoteID = "sub_orphan"
	f.store.FailWith("UpsertSubscriptionByStripeID", errors.New("connection refused"))

	_, err := f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.ErrorIs(t, err, reconcile.ErrCompensationRequired)
	assert.NotErrorIs(t, err, reconcile.ErrCompensationFailed)
	assert.Equal(t, []string{"sub_orphan"}, f.processor.Canceled())
	assert.Empty(t, f.store.Subscriptions())
	assert.Empty(t, f.store.Earnings())
}

func TestCompensationRetriesTransientCancelFailures(t *testing.T) {
	f := newFixture(t)
	f.processor.RemoteID = "sub_flaky"
	f.processor.CancelErrs = []error{errors.New("timeout"), errors.New("timeout")}
	f.store.FailWith("UpsertSubscriptionByStripeID", errors.New("connection refused"))

	_, err := f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.ErrorIs(t, err, reconcile.ErrCompensationRequired)
	assert.NotErrorIs(t, err, reconcile.ErrCompensationFailed)
	assert.Equal(t, 3, f.processor.CallCount("CancelSubscription"))
	assert.Equal(t, []string{"sub_flaky"}, f.processor.Canceled())
}

func TestCompensationFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.processor.CancelErrs = []error{reconcile.ErrProcessorRejected}
	f.store.FailWith("UpsertSubscriptionByStripeID", errors.New("connection refused"))

	_, err := f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.ErrorIs(t, err, reconcile.ErrCompensationRequired)
	require.ErrorIs(t, err, reconcile.ErrCompensationFailed)
	assert.Equal(t, 1, f.processor.CallCount("CancelSubscription"))
}

func TestCompensationSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	f.processor.RemoteID = "sub_abandoned"
	f.store.FailWith("UpsertSubscriptionByStripeID", context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.CreateSubscription(ctx, f.principal(), f.request())
	require.ErrorIs(t, err, reconcile.ErrCompensationRequired)
	assert.Equal(t, []string{"sub_abandoned"}, f.processor.Canceled())
}

func TestCreateSubscriptionReusesCustomerAndPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.store.AddUser(users.User{Email: "other@example.com"})

	_, err := f.orch.CreateSubscription(ctx, f.principal(), f.request())
	require.NoError(t, err)
	_, err = f.orch.CreateSubscription(ctx, users.Principal{UserID: other, Email: "other@example.com"}, f.request())
	require.NoError(t, err)

	assert.Equal(t, 1, f.processor.CallCount("FindOrCreatePrice"))
	assert.Equal(t, 2, f.processor.CallCount("CreateCustomer"))

	// A second creator for the first subscriber reuses the stored customer.
	second := f.store.AddUser(users.User{
		Email:                "bob@example.com",
		SubscriptionPrice:    decimal.RequireFromString("5"),
		SubscriptionCurrency: "usd",
		CommissionRate:       decimal.NewFromInt(20),
	})
	req := f.request()
	req.CreatorID = second
	req.Price = decimal.RequireFromString("5.00")
	_, err = f.orch.CreateSubscription(ctx, f.principal(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.processor.CallCount("CreateCustomer"))
	assert.Equal(t, 2, f.processor.CallCount("FindOrCreatePrice"))
}

func TestCreateSubscriptionEnrichesEarlyPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.RemoteID = "sub_early"
	f.processor.IntentStatus = reconcile.IntentProcessing

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	_, err := f.reconciler.ApplyRemoteState(ctx, reconcile.RemoteSubscriptionState{
		StripeSubscriptionID: "sub_early",
		Status:               subscriptions.StatusActive,
		PeriodStart:          ptrTime(time.Now().UTC()),
		PeriodEnd:            &periodEnd,
	})
	require.NoError(t, err)

	res, err := f.orch.CreateSubscription(ctx, f.principal(), f.request())
	require.NoError(t, err)

	sub := f.subscription(t, "sub_early")
	assert.Equal(t, res.SubscriptionID, sub.ID)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)
	assert.False(t, sub.Placeholder)
	assert.Equal(t, f.subscriberID, sub.SubscriberID)
	assert.Equal(t, f.creatorID, sub.CreatorID)
	assert.True(t, decimal.RequireFromString("19.99").Equal(sub.Price))
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*sub.CurrentPeriodEnd))
	assert.Len(t, f.store.Subscriptions(), 1)
}

func TestCreateSubscriptionProcessorFailureBeforeRemoteCreate(t *testing.T) {
	f := newFixture(t)
	f.processor.AttachErr = reconcile.ErrProcessorRejected

	_, err := f.orch.CreateSubscription(context.Background(), f.principal(), f.request())
	require.ErrorIs(t, err, reconcile.ErrProcessorRejected)
	assert.Zero(t, f.processor.CallCount("CreateSubscription"))
	assert.Zero(t, f.processor.CallCount("CancelSubscription"))
	assert.Empty(t, f.store.Subscriptions())
}
