package webhook_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/reconcile"
	"creator-subscriptions/internal/webhook"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) deliver(t *testing.T, body map[string]any) (webhook.Result, error) {
	t.Helper()
	payload, header := signed(t, body)
	return h.pipeline.Process(context.Background(), payload, header)
}

func (h *harness) subscription(t *testing.T, remoteID string) *subscriptions.Subscription {
	t.Helper()
	sub, err := h.store.GetSubscriptionByStripeID(context.Background(), remoteID)
	require.NoError(t, err)
	return sub
}

func uintString(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func TestAsynchronousPaymentLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.processor.IntentStatus = reconcile.IntentProcessing
	h.processor.RemoteID = "sub_e2e"
	h.processor.AmountMinor = 500

	res, err := h.orch.CreateSubscription(ctx, h.principal(), reconcile.CreateSubscriptionRequest{
		CreatorID:       h.creatorID,
		PaymentMethodID: "pm_card_visa",
		Price:           decimal.RequireFromString("5.00"),
		Currency:        "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusIncomplete, res.Status)
	assert.False(t, res.RequiresAction)
	assert.Empty(t, h.store.Earnings())

	succeeded := event("evt_pi", "payment_intent.succeeded", paymentIntentObject("pi_e2e", 500))
	out, err := h.deliver(t, succeeded)
	require.NoError(t, err)
	assert.Equal(t, webhook.DispositionApplied, out.Outcome.Disposition)

	entries := h.store.Earnings()
	require.Len(t, entries, 1)
	assert.True(t, decimal.RequireFromString("5").Equal(entries[0].GrossAmount))
	assert.True(t, decimal.RequireFromString("3.5").Equal(entries[0].NetAmount))
	assert.True(t, decimal.RequireFromString("1.5").Equal(entries[0].CommissionAmount))
	assert.Equal(t, subscriptions.StatusActive, h.subscription(t, "sub_e2e").Status)

	out, err = h.deliver(t, succeeded)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Len(t, h.store.Earnings(), 1)

	out, err = h.deliver(t, event("evt_fail", "invoice.payment_failed", invoiceObject("in_renew", "sub_e2e", "pi_renew", 500)))
	require.NoError(t, err)
	assert.Equal(t, webhook.DispositionApplied, out.Outcome.Disposition)
	assert.Equal(t, subscriptions.StatusPastDue, h.subscription(t, "sub_e2e").Status)

	now := time.Now()
	_, err = h.deliver(t, event("evt_del", "customer.subscription.deleted", subscriptionObject("sub_e2e", "canceled", nil, now, now.AddDate(0, 1, 0))))
	require.NoError(t, err)
	sub := h.subscription(t, "sub_e2e")
	assert.Equal(t, subscriptions.StatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	_, err = h.deliver(t, event("evt_late", "customer.subscription.updated", subscriptionObject("sub_e2e", "active", nil, now, now.AddDate(0, 2, 0))))
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusCanceled, h.subscription(t, "sub_e2e").Status)

	var failed int
	for _, txn := range h.store.Transactions() {
		if txn.Status == billing.PaymentFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Len(t, h.store.Earnings(), 1)
}

func TestInvoiceBeforeSubscriptionIsRedelivered(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Now()
	invoice := event("evt_inv", "invoice.payment_succeeded", invoiceObject("in_early", "sub_early", "pi_early", 500))

	out, err := h.deliver(t, invoice)
	require.ErrorIs(t, err, webhook.ErrRetryLater)
	assert.Equal(t, webhook.DispositionRetryable, out.Outcome.Disposition)
	marker, ok := h.store.Event("evt_inv")
	require.True(t, ok)
	assert.False(t, marker.Processed())

	md := map[string]string{
		reconcile.MetadataSubscriberID: uintString(h.subscriberID),
		reconcile.MetadataCreatorID:    uintString(h.creatorID),
	}
	_, err = h.deliver(t, event("evt_created", "customer.subscription.created", subscriptionObject("sub_early", "active", md, now, now.AddDate(0, 1, 0))))
	require.NoError(t, err)
	assert.True(t, h.subscription(t, "sub_early").Placeholder)

	out, err = h.deliver(t, invoice)
	require.NoError(t, err)
	assert.Equal(t, webhook.DispositionApplied, out.Outcome.Disposition)

	entries := h.store.Earnings()
	require.Len(t, entries, 1)
	assert.Equal(t, h.creatorID, entries[0].CreatorID)
	marker, _ = h.store.Event("evt_inv")
	assert.Equal(t, 2, marker.Attempts)
}

func TestSubscriptionEventsInAnyOrderConverge(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	updated := event("evt_upd", "customer.subscription.updated", subscriptionObject("sub_order", "past_due", nil, now, now.AddDate(0, 1, 0)))
	deleted := event("evt_del", "customer.subscription.deleted", subscriptionObject("sub_order", "canceled", nil, now, now.AddDate(0, 1, 0)))

	for name, order := range map[string][]map[string]any{
		"update first": {updated, deleted},
		"delete first": {deleted, updated},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			for _, body := range order {
				_, err := h.deliver(t, body)
				require.NoError(t, err)
			}
			assert.Equal(t, subscriptions.StatusCanceled, h.subscription(t, "sub_order").Status)
		})
	}
}

func TestPipelineRejections(t *testing.T) {
	h := newHarness(t, nil)
	body := event("evt_sig", "payment_intent.succeeded", paymentIntentObject("pi_x", 500))

	payload, _ := signed(t, body)
	_, err := h.pipeline.Process(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, webhook.ErrInvalidSignature)
	_, ok := h.store.Event("evt_sig")
	assert.False(t, ok)

	out, err := h.deliver(t, event("evt_unknown", "charge.refunded", map[string]any{"id": "ch_1", "object": "charge"}))
	require.NoError(t, err)
	assert.Equal(t, webhook.DispositionSkipped, out.Outcome.Disposition)
	assert.Equal(t, webhook.KindUnknown, out.Kind)

	count, err := testutil.GatherAndCount(h.registry, "webhook_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPipelineInFlightDelivery(t *testing.T) {
	h := newHarness(t, nil)
	_, _, err := h.store.ClaimEvent(context.Background(), "evt_busy", "invoice.payment_failed", time.Now(), time.Minute)
	require.NoError(t, err)

	res, err := h.deliver(t, event("evt_busy", "invoice.payment_failed", invoiceObject("in_1", "sub_1", "pi_1", 500)))
	require.ErrorIs(t, err, webhook.ErrRetryLater)
	assert.False(t, res.Duplicate)
}

func TestPipelineStoreOutage(t *testing.T) {
	h := newHarness(t, nil)
	h.store.FailWith("ClaimEvent", errors.New("connection refused"))

	_, err := h.deliver(t, event("evt_down", "invoice.payment_failed", invoiceObject("in_1", "sub_1", "pi_1", 500)))
	require.ErrorIs(t, err, webhook.ErrRetryLater)

	h.store.FailWith("ClaimEvent", nil)
	out, err := h.deliver(t, event("evt_down", "invoice.payment_failed", invoiceObject("in_1", "sub_1", "pi_1", 500)))
	require.NoError(t, err)
	assert.Equal(t, webhook.DispositionSkipped, out.Outcome.Disposition)
}

func TestPipelineUsesProcessedCache(t *testing.T) {
	cache := newMapCache()
	h := newHarness(t, cache)
	body := event("evt_cache", "payment_intent.succeeded", paymentIntentObject("pi_none", 500))

	_, err := h.deliver(t, body)
	require.NoError(t, err)
	assert.True(t, cache.seen["evt_cache"])

	h.store.FailWith("ClaimEvent", errors.New("should not be reached"))
	out, err := h.deliver(t, body)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
}
