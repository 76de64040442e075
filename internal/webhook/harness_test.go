package webhook_test

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile"
	"creator-subscriptions/internal/reconcile/reconciletest"
	"creator-subscriptions/internal/webhook"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v75/webhook"
	"go.uber.org/zap/zaptest"
)

const testSecret = "whsec_test_secret"

type harness struct {
	store     *reconciletest.MemoryStore
	processor *reconciletest.StubProcessor
	orch      *reconcile.Orchestrator
	pipeline  *webhook.Pipeline
	registry  *prometheus.Registry

	creatorID    uint
	subscriberID uint
}

func newHarness(t *testing.T, cache webhook.ProcessedCache) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := reconciletest.NewMemoryStore()
	processor := reconciletest.NewStubProcessor()
	ledger := reconcile.NewLedger(store, logger)
	recorder := reconcile.NewRecorder(store, ledger, logger)
	reconciler := reconcile.NewReconciler(store, logger)
	reg := prometheus.NewRegistry()

	h := &harness{
		store:     store,
		processor: processor,
		registry:  reg,
		orch: reconcile.NewOrchestrator(store, processor, ledger, reconcile.NewMetrics(reg), logger, reconcile.OrchestratorConfig{
			CompensationTimeout: time.Second,
			CompensationBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
		}),
		pipeline: webhook.NewPipeline(
			webhook.NewVerifier(testSecret, 0),
			webhook.NewGate(store, cache, time.Minute, logger),
			webhook.NewRouter(reconciler, recorder, logger),
			webhook.NewMetrics(reg),
			logger,
			5*time.Second,
		),
	}
	h.creatorID = store.AddUser(users.User{
		Name:                 "Ada",
		Email:                "ada@example.com",
		SubscriptionPrice:    decimal.RequireFromString("5.00"),
		SubscriptionCurrency: "usd",
		CommissionRate:       decimal.NewFromInt(30),
	})
	h.subscriberID = store.AddUser(users.User{Email: "fan@example.com"})
	return h
}

func (h *harness) principal() users.Principal {
	return users.Principal{UserID: h.subscriberID, Email: "fan@example.com"}
}

// event builds a processor event envelope around object.
func event(id, eventType string, object map[string]any) map[string]any {
	return map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2023-08-16",
		"data":        map[string]any{"object": object},
	}
}

func sign(t *testing.T, secret string, body any, at time.Time) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	sig := stripewebhook.ComputeSignature(at, payload, secret)
	return payload, fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func signed(t *testing.T, body any) ([]byte, string) {
	return sign(t, testSecret, body, time.Now())
}

func subscriptionObject(id, status string, md map[string]string, periodStart, periodEnd time.Time) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"status":               status,
		"currency":             "usd",
		"metadata":             md,
		"current_period_start": periodStart.Unix(),
		"current_period_end":   periodEnd.Unix(),
	}
}

func invoiceObject(id, subscriptionID, paymentIntentID string, amountMinor int64) map[string]any {
	return map[string]any{
		"id":             id,
		"object":         "invoice",
		"subscription":   subscriptionID,
		"payment_intent": paymentIntentID,
		"amount_paid":    amountMinor,
		"amount_due":     amountMinor,
		"currency":       "usd",
	}
}

func paymentIntentObject(id string, amountMinor int64) map[string]any {
	return map[string]any{
		"id":       id,
		"object":   "payment_intent",
		"status":   "succeeded",
		"amount":   amountMinor,
		"currency": "usd",
	}
}
