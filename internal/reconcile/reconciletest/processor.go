package reconciletest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/reconcile"
)

// StubProcessor is a scripted reconcile.Processor that records every call.
type StubProcessor struct {
	mu sync.Mutex

	// RemoteID fixes the id of the next created subscription.
	RemoteID string
	// IntentStatus is the status of the first payment intent; "succeeded" when empty.
	IntentStatus string
	ClientSecret string
	AmountMinor  int64

	CustomerErr error
	AttachErr   error
	PriceErr    error
	CreateErr   error
	// CancelErrs is consumed one error per CancelSubscription call.
	CancelErrs []error

	calls    []string
	prices   map[string]string
	created  []reconcile.SubscriptionRequest
	canceled []string
	seq      int
	now      func() time.Time
}

var _ reconcile.Processor = (*StubProcessor)(nil)

func NewStubProcessor() *StubProcessor {
	return &StubProcessor{prices: map[string]string{}, now: time.Now}
}

func (p *StubProcessor) record(call string) int {
	p.calls = append(p.calls, call)
	p.seq++
	return p.seq
}

// Calls returns the names of the methods invoked, in order.
func (p *StubProcessor) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *StubProcessor) CallCount(name string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (p *StubProcessor) Created() []reconcile.SubscriptionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]reconcile.SubscriptionRequest(nil), p.created...)
}

func (p *StubProcessor) Canceled() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.canceled...)
}

func (p *StubProcessor) CreateCustomer(ctx context.Context, req reconcile.CustomerRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.record("CreateCustomer")
	if p.CustomerErr != nil {
		return "", p.CustomerErr
	}
	return fmt.Sprintf("cus_%d_%d", req.UserID, n), nil
}

func (p *StubProcessor) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("AttachPaymentMethod")
	return p.AttachErr
}

func (p *StubProcessor) FindOrCreatePrice(ctx context.Context, req reconcile.PriceRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.record("FindOrCreatePrice")
	if p.PriceErr != nil {
		return "", p.PriceErr
	}
	if id, ok := p.prices[req.LookupKey]; ok {
		return id, nil
	}
	id := fmt.Sprintf("price_%d", n)
	p.prices[req.LookupKey] = id
	return id, nil
}

func (p *StubProcessor) CreateSubscription(ctx context.Context, req reconcile.SubscriptionRequest) (*reconcile.RemoteSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.record("CreateSubscription")
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.created = append(p.created, req)

	status := p.IntentStatus
	if status == "" {
		status = reconcile.IntentSucceeded
	}
	amount := p.AmountMinor
	if amount == 0 {
		amount = 1999
	}
	remoteID := fmt.Sprintf("sub_%d", n)
	if p.RemoteID != "" {
		remoteID, p.RemoteID = p.RemoteID, ""
	}
	start := p.now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	remoteStatus := subscriptions.StatusIncomplete
	if status == reconcile.IntentSucceeded {
		remoteStatus = subscriptions.StatusActive
	}
	return &reconcile.RemoteSubscription{
		ID:          remoteID,
		Status:      remoteStatus,
		PeriodStart: &start,
		PeriodEnd:   &end,
		PaymentIntent: &reconcile.RemotePaymentIntent{
			ID:           "pi_" + strings.TrimPrefix(remoteID, "sub_"),
			Status:       status,
			ClientSecret: p.ClientSecret,
			AmountMinor:  amount,
			Currency:     "usd",
			InvoiceID:    "in_" + strings.TrimPrefix(remoteID, "sub_"),
		},
	}, nil
}

func (p *StubProcessor) CancelSubscription(ctx context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("CancelSubscription")
	if len(p.CancelErrs) > 0 {
		err := p.CancelErrs[0]
		p.CancelErrs = p.CancelErrs[1:]
		if err != nil {
			return err
		}
	}
	p.canceled = append(p.canceled, subscriptionID)
	return nil
}
