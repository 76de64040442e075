package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/plans"
	"creator-subscriptions/internal/domain/subscriptions"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentIntentOutcome is a payment intent that reached succeeded.
type PaymentIntentOutcome struct {
	PaymentIntentID string
	PaidAt          time.Time
}

// InvoiceOutcome is a paid or failed invoice of a processor subscription.
type InvoiceOutcome struct {
	InvoiceID            string
	StripeSubscriptionID string
	PaymentIntentID      string
	Amount               decimal.Decimal
	Currency             string
	At                   time.Time
}

// Recorder keeps payment transactions in step with processor payment events
// and hands successful subscription payments to the ledger.
type Recorder struct {
	store  Store
	ledger *Ledger
	logger *zap.Logger
}

func NewRecorder(store Store, ledger *Ledger, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, ledger: ledger, logger: logger}
}

// PaymentIntentSucceeded marks the transaction for the intent succeeded.
// Intents without a local transaction are direct charges and report ErrNotTracked.
func (r *Recorder) PaymentIntentSucceeded(ctx context.Context, out PaymentIntentOutcome) error {
	txn, err := r.store.UpdatePaymentTransaction(ctx, out.PaymentIntentID, func(t *billing.PaymentTransaction) bool {
		next, changed := billing.NextPaymentStatus(t.Status, billing.PaymentSucceeded)
		t.Status = next
		return changed
	})
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("payment intent %s: %w", out.PaymentIntentID, ErrNotTracked)
	}
	if err != nil {
		return fmt.Errorf("update payment transaction: %w", err)
	}
	if txn.Status != billing.PaymentSucceeded || txn.SubscriptionID == nil {
		return nil
	}

	sub, err := r.store.GetSubscription(ctx, *txn.SubscriptionID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", *txn.SubscriptionID, err)
	}
	_, err = r.ledger.CreditPayment(ctx, sub, Payment{
		PaymentIntentID: txn.StripePaymentIntentID,
		Amount:          txn.Amount,
		Currency:        txn.Currency,
		PaidAt:          out.PaidAt,
	})
	return err
}

// InvoicePaid records a paid subscription invoice, including renewals the
// orchestrator never saw, and credits the creator.
func (r *Recorder) InvoicePaid(ctx context.Context, out InvoiceOutcome) error {
	if out.StripeSubscriptionID == "" {
		return fmt.Errorf("invoice %s has no subscription: %w", out.InvoiceID, ErrNotTracked)
	}
	if out.PaymentIntentID == "" || !out.Amount.IsPositive() {
		r.logger.Debug("paid invoice carries no charge",
			zap.String("invoice_id", out.InvoiceID),
			zap.String("stripe_subscription_id", out.StripeSubscriptionID),
		)
		return nil
	}

	sub, err := r.store.GetSubscriptionByStripeID(ctx, out.StripeSubscriptionID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("subscription %s: %w", out.StripeSubscriptionID, ErrSubscriptionAbsent)
	}
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if sub.CreatorID == 0 {
		return fmt.Errorf("subscription %s: %w", out.StripeSubscriptionID, ErrCreatorUnknown)
	}

	if err := r.recordTransaction(ctx, sub, out, billing.PaymentSucceeded); err != nil {
		return err
	}
	_, err = r.ledger.CreditPayment(ctx, sub, Payment{
		PaymentIntentID: out.PaymentIntentID,
		Amount:          out.Amount,
		Currency:        out.Currency,
		PaidAt:          out.At,
	})
	return err
}

// InvoicePaymentFailed moves the subscription to past_due and fails the
// transaction. A first payment that fails leaves the subscription incomplete.
func (r *Recorder) InvoicePaymentFailed(ctx context.Context, out InvoiceOutcome) error {
	if out.StripeSubscriptionID == "" {
		return fmt.Errorf("invoice %s has no subscription: %w", out.InvoiceID, ErrNotTracked)
	}
	sub, err := r.store.GetSubscriptionByStripeID(ctx, out.StripeSubscriptionID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("subscription %s: %w", out.StripeSubscriptionID, ErrNotTracked)
	}
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}

	sub, err = r.store.UpdateSubscription(ctx, sub.ID, func(s *subscriptions.Subscription) bool {
		if s.Status == subscriptions.StatusIncomplete {
			return false
		}
		next, changed := subscriptions.Transition(s.Status, subscriptions.StatusPastDue)
		s.Status = next
		return changed
	})
	if err != nil {
		return fmt.Errorf("mark subscription past due: %w", err)
	}

	if out.PaymentIntentID == "" {
		return nil
	}
	return r.recordTransaction(ctx, sub, out, billing.PaymentFailed)
}

// SetupSucceeded stores a confirmed payment method as the customer's default.
func (r *Recorder) SetupSucceeded(ctx context.Context, customerID, paymentMethodID string) error {
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(paymentMethodID) == "" {
		return fmt.Errorf("setup intent without customer or payment method: %w", ErrNotTracked)
	}
	user, err := r.store.GetUserByStripeCustomerID(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("customer %s: %w", customerID, ErrNotTracked)
	}
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	changed, err := r.store.SetDefaultPaymentMethod(ctx, user.ID, paymentMethodID)
	if err != nil {
		return fmt.Errorf("store default payment method: %w", err)
	}
	if changed {
		r.logger.Info("default payment method updated",
			zap.Uint("user_id", user.ID),
			zap.String("payment_method_id", paymentMethodID),
		)
	}
	return nil
}

// recordTransaction creates the intent's transaction with status, or moves an
// existing one there, attaching the invoice and subscription if missing.
func (r *Recorder) recordTransaction(ctx context.Context, sub *subscriptions.Subscription, out InvoiceOutcome, status billing.PaymentStatus) error {
	var invoiceID *string
	if out.InvoiceID != "" {
		invoiceID = &out.InvoiceID
	}
	subID := sub.ID
	created, err := r.store.CreatePaymentTransaction(ctx, &billing.PaymentTransaction{
		StripePaymentIntentID: out.PaymentIntentID,
		StripeInvoiceID:       invoiceID,
		SubscriptionID:        &subID,
		PayerID:               sub.SubscriberID,
		RecipientID:           sub.CreatorID,
		Amount:                out.Amount,
		Currency:              plans.NormalizeCurrency(out.Currency),
		Status:                status,
		Type:                  billing.TypeSubscription,
		Description:           "subscription invoice " + out.InvoiceID,
	})
	if err != nil {
		return fmt.Errorf("create payment transaction: %w", err)
	}
	if created {
		return nil
	}

	_, err = r.store.UpdatePaymentTransaction(ctx, out.PaymentIntentID, func(t *billing.PaymentTransaction) bool {
		next, changed := billing.NextPaymentStatus(t.Status, status)
		t.Status = next
		if t.StripeInvoiceID == nil && invoiceID != nil {
			t.StripeInvoiceID = invoiceID
			changed = true
		}
		if t.SubscriptionID == nil {
			t.SubscriptionID = &subID
			changed = true
		}
		return changed
	})
	if err != nil {
		return fmt.Errorf("update payment transaction: %w", err)
	}
	return nil
}
