package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"creator-subscriptions/internal/domain/plans"
	stripeinfra "creator-subscriptions/internal/infra/stripe"
	"creator-subscriptions/internal/reconcile"

	"github.com/stripe/stripe-go/v75"
)

// HandlerFunc applies one verified event.
type HandlerFunc func(ctx context.Context, env Envelope) error

var errUndecodable = errors.New("event object could not be decoded")

func decode(env Envelope, into any) error {
	if err := json.Unmarshal(env.Object, into); err != nil {
		return fmt.Errorf("%w: %s: %v", errUndecodable, env.Type, err)
	}
	return nil
}

// handlers builds the table for every known kind.
func handlers(reconciler *reconcile.Reconciler, recorder *reconcile.Recorder) map[Kind]HandlerFunc {
	subscriptionState := func(ctx context.Context, env Envelope) error {
		var sub stripe.Subscription
		if err := decode(env, &sub); err != nil {
			return err
		}
		_, err := reconciler.ApplyRemoteState(ctx, remoteState(&sub))
		return err
	}

	return map[Kind]HandlerFunc{
		KindSubscriptionCreated: subscriptionState,
		KindSubscriptionUpdated: subscriptionState,

		KindSubscriptionDeleted: func(ctx context.Context, env Envelope) error {
			var sub stripe.Subscription
			if err := decode(env, &sub); err != nil {
				return err
			}
			_, err := reconciler.Cancel(ctx, remoteState(&sub))
			return err
		},

		KindPaymentIntentSucceeded: func(ctx context.Context, env Envelope) error {
			var pi stripe.PaymentIntent
			if err := decode(env, &pi); err != nil {
				return err
			}
			if pi.ID == "" {
				return fmt.Errorf("%w: payment intent without id", errUndecodable)
			}
			return recorder.PaymentIntentSucceeded(ctx, reconcile.PaymentIntentOutcome{
				PaymentIntentID: pi.ID,
				PaidAt:          env.Created,
			})
		},

		KindInvoicePaymentSucceeded: func(ctx context.Context, env Envelope) error {
			var inv stripe.Invoice
			if err := decode(env, &inv); err != nil {
				return err
			}
			return recorder.InvoicePaid(ctx, invoiceOutcome(&inv, inv.AmountPaid, env.Created))
		},

		KindInvoicePaymentFailed: func(ctx context.Context, env Envelope) error {
			var inv stripe.Invoice
			if err := decode(env, &inv); err != nil {
				return err
			}
			return recorder.InvoicePaymentFailed(ctx, invoiceOutcome(&inv, inv.AmountDue, env.Created))
		},

		KindSetupIntentSucceeded: func(ctx context.Context, env Envelope) error {
			var si stripe.SetupIntent
			if err := decode(env, &si); err != nil {
				return err
			}
			var customerID, paymentMethodID string
			if si.Customer != nil {
				customerID = si.Customer.ID
			}
			if si.PaymentMethod != nil {
				paymentMethodID = si.PaymentMethod.ID
			}
			return recorder.SetupSucceeded(ctx, customerID, paymentMethodID)
		},
	}
}

func remoteState(sub *stripe.Subscription) reconcile.RemoteSubscriptionState {
	return reconcile.RemoteSubscriptionState{
		StripeSubscriptionID: sub.ID,
		Status:               stripeinfra.NormalizeStripeStatus(string(sub.Status)),
		PeriodStart:          unixTime(sub.CurrentPeriodStart),
		PeriodEnd:            unixTime(sub.CurrentPeriodEnd),
		CanceledAt:           firstTime(sub.CanceledAt, sub.EndedAt),
		SubscriberID:         idFromMetadata(sub.Metadata, reconcile.MetadataSubscriberID),
		CreatorID:            idFromMetadata(sub.Metadata, reconcile.MetadataCreatorID),
		Currency:             string(sub.Currency),
	}
}

func invoiceOutcome(inv *stripe.Invoice, amountMinor int64, at time.Time) reconcile.InvoiceOutcome {
	out := reconcile.InvoiceOutcome{
		InvoiceID: inv.ID,
		Amount:    plans.FromMinorUnits(amountMinor, string(inv.Currency)),
		Currency:  string(inv.Currency),
		At:        at,
	}
	if inv.Subscription != nil {
		out.StripeSubscriptionID = inv.Subscription.ID
	}
	if inv.PaymentIntent != nil {
		out.PaymentIntentID = inv.PaymentIntent.ID
	}
	return out
}

func idFromMetadata(md map[string]string, key string) uint {
	if md == nil {
		return 0
	}
	s := md[key]
	if s == "" {
		return 0
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func firstTime(secs ...int64) *time.Time {
	for _, s := range secs {
		if t := unixTime(s); t != nil {
			return t
		}
	}
	return nil
}
