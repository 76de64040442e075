package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"creator-subscriptions/internal/domain/earnings"
	"creator-subscriptions/internal/domain/plans"
	"creator-subscriptions/internal/domain/subscriptions"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Net earnings are kept to four decimal places, rounded half away from zero.
const earningsScale = 4

var hundred = decimal.NewFromInt(100)

// CreditRequest is the ledger boundary shared by the synchronous orchestrator
// path and the webhook path. PaymentIntentID is the idempotency key.
type CreditRequest struct {
	SubscriptionID  uuid.UUID
	Amount          decimal.Decimal
	Currency        string
	PaymentIntentID string
	CommissionRate  decimal.Decimal
	PaidAt          time.Time
}

type CreditResult struct {
	Applied bool
	Entry   *earnings.CreatorEarning
}

// Ledger credits creator earnings exactly once per successful payment.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// SplitCommission returns the creator's net amount and the platform commission
// for a gross amount at a percentage rate.
func SplitCommission(gross, rate decimal.Decimal) (net, commission decimal.Decimal, err error) {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return decimal.Zero, decimal.Zero, ErrInvalidCommissionRate
	}
	net = gross.Mul(decimal.NewFromInt(1).Sub(rate.Div(hundred))).Round(earningsScale)
	return net, gross.Sub(net), nil
}

// CommissionFor is the single source of the commission rate applied to a
// creator's payments, whichever path reports the payment.
func (l *Ledger) CommissionFor(ctx context.Context, creatorID uint) (decimal.Decimal, error) {
	if creatorID == 0 {
		return decimal.Zero, ErrCreatorUnknown
	}
	creator, err := l.store.GetUser(ctx, creatorID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load creator %d: %w", creatorID, err)
	}
	return creator.CommissionRate, nil
}

// Credit writes one ledger entry for req.PaymentIntentID and activates an
// incomplete subscription, atomically. A repeated call for the same intent
// reports Applied=false and changes nothing.
func (l *Ledger) Credit(ctx context.Context, req CreditRequest) (CreditResult, error) {
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		return CreditResult{}, fmt.Errorf("%w: payment intent id is required", ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return CreditResult{}, ErrInvalidAmount
	}
	net, commission, err := SplitCommission(req.Amount, req.CommissionRate)
	if err != nil {
		return CreditResult{}, err
	}
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = l.now()
	}

	var result CreditResult
	err = l.store.InTx(ctx, func(tx Store) error {
		sub, err := tx.GetSubscription(ctx, req.SubscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription %s: %w", req.SubscriptionID, err)
		}
		if sub.CreatorID == 0 {
			return ErrCreatorUnknown
		}

		entry := &earnings.CreatorEarning{
			CreatorID:             sub.CreatorID,
			SubscriptionID:        sub.ID,
			StripePaymentIntentID: req.PaymentIntentID,
			GrossAmount:           req.Amount,
			Currency:              plans.NormalizeCurrency(req.Currency),
			CommissionRate:        req.CommissionRate,
			CommissionAmount:      commission,
			NetAmount:             net,
			PaymentDate:           paidAt,
			Status:                earnings.StatusPending,
		}
		created, err := tx.InsertEarning(ctx, entry)
		if err != nil {
			return fmt.Errorf("insert earning: %w", err)
		}
		if !created {
			return nil
		}

		if _, err := tx.UpdateSubscription(ctx, sub.ID, func(s *subscriptions.Subscription) bool {
			if s.Status != subscriptions.StatusIncomplete {
				return false
			}
			s.Status = subscriptions.StatusActive
			return true
		}); err != nil {
			return fmt.Errorf("activate subscription: %w", err)
		}

		result = CreditResult{Applied: true, Entry: entry}
		return nil
	})
	if err != nil {
		return CreditResult{}, err
	}

	if result.Applied {
		l.logger.Info("creator earnings credited",
			zap.String("payment_intent_id", req.PaymentIntentID),
			zap.String("subscription_id", req.SubscriptionID.String()),
			zap.Uint("creator_id", result.Entry.CreatorID),
			zap.String("gross", req.Amount.String()),
			zap.String("net", net.String()),
			zap.String("commission_rate", req.CommissionRate.String()),
		)
	} else {
		l.logger.Debug("earnings already credited",
			zap.String("payment_intent_id", req.PaymentIntentID),
		)
	}
	return result, nil
}

// Payment is a successful charge against a tracked subscription.
type Payment struct {
	PaymentIntentID string
	Amount          decimal.Decimal
	Currency        string
	PaidAt          time.Time
}

// CreditPayment credits sub's creator for p at the creator's configured
// commission rate.
func (l *Ledger) CreditPayment(ctx context.Context, sub *subscriptions.Subscription, p Payment) (CreditResult, error) {
	rate, err := l.CommissionFor(ctx, sub.CreatorID)
	if err != nil {
		return CreditResult{}, err
	}
	return l.Credit(ctx, CreditRequest{
		SubscriptionID:  sub.ID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		PaymentIntentID: p.PaymentIntentID,
		CommissionRate:  rate,
		PaidAt:          p.PaidAt,
	})
}
