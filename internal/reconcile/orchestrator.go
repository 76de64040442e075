package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/plans"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateSubscriptionRequest struct {
	CreatorID       uint            `json:"creator_id" validate:"required"`
	PaymentMethodID string          `json:"payment_method_id" validate:"required,max=255"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

type CreateSubscriptionResult struct {
	SubscriptionID          uuid.UUID            `json:"subscription_id"`
	Status                  subscriptions.Status `json:"status"`
	RequiresAction          bool                 `json:"requires_action,omitempty"`
	ClientContinuationToken string               `json:"client_continuation_token,omitempty"`
}

type OrchestratorConfig struct {
	// CompensationTimeout bounds the compensating cancel independently of the
	// caller's context.
	CompensationTimeout time.Duration
	// CompensationBackOff builds the retry policy for the compensating cancel.
	CompensationBackOff func() backoff.BackOff
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		CompensationTimeout: 30 * time.Second,
		CompensationBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Orchestrator creates a paid subscription on the processor and persists it.
type Orchestrator struct {
	store     Store
	processor Processor
	ledger    *Ledger
	metrics   *Metrics
	logger    *zap.Logger
	validate  *validator.Validate
	cfg       OrchestratorConfig
	now       func() time.Time
}

func NewOrchestrator(store Store, processor Processor, ledger *Ledger, metrics *Metrics, logger *zap.Logger, cfg OrchestratorConfig) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = def.CompensationTimeout
	}
	if cfg.CompensationBackOff == nil {
		cfg.CompensationBackOff = def.CompensationBackOff
	}
	return &Orchestrator{
		store:     store,
		processor: processor,
		ledger:    ledger,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(),
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateSubscription subscribes principal to the creator in req.
//
// Business rejections happen before any processor call. Once the remote
// subscription exists, a failure to persist it locally triggers a compensating
// cancel and an error wrapping ErrCompensationRequired.
func (o *Orchestrator) CreateSubscription(ctx context.Context, principal users.Principal, req CreateSubscriptionRequest) (*CreateSubscriptionResult, error) {
	if o.processor == nil {
		return nil, ErrMisconfigured
	}
	if principal.IsZero() {
		return nil, fmt.Errorf("%w: missing subscriber", ErrInvalidRequest)
	}
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	}
	if principal.UserID == req.CreatorID {
		return nil, fmt.Errorf("%w: cannot subscribe to yourself", ErrInvalidRequest)
	}

	creator, err := o.store.GetUser(ctx, req.CreatorID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: creator %d not found", ErrInvalidRequest, req.CreatorID)
	}
	if err != nil {
		return nil, fmt.Errorf("load creator: %w", err)
	}
	if !creator.AcceptsSubscriptions() {
		return nil, ErrCreatorNotAccepting
	}
	currency := plans.NormalizeCurrency(req.Currency)
	if currency != plans.NormalizeCurrency(creator.SubscriptionCurrency) || !req.Price.Equal(creator.SubscriptionPrice) {
		return nil, ErrPriceMismatch
	}

	_, err = o.store.FindLiveSubscription(ctx, principal.UserID, creator.ID, o.now())
	if err == nil {
		return nil, ErrDuplicateSubscription
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing subscription: %w", err)
	}

	subscriber, err := o.store.GetUser(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("load subscriber: %w", err)
	}
	customerID, err := o.ensureCustomer(ctx, subscriber)
	if err != nil {
		return nil, err
	}
	if err := o.processor.AttachPaymentMethod(ctx, customerID, req.PaymentMethodID); err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}
	priceID, err := o.resolvePrice(ctx, creator, currency)
	if err != nil {
		return nil, err
	}

	remote, err := o.processor.CreateSubscription(ctx, SubscriptionRequest{
		CustomerID:      customerID,
		PriceID:         priceID,
		PaymentMethodID: req.PaymentMethodID,
		Metadata: map[string]string{
			MetadataSubscriberID: strconv.FormatUint(uint64(subscriber.ID), 10),
			MetadataCreatorID:    strconv.FormatUint(uint64(creator.ID), 10),
		},
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote subscription: %w", err)
	}

	sub, err := o.persist(ctx, subscriber, creator, remote)
	if err != nil {
		return nil, o.compensate(ctx, remote.ID, err)
	}

	result := &CreateSubscriptionResult{SubscriptionID: sub.ID, Status: sub.Status}
	pi := remote.PaymentIntent
	if pi == nil {
		return result, nil
	}
	o.recordTransaction(ctx, sub, pi, req.Price, currency)

	switch pi.Status {
	case IntentRequiresAction, IntentRequiresConfirmation:
		result.RequiresAction = true
		result.ClientContinuationToken = pi.ClientSecret
	case IntentSucceeded:
		amount := req.Price
		if pi.AmountMinor > 0 {
			amount = plans.FromMinorUnits(pi.AmountMinor, currency)
		}
		if _, err := o.ledger.CreditPayment(ctx, sub, Payment{
			PaymentIntentID: pi.ID,
			Amount:          amount,
			Currency:        currency,
			PaidAt:          o.now(),
		}); err != nil {
			// The payment_intent.succeeded webhook credits with the same key.
			o.logger.Warn("synchronous earnings credit failed",
				zap.Error(err),
				zap.String("payment_intent_id", pi.ID),
				zap.String("subscription_id", sub.ID.String()),
			)
			return result, nil
		}
		if fresh, err := o.store.GetSubscription(ctx, sub.ID); err == nil {
			result.Status = fresh.Status
		}
	case IntentRequiresPaymentMethod, IntentCanceled:
		o.logger.Info("first subscription payment declined",
			zap.String("payment_intent_id", pi.ID),
			zap.String("stripe_subscription_id", remote.ID),
		)
		return nil, ErrPaymentDeclined
	}
	return result, nil
}

func (o *Orchestrator) ensureCustomer(ctx context.Context, subscriber *users.User) (string, error) {
	if subscriber.StripeCustomerID != nil && *subscriber.StripeCustomerID != "" {
		return *subscriber.StripeCustomerID, nil
	}
	customerID, err := o.processor.CreateCustomer(ctx, CustomerRequest{UserID: subscriber.ID, Email: subscriber.Email})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if err := o.store.SetStripeCustomerID(ctx, subscriber.ID, customerID); err != nil {
		return "", fmt.Errorf("store customer id: %w", err)
	}
	return customerID, nil
}

func (o *Orchestrator) resolvePrice(ctx context.Context, creator *users.User, currency string) (string, error) {
	minor := plans.ToMinorUnits(creator.SubscriptionPrice, currency)
	key := plans.LookupKey(creator.ID, currency, minor)

	cached, err := o.store.FindCreatorPrice(ctx, key)
	if err == nil && cached.StripePriceID != "" {
		return cached.StripePriceID, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("load cached price: %w", err)
	}

	priceID, err := o.processor.FindOrCreatePrice(ctx, PriceRequest{
		LookupKey:   key,
		CreatorID:   creator.ID,
		AmountMinor: minor,
		Currency:    currency,
		Interval:    plans.IntervalMonth,
		ProductName: fmt.Sprintf("Subscription to %s", creatorLabel(creator)),
	})
	if err != nil {
		return "", fmt.Errorf("resolve price: %w", err)
	}

	if err := o.store.SaveCreatorPrice(ctx, &plans.CreatorPrice{
		CreatorID:     creator.ID,
		AmountMinor:   minor,
		Currency:      currency,
		LookupKey:     key,
		StripePriceID: priceID,
		Interval:      plans.IntervalMonth,
	}); err != nil {
		o.logger.Warn("caching creator price failed", zap.Error(err), zap.String("lookup_key", key))
	}
	return priceID, nil
}

func creatorLabel(u *users.User) string {
	if u.Name != "" {
		return u.Name
	}
	return "creator " + strconv.FormatUint(uint64(u.ID), 10)
}

// persist writes the local row. A lifecycle event may already have created a
// placeholder; it is enriched with identity and price but its status and
// period stay as the event left them.
func (o *Orchestrator) persist(ctx context.Context, subscriber, creator *users.User, remote *RemoteSubscription) (*subscriptions.Subscription, error) {
	seed := &subscriptions.Subscription{
		SubscriberID:       subscriber.ID,
		CreatorID:          creator.ID,
		Status:             subscriptions.StatusIncomplete,
		CurrentPeriodStart: remote.PeriodStart,
		CurrentPeriodEnd:   remote.PeriodEnd,
		Price:              creator.SubscriptionPrice,
		Currency:           plans.NormalizeCurrency(creator.SubscriptionCurrency),
	}
	return o.store.UpsertSubscriptionByStripeID(ctx, remote.ID, seed, func(s *subscriptions.Subscription) bool {
		s.SubscriberID = subscriber.ID
		s.CreatorID = creator.ID
		s.Price = seed.Price
		s.Currency = seed.Currency
		s.Placeholder = false
		if s.CurrentPeriodEnd == nil {
			s.CurrentPeriodStart = remote.PeriodStart
			s.CurrentPeriodEnd = remote.PeriodEnd
		}
		return true
	})
}

func (o *Orchestrator) recordTransaction(ctx context.Context, sub *subscriptions.Subscription, pi *RemotePaymentIntent, price decimal.Decimal, currency string) {
	if pi.ID == "" {
		return
	}
	amount := price
	if pi.AmountMinor > 0 {
		amount = plans.FromMinorUnits(pi.AmountMinor, currency)
	}
	status := billing.PaymentPending
	switch pi.Status {
	case IntentSucceeded:
		status = billing.PaymentSucceeded
	case IntentRequiresPaymentMethod, IntentCanceled:
		status = billing.PaymentFailed
	}
	var invoiceID *string
	if pi.InvoiceID != "" {
		invoiceID = &pi.InvoiceID
	}
	subID := sub.ID

	created, err := o.store.CreatePaymentTransaction(ctx, &billing.PaymentTransaction{
		StripePaymentIntentID: pi.ID,
		StripeInvoiceID:       invoiceID,
		SubscriptionID:        &subID,
		PayerID:               sub.SubscriberID,
		RecipientID:           sub.CreatorID,
		Amount:                amount,
		Currency:              currency,
		Status:                status,
		Type:                  billing.TypeSubscription,
		Description:           "subscription first payment",
	})
	if err == nil && !created {
		_, err = o.store.UpdatePaymentTransaction(ctx, pi.ID, func(t *billing.PaymentTransaction) bool {
			changed := false
			if t.SubscriptionID == nil {
				t.SubscriptionID = &subID
				changed = true
			}
			if status != billing.PaymentPending {
				next, ok := billing.NextPaymentStatus(t.Status, status)
				t.Status = next
				changed = changed || ok
			}
			return changed
		})
	}
	if err != nil {
		o.logger.Warn("recording first payment transaction failed",
			zap.Error(err),
			zap.String("payment_intent_id", pi.ID),
			zap.String("subscription_id", sub.ID.String()),
		)
	}
}

// compensate cancels an orphaned remote subscription. It runs on a context
// detached from the caller so a client disconnect cannot abort it.
func (o *Orchestrator) compensate(ctx context.Context, remoteID string, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CompensationTimeout)
	defer cancel()

	attempts := 0
	op := func() error {
		attempts++
		err := o.processor.CancelSubscription(cctx, remoteID)
		if errors.Is(err, ErrProcessorRejected) || errors.Is(err, ErrMisconfigured) {
			return backoff.Permanent(err)
		}
		return err
	}
	cancelErr := backoff.Retry(op, backoff.WithContext(o.cfg.CompensationBackOff(), cctx))

	if cancelErr != nil {
		o.metrics.compensation("failed")
		o.logger.Error("compensating cancellation failed; remote subscription is orphaned",
			zap.String("error_kind", "compensation_required"),
			zap.String("stripe_subscription_id", remoteID),
			zap.Int("attempts", attempts),
			zap.NamedError("cause", cause),
			zap.Error(cancelErr),
		)
		return fmt.Errorf("%w: %w: %w (cancel: %v)", ErrCompensationRequired, ErrCompensationFailed, cause, cancelErr)
	}

	o.metrics.compensation("canceled")
	o.logger.Error("local persistence failed; remote subscription canceled",
		zap.String("error_kind", "compensation_required"),
		zap.String("stripe_subscription_id", remoteID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %w", ErrCompensationRequired, cause)
}
