package reconcile

import (
	"context"
	"fmt"
	"time"

	"creator-subscriptions/internal/domain/subscriptions"

	"go.uber.org/zap"
)

// RemoteSubscriptionState is the processor's view of a subscription as carried
// by a lifecycle event. SubscriberID and CreatorID come from metadata and may be
// zero for subscriptions this service did not create.
type RemoteSubscriptionState struct {
	StripeSubscriptionID string
	Status               subscriptions.Status
	PeriodStart          *time.Time
	PeriodEnd            *time.Time
	CanceledAt           *time.Time
	SubscriberID         uint
	CreatorID            uint
	Currency             string
}

// Reconciler applies subscription lifecycle events to local rows.
type Reconciler struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger, now: time.Now}
}

// ApplyRemoteState upserts the subscription by remote id. Status only moves
// along subscriptions.Transition and the billing period never moves backwards,
// so replays and reordered events converge on the same row.
func (r *Reconciler) ApplyRemoteState(ctx context.Context, state RemoteSubscriptionState) (bool, error) {
	if state.StripeSubscriptionID == "" {
		return false, fmt.Errorf("%w: subscription id is required", ErrInvalidRequest)
	}
	if !state.Status.Valid() {
		return false, fmt.Errorf("%w: unknown subscription status %q", ErrInvalidRequest, state.Status)
	}

	changed := false
	seed := r.placeholder(state)
	sub, err := r.store.UpsertSubscriptionByStripeID(ctx, state.StripeSubscriptionID, seed, func(s *subscriptions.Subscription) bool {
		changed = r.apply(s, state)
		return changed
	})
	if err != nil {
		return false, fmt.Errorf("upsert subscription %s: %w", state.StripeSubscriptionID, err)
	}
	if sub == seed {
		changed = true
		r.logger.Info("placeholder subscription created from lifecycle event",
			zap.String("stripe_subscription_id", state.StripeSubscriptionID),
			zap.String("status", string(sub.Status)),
		)
	}
	return changed, nil
}

// Cancel moves the subscription to canceled. A cancel for an unknown id leaves
// a canceled placeholder so a late insert cannot bring it back.
func (r *Reconciler) Cancel(ctx context.Context, state RemoteSubscriptionState) (bool, error) {
	state.Status = subscriptions.StatusCanceled
	if state.CanceledAt == nil {
		now := r.now()
		state.CanceledAt = &now
	}
	return r.ApplyRemoteState(ctx, state)
}

func (r *Reconciler) placeholder(state RemoteSubscriptionState) *subscriptions.Subscription {
	status, _ := subscriptions.Transition("", state.Status)
	sub := &subscriptions.Subscription{
		SubscriberID:       state.SubscriberID,
		CreatorID:          state.CreatorID,
		Status:             status,
		CurrentPeriodStart: state.PeriodStart,
		CurrentPeriodEnd:   state.PeriodEnd,
		Placeholder:        true,
	}
	if state.Currency != "" {
		sub.Currency = state.Currency
	}
	if status == subscriptions.StatusCanceled {
		sub.CanceledAt = state.CanceledAt
	}
	return sub
}

func (r *Reconciler) apply(s *subscriptions.Subscription, state RemoteSubscriptionState) bool {
	if s.Status == subscriptions.StatusCanceled {
		return false
	}
	changed := false

	if s.SubscriberID == 0 && state.SubscriberID != 0 {
		s.SubscriberID = state.SubscriberID
		changed = true
	}
	if s.CreatorID == 0 && state.CreatorID != 0 {
		s.CreatorID = state.CreatorID
		changed = true
	}

	if next, ok := subscriptions.Transition(s.Status, state.Status); ok {
		s.Status = next
		changed = true
		if next == subscriptions.StatusCanceled {
			s.CanceledAt = state.CanceledAt
		}
	}

	if state.PeriodEnd != nil && (s.CurrentPeriodEnd == nil || state.PeriodEnd.After(*s.CurrentPeriodEnd)) {
		s.CurrentPeriodStart = state.PeriodStart
		s.CurrentPeriodEnd = state.PeriodEnd
		changed = true
	}
	return changed
}
