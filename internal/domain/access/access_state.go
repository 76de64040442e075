package access

import (
	"time"

	"creator-subscriptions/internal/domain/subscriptions"
)

// ComputeAccessState is a subscriber's access to one creator through one subscription.
func ComputeAccessState(now time.Time, sub subscriptions.Subscription) AccessState {
	paidThrough := sub.CurrentPeriodEnd != nil && now.Before(*sub.CurrentPeriodEnd)

	switch sub.Status {
	case subscriptions.StatusActive:
		if sub.CurrentPeriodEnd == nil || paidThrough {
			return AccessFull
		}
		return AccessLocked

	case subscriptions.StatusPastDue:
		// Retries are still running; keep access until the paid period ends.
		if paidThrough {
			return AccessGrace
		}
		return AccessLocked

	case subscriptions.StatusCanceled:
		// Access until the paid-through end date.
		if paidThrough {
			return AccessFull
		}
		return AccessLocked

	default:
		return AccessLocked
	}
}

var rank = map[AccessState]int{AccessLocked: 0, AccessGrace: 1, AccessFull: 2}

// ForCreator returns the best access subscriberID holds to creatorID across subs.
func ForCreator(now time.Time, subs []subscriptions.Subscription, subscriberID, creatorID uint) AccessState {
	best := AccessLocked
	for _, sub := range subs {
		if sub.SubscriberID != subscriberID || sub.CreatorID != creatorID {
			continue
		}
		if state := ComputeAccessState(now, sub); rank[state] > rank[best] {
			best = state
		}
	}
	return best
}
