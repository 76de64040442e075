package stripe

import (
	"strings"

	"creator-subscriptions/internal/domain/subscriptions"
)

// NormalizeStripeStatus maps a processor subscription status onto the local
// state machine. Unknown statuses are treated as not yet paid.
func NormalizeStripeStatus(s string) subscriptions.Status {
	switch strings.TrimSpace(s) {
	case "active", "trialing":
		return subscriptions.StatusActive
	case "past_due", "unpaid", "paused":
		return subscriptions.StatusPastDue
	case "canceled", "incomplete_expired":
		return subscriptions.StatusCanceled
	default:
		return subscriptions.StatusIncomplete
	}
}
