package billing

import (
	"context"
	"time"

	billingdomain "creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile"

	"go.uber.org/zap"
)

type Subscriber interface {
	CreateSubscription(ctx context.Context, principal users.Principal, req reconcile.CreateSubscriptionRequest) (*reconcile.CreateSubscriptionResult, error)
}

type Reader interface {
	ListSubscriptionsForUser(ctx context.Context, userID uint) ([]subscriptions.Subscription, error)
	ListPaymentTransactionsForUser(ctx context.Context, userID uint) ([]billingdomain.PaymentTransaction, error)
}

type Handler struct {
	subscriber Subscriber
	reader     Reader
	logger     *zap.Logger
	// timeout bounds the whole create call, processor round trips included.
	timeout time.Duration
}

func NewHandler(subscriber Subscriber, reader Reader, logger *zap.Logger) *Handler {
	return &Handler{subscriber: subscriber, reader: reader, logger: logger, timeout: 30 * time.Second}
}
