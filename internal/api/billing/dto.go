package billing

import (
	"time"

	billingdomain "creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/subscriptions"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type SubscriptionDTO struct {
	ID                   string          `json:"id"`
	SubscriberID         uint            `json:"subscriber_id"`
	CreatorID            uint            `json:"creator_id"`
	StripeSubscriptionID string          `json:"stripe_subscription_id,omitempty"`
	Status               string          `json:"status"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency"`
	CurrentPeriodStart   *time.Time      `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time      `json:"current_period_end,omitempty"`
	CanceledAt           *time.Time      `json:"canceled_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

type PaymentDTO struct {
	ID              uint            `json:"id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	InvoiceID       *string         `json:"invoice_id,omitempty"`
	SubscriptionID  *string         `json:"subscription_id,omitempty"`
	PayerID         uint            `json:"payer_id"`
	RecipientID     uint            `json:"recipient_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

func NewSubscriptionDTO(s subscriptions.Subscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:                   s.ID.String(),
		SubscriberID:         s.SubscriberID,
		CreatorID:            s.CreatorID,
		StripeSubscriptionID: s.RemoteID(),
		Status:               string(s.Status),
		Price:                s.Price,
		Currency:             s.Currency,
		CurrentPeriodStart:   s.CurrentPeriodStart,
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
		CanceledAt:           s.CanceledAt,
		CreatedAt:            s.CreatedAt,
	}
}

func NewPaymentDTO(t billingdomain.PaymentTransaction) PaymentDTO {
	dto := PaymentDTO{
		ID:              t.ID,
		PaymentIntentID: t.StripePaymentIntentID,
		InvoiceID:       t.StripeInvoiceID,
		PayerID:         t.PayerID,
		RecipientID:     t.RecipientID,
		Amount:          t.Amount,
		Currency:        t.Currency,
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt,
	}
	if t.SubscriptionID != nil {
		dto.SubscriptionID = lo.ToPtr(t.SubscriptionID.String())
	}
	return dto
}

func SubscriptionDTOs(subs []subscriptions.Subscription) []SubscriptionDTO {
	return lo.Map(subs, func(s subscriptions.Subscription, _ int) SubscriptionDTO { return NewSubscriptionDTO(s) })
}

func PaymentDTOs(txns []billingdomain.PaymentTransaction) []PaymentDTO {
	return lo.Map(txns, func(t billingdomain.PaymentTransaction, _ int) PaymentDTO { return NewPaymentDTO(t) })
}
