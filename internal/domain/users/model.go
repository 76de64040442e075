package users

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is both sides of a subscription: a subscriber pays, a creator is paid.
// A creator accepts paid subscriptions only while SubscriptionPrice > 0.
type User struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string
	Email string `gorm:"not null;uniqueIndex:idx_users_email"`
	Role  string

	StripeCustomerID       *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_users_stripe_customer_id"`
	DefaultPaymentMethodID *string `gorm:"column:default_payment_method_id"`

	SubscriptionPrice    decimal.Decimal `gorm:"column:subscription_price;type:numeric(12,4);not null;default:0"`
	SubscriptionCurrency string          `gorm:"column:subscription_currency;type:varchar(3);not null;default:'usd'"`
	CommissionRate       decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,2);not null;default:30"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AcceptsSubscriptions reports whether the user has a paid subscription price configured.
func (u *User) AcceptsSubscriptions() bool {
	return u != nil && u.SubscriptionPrice.IsPositive()
}
