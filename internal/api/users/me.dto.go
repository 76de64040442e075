package users

import "github.com/shopspring/decimal"

type UserDTO struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// CreatorDTO is present only for users who accept paid subscriptions.
type CreatorDTO struct {
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Subscribers    int             `json:"subscribers"`
}

type MeResponse struct {
	User                UserDTO     `json:"user"`
	Creator             *CreatorDTO `json:"creator,omitempty"`
	ActiveSubscriptions int         `json:"active_subscriptions"`
	HasPaymentMethod    bool        `json:"has_payment_method"`
}
