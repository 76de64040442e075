package earnings

import (
	"context"
	"net/http"
	"sort"
	"time"

	"creator-subscriptions/internal/app/http/middleware"
	"creator-subscriptions/internal/domain/earnings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Reader interface {
	ListEarnings(ctx context.Context, creatorID uint) ([]earnings.CreatorEarning, error)
}

type EntryDTO struct {
	PaymentIntentID  string          `json:"payment_intent_id"`
	SubscriptionID   string          `json:"subscription_id"`
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	PaymentDate      time.Time       `json:"payment_date"`
}

type TotalDTO struct {
	Currency string          `json:"currency"`
	Gross    decimal.Decimal `json:"gross"`
	Net      decimal.Decimal `json:"net"`
}

type Response struct {
	Entries []EntryDTO `json:"entries"`
	Totals  []TotalDTO `json:"totals"`
}

type Handler struct {
	reader Reader
	logger *zap.Logger
}

func NewHandler(reader Reader, logger *zap.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

// GetEarnings lists the caller's ledger entries with per-currency totals.
func (h *Handler) GetEarnings(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	entries, err := h.reader.ListEarnings(c.Request.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("list earnings failed", zap.Uint("creator_id", principal.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load earnings"})
		return
	}

	c.JSON(http.StatusOK, Summarize(entries))
}

func Summarize(entries []earnings.CreatorEarning) Response {
	resp := Response{
		Entries: lo.Map(entries, func(e earnings.CreatorEarning, _ int) EntryDTO {
			return EntryDTO{
				PaymentIntentID:  e.StripePaymentIntentID,
				SubscriptionID:   e.SubscriptionID.String(),
				GrossAmount:      e.GrossAmount,
				CommissionRate:   e.CommissionRate,
				CommissionAmount: e.CommissionAmount,
				NetAmount:        e.NetAmount,
				Currency:         e.Currency,
				Status:           string(e.Status),
				PaymentDate:      e.PaymentDate,
			}
		}),
		Totals: []TotalDTO{},
	}

	for currency, group := range lo.GroupBy(entries, func(e earnings.CreatorEarning) string { return e.Currency }) {
		total := TotalDTO{Currency: currency, Gross: decimal.Zero, Net: decimal.Zero}
		for _, e := range group {
			total.Gross = total.Gross.Add(e.GrossAmount)
			total.Net = total.Net.Add(e.NetAmount)
		}
		resp.Totals = append(resp.Totals, total)
	}
	sort.Slice(resp.Totals, func(i, j int) bool { return resp.Totals[i].Currency < resp.Totals[j].Currency })
	return resp
}
