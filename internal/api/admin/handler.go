package admin

import (
	"context"
	"net/http"
	"strconv"

	apibilling "creator-subscriptions/internal/api/billing"
	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/subscriptions"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

type Reader interface {
	ListRecentSubscriptions(ctx context.Context, limit int) ([]subscriptions.Subscription, error)
	ListRecentPaymentTransactions(ctx context.Context, limit int) ([]billing.PaymentTransaction, error)
}

type AdminStats struct {
	SubscriptionsByStatus map[string]int `json:"subscriptions_by_status"`
	Sampled               int            `json:"sampled"`
}

type Handler struct {
	reader Reader
	logger *zap.Logger
}

func NewHandler(reader Reader, logger *zap.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}

func (h *Handler) AdminDashboard(c *gin.Context) {
	subs, err := h.reader.ListRecentSubscriptions(c.Request.Context(), maxLimit)
	if err != nil {
		h.logger.Error("admin dashboard failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscriptions"})
		return
	}

	byStatus := lo.CountValuesBy(subs, func(s subscriptions.Subscription) string { return string(s.Status) })
	c.JSON(http.StatusOK, AdminStats{SubscriptionsByStatus: byStatus, Sampled: len(subs)})
}

func (h *Handler) ListAllPayments(c *gin.Context) {
	txns, err := h.reader.ListRecentPaymentTransactions(c.Request.Context(), limitParam(c))
	if err != nil {
		h.logger.Error("admin payments failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}
	c.JSON(http.StatusOK, apibilling.PaymentDTOs(txns))
}

func (h *Handler) ListAllSubscriptions(c *gin.Context) {
	subs, err := h.reader.ListRecentSubscriptions(c.Request.Context(), limitParam(c))
	if err != nil {
		h.logger.Error("admin subscriptions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscriptions"})
		return
	}
	c.JSON(http.StatusOK, apibilling.SubscriptionDTOs(subs))
}
