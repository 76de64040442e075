package billing

import (
	"context"
	"errors"
	"net/http"

	"creator-subscriptions/internal/app/http/middleware"
	"creator-subscriptions/internal/reconcile"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) CreateSubscription(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	var body reconcile.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.subscriber.CreateSubscription(ctx, principal, body)
	if err != nil {
		status, msg := createError(err)
		logger := h.logger.With(zap.Uint("subscriber_id", principal.UserID), zap.Uint("creator_id", body.CreatorID))
		if status >= http.StatusInternalServerError || errors.Is(err, reconcile.ErrCompensationRequired) {
			logger.Error("create subscription failed", zap.Error(err))
		} else {
			logger.Info("create subscription rejected", zap.Int("status", status), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, res)
}

// createError maps orchestrator failures to a status and a message that never
// exposes processor or database details.
func createError(err error) (int, string) {
	switch {
	case errors.Is(err, reconcile.ErrDuplicateSubscription):
		return http.StatusConflict, "You already have an active subscription to this creator"
	case errors.Is(err, reconcile.ErrCreatorNotAccepting):
		return http.StatusUnprocessableEntity, "This creator does not accept subscriptions"
	case errors.Is(err, reconcile.ErrPriceMismatch):
		return http.StatusUnprocessableEntity, "The subscription price has changed"
	case errors.Is(err, reconcile.ErrInvalidRequest):
		return http.StatusUnprocessableEntity, "Invalid subscription request"
	case errors.Is(err, reconcile.ErrMisconfigured):
		return http.StatusInternalServerError, "Payments are temporarily unavailable"
	}
	return http.StatusPaymentRequired, "payment could not be completed"
}

func (h *Handler) ListSubscriptions(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	subs, err := h.reader.ListSubscriptionsForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("list subscriptions failed", zap.Uint("user_id", principal.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscriptions"})
		return
	}

	c.JSON(http.StatusOK, SubscriptionDTOs(subs))
}
