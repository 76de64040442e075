package users

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"creator-subscriptions/internal/app/http/middleware"
	"creator-subscriptions/internal/domain/access"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Reader interface {
	GetUser(ctx context.Context, id uint) (*users.User, error)
	ListSubscriptionsForUser(ctx context.Context, userID uint) ([]subscriptions.Subscription, error)
}

type Handler struct {
	reader Reader
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(reader Reader, logger *zap.Logger) *Handler {
	return &Handler{reader: reader, logger: logger, now: time.Now}
}

func (h *Handler) GetCurrentUser(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.reader.GetUser(ctx, principal.UserID)
	if errors.Is(err, reconcile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.logger.Error("load user failed", zap.Uint("user_id", principal.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	subs, err := h.reader.ListSubscriptionsForUser(ctx, user.ID)
	if err != nil {
		h.logger.Error("load subscriptions failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	c.JSON(http.StatusOK, buildMe(user, subs, h.now()))
}

func buildMe(user *users.User, subs []subscriptions.Subscription, now time.Time) MeResponse {
	resp := MeResponse{
		User: UserDTO{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  user.Role,
		},
		HasPaymentMethod: user.DefaultPaymentMethodID != nil && *user.DefaultPaymentMethodID != "",
	}

	var subscribers int
	for i := range subs {
		if !subs[i].IsLive(now) {
			continue
		}
		if subs[i].SubscriberID == user.ID {
			resp.ActiveSubscriptions++
		}
		if subs[i].CreatorID == user.ID {
			subscribers++
		}
	}

	if user.AcceptsSubscriptions() {
		resp.Creator = &CreatorDTO{
			Price:          user.SubscriptionPrice,
			Currency:       user.SubscriptionCurrency,
			CommissionRate: user.CommissionRate,
			Subscribers:    subscribers,
		}
	}
	return resp
}

// GetCreatorAccess reports the caller's access to a creator's content.
func (h *Handler) GetCreatorAccess(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	creatorID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || creatorID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid creator id"})
		return
	}

	subs, err := h.reader.ListSubscriptionsForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("load subscriptions failed", zap.Uint("user_id", principal.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load access"})
		return
	}

	state := access.ForCreator(h.now(), subs, principal.UserID, uint(creatorID))
	c.JSON(http.StatusOK, gin.H{"creator_id": creatorID, "access": state})
}
