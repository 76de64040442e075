package billing

import (
	"net/http"

	"creator-subscriptions/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) GetPaymentHistory(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txns, err := h.reader.ListPaymentTransactionsForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("list payments failed", zap.Uint("user_id", principal.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}

	c.JSON(http.StatusOK, PaymentDTOs(txns))
}
