package stripewebhooks

import (
	"errors"
	"io"
	"net/http"

	"creator-subscriptions/internal/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBodyBytes = 65536

type Handler struct {
	pipeline *webhook.Pipeline
	logger   *zap.Logger
}

func NewHandler(pipeline *webhook.Pipeline, logger *zap.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

// StripeWebhook acknowledges a delivery with 200 only once its effect is
// stored or known to be unnecessary; anything else makes the processor retry.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := readStripeBody(c, maxBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	res, err := h.pipeline.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": res.Duplicate})
	case errors.Is(err, webhook.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
	case errors.Is(err, webhook.ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event"})
	case errors.Is(err, webhook.ErrMisconfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook endpoint not configured"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Event not processed"})
	}
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
