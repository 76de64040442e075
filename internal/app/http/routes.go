package routes

import (
	"net/http"

	adminapi "creator-subscriptions/internal/api/admin"
	"creator-subscriptions/internal/api/billing"
	earningsapi "creator-subscriptions/internal/api/earnings"
	stripewebhooks "creator-subscriptions/internal/api/stripewebhook"
	"creator-subscriptions/internal/api/users"
	"creator-subscriptions/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	JWTSecret string
	Gatherer  prometheus.Gatherer

	Webhook  *stripewebhooks.Handler
	Billing  *billing.Handler
	Earnings *earningsapi.Handler
	Users    *users.Handler
	Admin    *adminapi.Handler
}

func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	// The webhook needs the raw body for signature verification; no sanitizer.
	r.POST("/webhook", deps.Webhook.StripeWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(deps.JWTSecret), middleware.SanitizeAndCleanInputMiddleware())
	auth.GET("/me", deps.Users.GetCurrentUser)
	auth.GET("/creators/:id/access", deps.Users.GetCreatorAccess)
	auth.POST("/subscriptions", deps.Billing.CreateSubscription)
	auth.GET("/subscriptions", deps.Billing.ListSubscriptions)
	auth.GET("/payments", deps.Billing.GetPaymentHistory)
	auth.GET("/earnings", deps.Earnings.GetEarnings)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(deps.JWTSecret), middleware.RequireRole("admin"))
	admin.GET("/dashboard", deps.Admin.AdminDashboard)
	admin.GET("/payments", deps.Admin.ListAllPayments)
	admin.GET("/subscriptions", deps.Admin.ListAllSubscriptions)
}
