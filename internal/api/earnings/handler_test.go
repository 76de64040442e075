package earnings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creator-subscriptions/internal/api/earnings"
	"creator-subscriptions/internal/app/http/middleware"
	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile"
	"creator-subscriptions/internal/reconcile/reconciletest"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestGetEarnings(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	store := reconciletest.NewMemoryStore()
	processor := reconciletest.NewStubProcessor()
	ledger := reconcile.NewLedger(store, logger)
	orch := reconcile.NewOrchestrator(store, processor, ledger, nil, logger, reconcile.DefaultOrchestratorConfig())

	creatorID := store.AddUser(users.User{
		Email:                "creator@example.com",
		SubscriptionPrice:    decimal.RequireFromString("19.99"),
		SubscriptionCurrency: "usd",
		CommissionRate:       decimal.NewFromInt(30),
	})
	for _, email := range []string{"a@example.com", "b@example.com"} {
		fan := store.AddUser(users.User{Email: email})
		_, err := orch.CreateSubscription(ctx, users.Principal{UserID: fan}, reconcile.CreateSubscriptionRequest{
			CreatorID:       creatorID,
			PaymentMethodID: "pm_card_visa",
			Price:           decimal.RequireFromString("19.99"),
			Currency:        "usd",
		})
		require.NoError(t, err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/earnings", middleware.AuthMiddleware("secret"), earnings.NewHandler(store, logger).GetEarnings)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": creatorID, "exp": time.Now().Add(time.Minute).Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/earnings", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp earnings.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	require.Len(t, resp.Totals, 1)
	assert.Equal(t, "usd", resp.Totals[0].Currency)
	assert.True(t, decimal.RequireFromString("39.98").Equal(resp.Totals[0].Gross))
	assert.True(t, decimal.RequireFromString("27.986").Equal(resp.Totals[0].Net))
}

func TestSummarizeEmpty(t *testing.T) {
	resp := earnings.Summarize(nil)
	assert.Empty(t, resp.Entries)
	assert.NotNil(t, resp.Totals)
}
