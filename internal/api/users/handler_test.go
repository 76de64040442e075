package users

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creator-subscriptions/internal/app/http/middleware"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile/reconciletest"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBuildMe(t *testing.T) {
	now := time.Now()
	creator := &users.User{
		ID:                     1,
		Email:                  "ada@example.com",
		SubscriptionPrice:      decimal.RequireFromString("5.00"),
		SubscriptionCurrency:   "usd",
		CommissionRate:         decimal.NewFromInt(30),
		DefaultPaymentMethodID: lo.ToPtr("pm_1"),
	}
	subs := []subscriptions.Subscription{
		{SubscriberID: 2, CreatorID: 1, Status: subscriptions.StatusActive, CurrentPeriodEnd: lo.ToPtr(now.Add(time.Hour))},
		{SubscriberID: 3, CreatorID: 1, Status: subscriptions.StatusActive, CurrentPeriodEnd: lo.ToPtr(now.Add(-time.Hour))},
		{SubscriberID: 4, CreatorID: 1, Status: subscriptions.StatusPastDue},
		{SubscriberID: 1, CreatorID: 9, Status: subscriptions.StatusActive},
	}

	me := buildMe(creator, subs, now)
	assert.Equal(t, 1, me.ActiveSubscriptions)
	assert.True(t, me.HasPaymentMethod)
	require.NotNil(t, me.Creator)
	assert.Equal(t, 1, me.Creator.Subscribers)
	assert.Equal(t, "usd", me.Creator.Currency)

	fan := buildMe(&users.User{ID: 2, Email: "fan@example.com"}, subs[:1], now)
	assert.Nil(t, fan.Creator)
	assert.False(t, fan.HasPaymentMethod)
	assert.Equal(t, 1, fan.ActiveSubscriptions)
}

func TestGetCreatorAccess(t *testing.T) {
	store := reconciletest.NewMemoryStore()
	fan := store.AddUser(users.User{Email: "fan@example.com"})
	creator := store.AddUser(users.User{Email: "ada@example.com"})
	end := time.Now().Add(time.Hour)
	_, err := store.UpsertSubscriptionByStripeID(context.Background(), "sub_1", &subscriptions.Subscription{
		SubscriberID:     fan,
		CreatorID:        creator,
		Status:           subscriptions.StatusPastDue,
		CurrentPeriodEnd: &end,
	}, nil)
	require.NoError(t, err)

	h := NewHandler(store, zaptest.NewLogger(t))
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/creators/:id/access", middleware.AuthMiddleware("k"), h.GetCreatorAccess)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": fan}).SignedString([]byte("k"))
	require.NoError(t, err)

	for path, want := range map[string]int{
		fmt.Sprintf("/creators/%d/access", creator): http.StatusOK,
		"/creators/abc/access":                      http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, want, w.Code, path)
		if want == http.StatusOK {
			assert.JSONEq(t, fmt.Sprintf(`{"creator_id":%d,"access":"grace"}`, creator), w.Body.String())
		}
	}
}
