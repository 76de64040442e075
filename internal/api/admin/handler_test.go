package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"creator-subscriptions/internal/api/admin"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/reconcile/reconciletest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdminListings(t *testing.T) {
	ctx := context.Background()
	store := reconciletest.NewMemoryStore()
	for i, status := range []subscriptions.Status{subscriptions.StatusActive, subscriptions.StatusActive, subscriptions.StatusPastDue} {
		id := []string{"sub_a", "sub_b", "sub_c"}[i]
		_, err := store.UpsertSubscriptionByStripeID(ctx, id, &subscriptions.Subscription{Status: status}, nil)
		require.NoError(t, err)
	}

	h := admin.NewHandler(store, zaptest.NewLogger(t))
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/dashboard", h.AdminDashboard)
	r.GET("/admin/subscriptions", h.ListAllSubscriptions)
	r.GET("/admin/payments", h.ListAllPayments)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
		return w
	}

	var stats admin.AdminStats
	require.NoError(t, json.Unmarshal(get("/admin/dashboard").Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Sampled)
	assert.Equal(t, map[string]int{"active": 2, "past_due": 1}, stats.SubscriptionsByStatus)

	var subs []map[string]any
	require.NoError(t, json.Unmarshal(get("/admin/subscriptions?limit=2").Body.Bytes(), &subs))
	assert.Len(t, subs, 2)

	assert.JSONEq(t, `[]`, get("/admin/payments?limit=abc").Body.String())
}
