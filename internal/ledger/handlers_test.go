package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, spendMiddleware ...gin.HandlerFunc) (*gin.Engine, *MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	h := NewHandler(New(store), slog.Default())

	r := gin.New()
	h.RegisterRoutes(r.Group("/v1"), spendMiddleware...)
	return r, store
}

func TestRegisterRoutes_BalanceAndSpend(t *testing.T) {
	r, store := testRouter(t)
	require.NoError(t, store.Credit(context.Background(), "u1", 2))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/u1/balance", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balance":2`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/users/u1/spend", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"granted":true`)
}

func TestRegisterRoutes_SpendMiddlewareApplied(t *testing.T) {
	// The limiter passed at registration must gate spend but not balance
	// reads.
	var spendHits int
	limiter := func(c *gin.Context) {
		spendHits++
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
	}
	r, store := testRouter(t, limiter)
	require.NoError(t, store.Credit(context.Background(), "u1", 2))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/users/u1/spend", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 1, spendHits)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/u1/balance", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, spendHits)

	bal, err := New(store).Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal)
}
