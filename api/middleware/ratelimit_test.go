package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWritesDrawFromStricterBucket(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.WritesPerSecond = 1
	cfg.WriteBurst = 1
	rl := NewRateLimiter(cfg, nil)
	defer rl.Stop()

	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(method string) int {
		req := httptest.NewRequest(method, "/v1/deposit", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do(http.MethodPost))
	require.Equal(t, http.StatusTooManyRequests, do(http.MethodPost))
	// reads only use the IP bucket
	require.Equal(t, http.StatusOK, do(http.MethodGet))

	stats := rl.GetStats()
	require.Equal(t, 1, stats.TotalBuckets)
	require.Equal(t, 1, stats.WriteBuckets)
	require.Equal(t, 1, stats.BlockedBuckets)
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.BucketTTL = time.Millisecond
	rl := NewRateLimiter(cfg, nil)
	defer rl.Stop()

	allowed, _ := rl.AllowIP("10.0.0.2")
	require.True(t, allowed)
	time.Sleep(5 * time.Millisecond)
	rl.cleanup()
	require.Equal(t, 0, rl.GetStats().TotalBuckets)
}

func TestAPIKeyMiddleware(t *testing.T) {
	h := APIKeyMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/mint", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"code":2,"codespace":"api","message":"missing or invalid API key"}`, rec.Body.String())

	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// empty key disables the check
	rec = httptest.NewRecorder()
	APIKeyMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/mint", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	require.Equal(t, "192.168.1.5", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	require.Equal(t, "1.2.3.4", getClientIP(req))
}
