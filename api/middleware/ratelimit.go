package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openalpha/lrt-vault/metrics"
)

// Codespace of errors produced by the middleware itself
const Codespace = "api"

// Middleware error codes
const (
	CodeRateLimited  uint32 = 1
	CodeUnauthorized uint32 = 2
)

// RateLimiter implements a token bucket rate limiter
type RateLimiter struct {
	config *RateLimitConfig

	// Buckets by key (IP)
	buckets   map[string]*Bucket
	bucketsMu sync.RWMutex

	// State-changing requests (stricter)
	writeBuckets   map[string]*Bucket
	writeBucketsMu sync.RWMutex

	metrics *metrics.Collector

	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	// IP-based limits
	IPRequestsPerSecond int           // General requests per second per IP
	IPBurst             int           // Burst capacity for IP
	IPBlockDuration     time.Duration // How long to block after limit exceeded

	// Limits on POST requests per IP
	WritesPerSecond int
	WriteBurst      int

	// Cleanup
	CleanupInterval time.Duration // How often to clean up old buckets
	BucketTTL       time.Duration // Time before unused bucket is removed
}

// DefaultRateLimitConfig returns default configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		IPRequestsPerSecond: 100,
		IPBurst:             200,
		IPBlockDuration:     time.Minute,

		WritesPerSecond: 10,
		WriteBurst:      20,

		CleanupInterval: time.Minute * 5,
		BucketTTL:       time.Hour,
	}
}

// Bucket represents a token bucket for rate limiting
type Bucket struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64 // tokens per second
	lastUpdate   time.Time
	blocked      bool
	blockedUntil time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a new rate limiter. A nil collector disables metrics.
func NewRateLimiter(config *RateLimitConfig, collector *metrics.Collector) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	rl := &RateLimiter{
		config:        config,
		buckets:       make(map[string]*Bucket),
		writeBuckets:  make(map[string]*Bucket),
		metrics:       collector,
		cleanupTicker: time.NewTicker(config.CleanupInterval),
		stopCh:        make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop stops the rate limiter
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
		rl.cleanupTicker.Stop()
	})
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup removes expired buckets
func (rl *RateLimiter) cleanup() {
	threshold := time.Now().Add(-rl.config.BucketTTL)

	prune := func(mu *sync.RWMutex, buckets map[string]*Bucket) {
		mu.Lock()
		defer mu.Unlock()
		for key, bucket := range buckets {
			bucket.mu.Lock()
			if bucket.lastUpdate.Before(threshold) {
				delete(buckets, key)
			}
			bucket.mu.Unlock()
		}
	}
	prune(&rl.bucketsMu, rl.buckets)
	prune(&rl.writeBucketsMu, rl.writeBuckets)
}

func getBucket(mu *sync.RWMutex, buckets map[string]*Bucket, key string, maxTokens, refillRate float64) *Bucket {
	mu.RLock()
	bucket, ok := buckets[key]
	mu.RUnlock()

	if ok {
		return bucket
	}

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, ok := buckets[key]; ok {
		return bucket
	}

	bucket = &Bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastUpdate: time.Now(),
	}
	buckets[key] = bucket
	return bucket
}

// AllowIP checks if a request from an IP is allowed
func (rl *RateLimiter) AllowIP(ip string) (bool, *RateLimitInfo) {
	bucket := getBucket(&rl.bucketsMu, rl.buckets, "ip:"+ip,
		float64(rl.config.IPBurst), float64(rl.config.IPRequestsPerSecond))
	return rl.tryConsume(bucket, 1)
}

// AllowWrite checks if a state-changing request from an IP is allowed
func (rl *RateLimiter) AllowWrite(ip string) (bool, *RateLimitInfo) {
	bucket := getBucket(&rl.writeBucketsMu, rl.writeBuckets, "write:"+ip,
		float64(rl.config.WriteBurst), float64(rl.config.WritesPerSecond))
	allowed, info := rl.tryConsume(bucket, 1)
	info.LimitType = "write"
	return allowed, info
}

// tryConsume tries to consume a token from a bucket
func (rl *RateLimiter) tryConsume(bucket *Bucket, tokens float64) (bool, *RateLimitInfo) {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()

	if bucket.blocked && now.Before(bucket.blockedUntil) {
		return false, &RateLimitInfo{
			Allowed:    false,
			Remaining:  0,
			Limit:      int(bucket.maxTokens),
			RetryAfter: int(bucket.blockedUntil.Sub(now).Seconds()) + 1,
			LimitType:  "blocked",
		}
	}
	bucket.blocked = false

	// Refill tokens
	elapsed := now.Sub(bucket.lastUpdate).Seconds()
	bucket.tokens += elapsed * bucket.refillRate
	if bucket.tokens > bucket.maxTokens {
		bucket.tokens = bucket.maxTokens
	}
	bucket.lastUpdate = now

	if bucket.tokens >= tokens {
		bucket.tokens -= tokens
		return true, &RateLimitInfo{
			Allowed:   true,
			Remaining: int(bucket.tokens),
			Limit:     int(bucket.maxTokens),
			LimitType: "rate",
		}
	}

	// Not enough tokens, block the bucket
	bucket.blocked = true
	bucket.blockedUntil = now.Add(rl.config.IPBlockDuration)

	retryAfter := 1
	if bucket.refillRate > 0 {
		retryAfter = int((tokens-bucket.tokens)/bucket.refillRate) + 1
	}
	return false, &RateLimitInfo{
		Allowed:    false,
		Remaining:  0,
		Limit:      int(bucket.maxTokens),
		RetryAfter: retryAfter,
		LimitType:  "rate",
	}
}

// RateLimitInfo contains rate limit information
type RateLimitInfo struct {
	Allowed    bool   `json:"allowed"`
	Remaining  int    `json:"remaining"`
	Limit      int    `json:"limit"`
	RetryAfter int    `json:"retry_after,omitempty"`
	LimitType  string `json:"limit_type"`
}

// ============ HTTP Middleware ============

// ErrorBody is the JSON error returned by every API route
type ErrorBody struct {
	Code      uint32 `json:"code"`
	Codespace string `json:"codespace"`
	Message   string `json:"message"`
}

// WriteError writes a JSON error body with status
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RateLimitMiddleware creates an HTTP middleware for rate limiting. POST
// requests also draw from the stricter write bucket.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			allowed, info := rl.AllowIP(ip)
			if allowed && r.Method == http.MethodPost {
				allowed, info = rl.AllowWrite(ip)
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			if !allowed {
				if info.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", info.RetryAfter))
				}
				if rl.metrics != nil {
					rl.metrics.RecordRateLimitHit(r.URL.Path)
				}
				WriteError(w, http.StatusTooManyRequests, ErrorBody{
					Code:      CodeRateLimited,
					Codespace: Codespace,
					Message:   fmt.Sprintf("%s limit exceeded, retry in %ds", info.LimitType, info.RetryAfter),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware rejects requests whose X-API-Key header does not match key.
// An empty key disables the check.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(key)) != 1 {
				WriteError(w, http.StatusUnauthorized, ErrorBody{
					Code:      CodeUnauthorized,
					Codespace: Codespace,
					Message:   "missing or invalid API key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ============ Statistics ============

// Stats returns rate limiter statistics
type Stats struct {
	TotalBuckets   int `json:"total_buckets"`
	WriteBuckets   int `json:"write_buckets"`
	BlockedBuckets int `json:"blocked_buckets"`
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() *Stats {
	now := time.Now()
	blocked := func(buckets map[string]*Bucket) int {
		n := 0
		for _, b := range buckets {
			b.mu.Lock()
			if b.blocked && now.Before(b.blockedUntil) {
				n++
			}
			b.mu.Unlock()
		}
		return n
	}

	rl.bucketsMu.RLock()
	stats := &Stats{TotalBuckets: len(rl.buckets), BlockedBuckets: blocked(rl.buckets)}
	rl.bucketsMu.RUnlock()

	rl.writeBucketsMu.RLock()
	stats.WriteBuckets = len(rl.writeBuckets)
	stats.BlockedBuckets += blocked(rl.writeBuckets)
	rl.writeBucketsMu.RUnlock()

	return stats
}
