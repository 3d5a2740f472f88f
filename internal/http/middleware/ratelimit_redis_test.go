package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"tree_ton/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// useRedis connects the limiter to REDIS_ADDR, skipping when it is not set.
func useRedis(t *testing.T) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	InitRedisRateLimiter(addr, os.Getenv("REDIS_PASSWORD"), db)
	if redisClient == nil {
		t.Skip("redis at REDIS_ADDR is unreachable")
	}
	t.Cleanup(CloseRedis)
}

func tapRouter(maxRequests int, window time.Duration) *gin.Engine {
	r := gin.New()
	r.POST("/tap", JWT(), UserRateLimit("tap", maxRequests, window), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func tap(t *testing.T, r *gin.Engine, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tap", nil)
	req.Header.Set("Authorization", bearer(t, userID, service.RoleUser))
	return serve(r, req)
}

// expectTaps checks the X-RateLimit headers of maxRequests allowed taps and
// the 429 that follows.
func expectTaps(t *testing.T, r *gin.Engine, userID string, maxRequests int, window time.Duration) {
	t.Helper()
	for i := 1; i <= maxRequests; i++ {
		w := tap(t, r, userID)
		if w.Code != http.StatusOK {
			t.Fatalf("tap %d: expected 200, got %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(maxRequests) {
			t.Fatalf("tap %d: X-RateLimit-Limit = %q", i, got)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(maxRequests-i) {
			t.Fatalf("tap %d: X-RateLimit-Remaining = %q, want %d", i, got, maxRequests-i)
		}
	}

	w := tap(t, r, userID)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("blocked tap: X-RateLimit-Remaining = %q", got)
	}
	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "tap rate limit exceeded" || body.RetryAfter != int(window.Seconds()) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestUserRateLimitHeadersInProcess(t *testing.T) {
	CloseRedis()
	window := time.Minute
	expectTaps(t, tapRouter(3, window), "local-"+uuid.NewString(), 3, window)
}

func TestInitRedisUnreachableFallsBack(t *testing.T) {
	InitRedisRateLimiter("127.0.0.1:1", "", 0)
	t.Cleanup(CloseRedis)
	if redisClient != nil {
		t.Fatalf("unreachable redis must leave the in-process limiter in charge")
	}

	window := 45 * time.Second
	expectTaps(t, tapRouter(2, window), "fallback-"+uuid.NewString(), 2, window)
}

func TestUserRateLimitRedis(t *testing.T) {
	useRedis(t)
	window := 30 * time.Second
	userID := "redis-" + uuid.NewString()

	expectTaps(t, tapRouter(2, window), userID, 2, window)

	ttl, err := redisClient.TTL(context.Background(), windowKey("rl:tap", window, userID)).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > window {
		t.Fatalf("window key ttl = %v", ttl)
	}
}

func TestRedisRateLimitPerIP(t *testing.T) {
	useRedis(t)
	window := 30 * time.Second

	r := gin.New()
	r.GET("/api/v1/me", RedisRateLimit(2, window), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// a fresh address per run keeps earlier windows out of the count
	id := uuid.New()
	ip := fmt.Sprintf("10.%d.%d.%d", id[0], id[1], id[2])
	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.RemoteAddr = ip + ":4242"
		return serve(r, req).Code
	}

	for i := 0; i < 2; i++ {
		if code := get(); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := get(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}
