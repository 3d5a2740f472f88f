package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"tree_ton/internal/logger"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter initializes a shared Redis client used by the middleware.
// If addr is empty or the ping fails, limits are kept in process instead.
func InitRedisRateLimiter(addr, password string, db int) {
	if addr == "" {
		return
	}
	redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process rate limits", "addr", addr, "error", err)
		_ = redisClient.Close()
		redisClient = nil
		return
	}
	logger.Info("redis rate limiter connected", "addr", addr)
}

// CloseRedis releases the shared client.
func CloseRedis() {
	if redisClient != nil {
		_ = redisClient.Close()
		redisClient = nil
	}
}

// allow counts one hit for key in a fixed window (INCR/EXPIRE) and returns the
// requests left. Without Redis, or when Redis errors, the in-process limiter decides.
func allow(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, int64) {
	if redisClient == nil {
		return allowLocal(key, maxRequests, window)
	}

	val, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		return allowLocal(key, maxRequests, window)
	}
	if val == 1 {
		redisClient.Expire(ctx, key, window)
	}
	return val <= int64(maxRequests), max(0, int64(maxRequests)-val)
}

func windowKey(prefix string, window time.Duration, ident string) string {
	return prefix + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + ident
}

// RedisRateLimit limits requests per client IP.
// key format: rl:<window_seconds>:<ip>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, _ := allow(c.Request.Context(), windowKey("rl", window, c.ClientIP()), maxRequests, window)
		if !ok {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// UserRateLimit limits one action per authenticated user. It must run after JWT.
// key format: rl:<name>:<window_seconds>:<user_id>
func UserRateLimit(name string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ok, remaining := allow(c.Request.Context(), windowKey("rl:"+name, window, userID), maxRequests, window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !ok {
			RLBlocked.WithLabelValues(name).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       name + " rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}
		RLRequests.WithLabelValues(name).Inc()
		c.Next()
	}
}
