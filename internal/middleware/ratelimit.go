package middleware

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/telemetry"
	"github.com/makeasinger/clipwatch/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a fixed-window rate limiting middleware keyed by user
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID)
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// fail open
			log.Printf("[RateLimit] Redis unavailable for %s: %v", key, err)
			return c.Next()
		}
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		if count > int64(maxRequests) {
			telemetry.RateLimitRejects.WithLabelValues(keyPrefix).Inc()
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			c.Set("X-RateLimit-Remaining", "0")
			return response.RateLimited(c)
		}
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(maxRequests)-count, 10))

		return c.Next()
	}
}

// GenerateLimit limits song submissions per hour
func (rl *RateLimiter) GenerateLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("generate", maxPerHour, time.Hour)
}

// CatalogLimit limits remote catalog reads per minute
func (rl *RateLimiter) CatalogLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("catalog", maxPerMin, time.Minute)
}
