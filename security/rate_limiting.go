package security

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client

	// PerMinute caps requests per client per minute on guarded routes.
	PerMinute int64
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:     redisClient,
		PerMinute: 30,
	}
}

// CheckoutRateLimit guards order creation: the chat bot retries on
// timeouts, and a stuck client must not burn through held inventory.
// Fixed one-minute window counted in Redis, keyed by client IP. The
// body is left untouched so the handler can still bind it.
func (r *RateLimiter) CheckoutRateLimit() *hook.Handler[*core.RequestEvent] {
	return &hook.Handler[*core.RequestEvent]{
		Func: func(e *core.RequestEvent) error {
			key := fmt.Sprintf("ratelimit:checkout:ip:%s", e.RealIP())

			count, err := r.redis.Incr(e.Request.Context(), key).Result()
			if err != nil {
				// Redis down: let the request through rather than block sales.
				return e.Next()
			}
			if count == 1 {
				r.redis.Expire(e.Request.Context(), key, time.Minute)
			}
			if count > r.PerMinute {
				return e.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Rate limit exceeded. Please try again later.",
				})
			}

			return e.Next()
		},
	}
}
