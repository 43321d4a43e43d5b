package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter creates a Gin middleware allowing requests per period and
// client IP.
func NewRateLimiter(requests int64, period time.Duration) (gin.HandlerFunc, error) {
	if requests <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d: must be positive", requests)
	}
	if period <= 0 {
		return nil, fmt.Errorf("invalid rate limit period %s: must be positive", period)
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  requests,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance), nil
}
