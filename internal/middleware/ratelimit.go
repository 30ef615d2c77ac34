package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/cvd-expert-server/internal/domain"
)

// maxTrackedClients bounds the per-client limiter table.
const maxTrackedClients = 4096

// ClientRateLimiter hands out one token bucket per client IP. Least recently
// seen clients are evicted once the table is full.
type ClientRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewClientRateLimiter allows perSecond requests per client with the given burst.
func NewClientRateLimiter(perSecond float64, burst int) *ClientRateLimiter {
	if burst < 1 {
		burst = 1
	}
	// Size is a positive constant, so New cannot fail.
	limiters, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &ClientRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: limiters,
	}
}

// Allow reports whether client may make a request now.
func (l *ClientRateLimiter) Allow(client string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(client, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects over-limit requests with 429. A zero rate disables limiting.
func (l *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit <= 0 || l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		apiErr := domain.NewAPIError(domain.ErrCodeRateLimit, "too many requests", "", c.GetString(CorrelationIDKey))
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, apiErr)
	}
}
