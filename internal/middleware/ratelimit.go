package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiterTTL 之后未访问的访客限流器会被清理。
const idleLimiterTTL = 10 * time.Minute

// VisitorLimiter 为每个访客维护一个令牌桶。
type VisitorLimiter struct {
	limit rate.Limit
	burst int

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	lastSweep  time.Time
	now        func() time.Time
}

// NewVisitorLimiter 创建访客限流器，perSecond <= 0 时不限流。
func NewVisitorLimiter(perSecond float64, burst int) *VisitorLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &VisitorLimiter{
		limit:      limit,
		burst:      burst,
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Allow 报告该访客此刻是否还有可用令牌。
func (l *VisitorLimiter) Allow(visitorID string) bool {
	l.mu.Lock()
	now := l.now()
	limiter, ok := l.limiters[visitorID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[visitorID] = limiter
	}
	l.lastAccess[visitorID] = now
	if now.Sub(l.lastSweep) > idleLimiterTTL {
		l.sweep(now)
	}
	l.mu.Unlock()
	return limiter.AllowN(now, 1)
}

// sweep 清理长时间未访问的限流器，调用方需持有锁。
func (l *VisitorLimiter) sweep(now time.Time) {
	for id, at := range l.lastAccess {
		if now.Sub(at) > idleLimiterTTL {
			delete(l.lastAccess, id)
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// RateLimit 创建按访客限流的中间件，必须在 AuthMiddleware 之后使用。
func RateLimit(limiter *VisitorLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := VisitorID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "message": "请求过于频繁，请稍后再试", "data": nil})
			return
		}
		c.Next()
	}
}
