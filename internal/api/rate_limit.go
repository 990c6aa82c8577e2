package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ClientRateLimiter 按客户端 IP 限流
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientRateLimiter 创建按 IP 限流器，rps <= 0 时不限流
func NewClientRateLimiter(rps float64, burst int) *ClientRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ClientRateLimiter{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow 判断该客户端本次请求是否放行
func (l *ClientRateLimiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// 顺带清理长时间未出现的客户端
	for k, cl := range l.limiters {
		if now.Sub(cl.lastSeen) > l.idle {
			delete(l.limiters, k)
		}
	}

	cl, ok := l.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Middleware 限流中间件
func (l *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:      http.StatusTooManyRequests,
				Message:   "too many requests",
				RequestID: c.GetString(requestIDKey),
			})
			return
		}
		c.Next()
	}
}
