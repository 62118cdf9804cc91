package server

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"zeur-core/internal/handler/response"
	"zeur-core/pkg/errno"
)

// RateLimiter 按客户端 IP 限制写接口频率，防止重复点击触发多次签名
type RateLimiter struct {
	perMinute int
	burst     int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		visitors:  make(map[string]*rate.Limiter),
	}
}

// Middleware perMinute <= 0 时不限流
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.perMinute <= 0 {
			c.Next()
			return
		}
		if !r.limiter(c.ClientIP()).Allow() {
			response.Abort(c, errno.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) limiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.visitors[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.perMinute)/60.0), r.burst)
		r.visitors[id] = l
	}
	return l
}
