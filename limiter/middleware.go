package limiter

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Stats 限流统计信息
type Stats struct {
	TotalRequests    int64 `json:"totalRequests"`
	AllowedRequests  int64 `json:"allowedRequests"`
	RejectedRequests int64 `json:"rejectedRequests"`
}

// GlobalLimiter 全局令牌桶限流器，作为所有API流量的兜底，
// 与业务层按IP的滑动窗口限流互补
type GlobalLimiter struct {
	limiter *rate.Limiter

	statsMu sync.Mutex
	stats   Stats
}

// NewGlobalLimiter 创建全局限流器，rps为每秒速率，burst为突发容量
func NewGlobalLimiter(rps, burst int) *GlobalLimiter {
	return &GlobalLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Middleware 返回全局限流中间件，超限请求直接返回429
func (g *GlobalLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed := g.limiter.Allow()

		g.statsMu.Lock()
		g.stats.TotalRequests++
		if allowed {
			g.stats.AllowedRequests++
		} else {
			g.stats.RejectedRequests++
		}
		g.statsMu.Unlock()

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":      false,
				"error":        "Too many requests. Please try again later.",
				"rate_limited": true,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Statistics 返回统计信息的副本
func (g *GlobalLimiter) Statistics() Stats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	return g.stats
}
