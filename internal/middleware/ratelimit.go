package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"agencysite/backend/internal/monitoring"
)

// ipLimiter 单个来源 IP 的限流器
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按来源 IP 的令牌桶限流。
//
// 蜜罐拦截伪装良好的机器人，限流拦截狂轰滥炸的机器人，
// 两者各管一段。正常访客一小时提交不了几次，阈值可以很低。
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
	metrics  *monitoring.Metrics
}

// NewRateLimiter 创建限流器
//
// 参数:
//   - rps: 每秒补充的令牌数
//   - burst: 桶容量
func NewRateLimiter(rps float64, burst int, metrics *monitoring.Metrics) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		metrics:  metrics,
	}
	go rl.cleanupLoop()
	return rl
}

// Handler 返回 gin 中间件
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			if rl.metrics != nil {
				rl.metrics.RateLimitBlocks.Inc()
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "请求过于频繁，请稍后再试",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// allow 判断来源 IP 是否放行
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// cleanupLoop 定期清理长时间未出现的 IP
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		rl.mu.Lock()
		for ip, entry := range rl.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}
