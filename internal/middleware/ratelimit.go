package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"mailsync/backend/internal/monitoring"
)

// SyncTriggerLimit 同步触发端点的全局限流。同步是重操作，
// 对上游与数据库都有放大效应，这里用单个令牌桶而不是按 IP。
func SyncTriggerLimit(rps float64, metrics *monitoring.Metrics) gin.HandlerFunc {
	if rps <= 0 {
		rps = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			if metrics != nil {
				metrics.RecordRateLimitBlock(c.FullPath())
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "sync already in progress or rate limited",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
