package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"polylab/backend/pkg/metrics"
)

// Metrics HTTP 指标中间件
// 按路由模板统计，未匹配路由统一记为 unmatched 以控制标签基数
func Metrics(m *metrics.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
