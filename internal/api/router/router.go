package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"polylab/backend/config"
	"polylab/backend/internal/api/handler"
	"polylab/backend/internal/api/middleware"
	"polylab/backend/pkg/jwt"
	"polylab/backend/pkg/metrics"
	"polylab/backend/pkg/redis"
	"polylab/backend/pkg/response"
)

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时 Token 黑名单与限流降级放行
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	db Pinger,
	m *metrics.Manager,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()

	var (
		blacklist middleware.TokenBlacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist = rdb
		limiter = rdb
	}

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if cfg.Trace.Enabled {
		r.Use(otelgin.Middleware(cfg.Trace.ServiceName))
	}
	r.Use(middleware.Logger(logger))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(m))
	}
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", healthHandler(db, rdb))

	// ── Prometheus ──
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, blacklist, logger))
	{
		// 测试申请模块
		requests := v1.Group("/requests")
		{
			requests.POST("",
				middleware.RateLimit(limiter, cfg.Submission.RateLimit, cfg.Submission.RateLimitWindow),
				h.Request.Submit,
			)
			requests.GET("", h.Request.List)
			requests.GET("/:number", h.Request.GetByNumber)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, 10006, "接口不存在")
	})

	return r
}

func healthHandler(db Pinger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{"database": "ok"}
		if err := db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = "unavailable"
		}
		if rdb == nil {
			checks["redis"] = "disabled"
		} else if err := rdb.Ping(ctx); err != nil {
			// Redis 可降级，不影响整体状态
			checks["redis"] = "unavailable"
		} else {
			checks["redis"] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	}
}
