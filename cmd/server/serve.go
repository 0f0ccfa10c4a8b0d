package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polylab/backend/internal/api/handler"
	"polylab/backend/internal/api/router"
	"polylab/backend/internal/repository"
	"polylab/backend/internal/service"
	"polylab/backend/pkg/database"
	"polylab/backend/pkg/jwt"
	"polylab/backend/pkg/metrics"
	"polylab/backend/pkg/redis"
	"polylab/backend/pkg/tracing"
)

func newServeCmd(a *app) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "启动时不执行数据库迁移")
	return cmd
}

func (a *app) serve(ctx context.Context, migrate bool) error {
	cfg, logger := a.cfg, a.logger

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
	)

	// 1. 链路追踪
	shutdownTracing, err := tracing.Init(&cfg.Trace, logger)
	if err != nil {
		return fmt.Errorf("初始化链路追踪失败: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("关闭链路追踪失败", zap.Error(err))
		}
	}()

	// 2. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, cfg.Trace.Enabled, logger)
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()

	if migrate {
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	// 3. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var cache service.SubmissionCache
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，幂等提交、Token 黑名单与限流将不可用", zap.Error(err))
		rdb = nil
	} else {
		cache = rdb
		defer rdb.Close()
	}

	// 4. 指标
	var m *metrics.Manager
	if cfg.Metrics.Enabled {
		m = metrics.NewManager(metrics.WithProcessMetrics())
	}

	// 5. 依赖注入: Repository → Service → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, cache, m, logger)
	h := handler.NewHandler(svc, logger)

	// 6. 初始化路由
	gin.SetMode(gin.ReleaseMode)
	engine := router.Setup(cfg, h, jwtMgr, rdb, repo, m, logger)

	// 7. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP 服务器异常: %w", err)
	case <-ctx.Done():
	}

	logger.Info("收到关闭信号，开始优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务器已关闭")
	return nil
}
