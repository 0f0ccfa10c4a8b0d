package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polylab/backend/config"
	applogger "polylab/backend/pkg/logger"
)

// app 子命令共享的全局资源，由 PersistentPreRunE 初始化
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := &cobra.Command{
		Use:               "polylab",
		Short:             "polylab",
		Long:              "PolyLab 测试申请服务：申请提交、按能力组拆分与取号",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
		PersistentPostRunE: a.close,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "配置文件路径（默认查找 ./config/config.yaml）")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newTokenCmd(a))

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func (a *app) init(_ *cobra.Command, _ []string) error {
	// .env 仅用于本地开发，缺失时直接使用环境变量
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) close(_ *cobra.Command, _ []string) error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}
