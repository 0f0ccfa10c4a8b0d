package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"polylab/backend/pkg/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		Long:  "默认迁移到最新版本；--down N 回滚 N 个版本",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := database.NewDB(&a.cfg.Database, a.cfg.Log.Level, false, a.logger)
			if err != nil {
				return fmt.Errorf("数据库连接失败: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if down > 0 {
				return database.RollbackMigrations(sqlDB, down, a.logger)
			}
			return database.RunMigrations(sqlDB, a.logger)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "回滚的版本数")
	return cmd
}
