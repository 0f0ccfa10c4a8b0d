package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polylab/backend/pkg/jwt"
	"polylab/backend/pkg/redis"
)

// newTokenCmd 为对接方签发服务 Token，便于联调
func newTokenCmd(a *app) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <service-name>",
		Short: "签发服务 Token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := jwt.NewManager(&a.cfg.Auth).GenerateServiceToken(args[0], role, ttl)
			if err != nil {
				return fmt.Errorf("签发 Token 失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "requester", "Token 角色")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "有效期")

	cmd.AddCommand(newRevokeCmd(a))
	return cmd
}

// newRevokeCmd 注销已签发的 Token，写入 Redis 黑名单直至其过期
func newRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "注销 Token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := jwt.NewManager(&a.cfg.Auth).ParseToken(args[0])
			if err != nil {
				return fmt.Errorf("解析 Token 失败: %w", err)
			}

			rdb, err := redis.NewClient(&a.cfg.Redis, a.logger)
			if err != nil {
				return fmt.Errorf("连接 Redis 失败: %w", err)
			}
			defer rdb.Close()

			remaining := time.Until(claims.ExpiresAt.Time)
			if err := rdb.BlacklistToken(cmd.Context(), claims.ID, remaining); err != nil {
				return fmt.Errorf("写入黑名单失败: %w", err)
			}
			a.logger.Info("Token 已注销",
				zap.String("jti", claims.ID),
				zap.String("user_id", claims.UserID),
				zap.Duration("remaining", remaining),
			)
			return nil
		},
	}
}
