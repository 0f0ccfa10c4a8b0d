package service

import (
	"go.uber.org/zap"

	"polylab/backend/config"
	"polylab/backend/internal/repository"
	"polylab/backend/pkg/metrics"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Request RequestService
}

// NewService 创建 Service 聚合
// cache 为 nil 时申请提交不做幂等处理
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	cache SubmissionCache,
	m *metrics.Manager,
	logger *zap.Logger,
) *Service {
	return &Service{
		Request: NewRequestService(repo, cache, cfg.Submission, m, logger),
	}
}
