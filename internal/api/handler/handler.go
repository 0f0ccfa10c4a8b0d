package handler

import (
	"go.uber.org/zap"

	"polylab/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Request *RequestHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Request: NewRequestHandler(svc.Request, logger),
	}
}
