package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"polylab/backend/internal/dto"
	"polylab/backend/internal/service"
	pkgerrors "polylab/backend/pkg/errors"
	"polylab/backend/pkg/response"
)

// IdempotencyKeyHeader 客户端重试时携带的幂等键
const IdempotencyKeyHeader = "Idempotency-Key"

// RequestHandler 测试申请 HTTP 处理器
type RequestHandler struct {
	requestSvc service.RequestService
	logger     *zap.Logger
}

// NewRequestHandler 创建 RequestHandler
func NewRequestHandler(requestSvc service.RequestService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{requestSvc: requestSvc, logger: logger}
}

// Submit 提交测试申请
// POST /api/v1/requests
func (h *RequestHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if len(key) > 128 {
		response.Fail(c, http.StatusBadRequest, 14003, string(pkgerrors.KindValidationFailure), "幂等键过长", "")
		return
	}

	result, err := h.requestSvc.Submit(c.Request.Context(), &req, callerID, key)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.Created(c, result)
}

// GetByNumber 按申请单号查询申请单及其测试任务
// GET /api/v1/requests/:number
func (h *RequestHandler) GetByNumber(c *gin.Context) {
	number := c.Param("number")
	if number == "" {
		response.BadRequest(c, 10001, "申请单号不能为空")
		return
	}

	result, err := h.requestSvc.GetByNumber(c.Request.Context(), number)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// List 分页查询申请单
// GET /api/v1/requests
func (h *RequestHandler) List(c *gin.Context) {
	var req dto.RequestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	list, total, err := h.requestSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// handleBindError 请求体或查询参数绑定失败
func (h *RequestHandler) handleBindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.PayloadTooLarge(c)
		return
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		response.Fail(c, http.StatusBadRequest, 10001, string(pkgerrors.KindValidationFailure), "请求格式错误", "")
		return
	}

	fields := make([]pkgerrors.FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, pkgerrors.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: "校验规则 " + fe.Tag() + " 未通过",
		})
	}
	appErr := pkgerrors.Validation(fields...)
	response.Fail(c, http.StatusBadRequest, 14003, string(appErr.Kind), appErr.Message, appErr.FieldSummary())
}

// fieldPath 去掉结构体名前缀：SubmitRequest.Requester.Email → Requester.Email
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// handleRequestError 统一处理申请模块业务错误
func (h *RequestHandler) handleRequestError(c *gin.Context, err error) {
	var appErr *pkgerrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("未分类的申请处理错误", zap.Error(err))
		response.InternalError(c)
		return
	}

	kind := string(appErr.Kind)
	switch appErr.Kind {
	case pkgerrors.KindNoCapabilityResolved:
		response.Fail(c, http.StatusUnprocessableEntity, 14001, kind, appErr.Message, "")
	case pkgerrors.KindCapabilityNotFound:
		response.Fail(c, http.StatusConflict, 14002, kind, appErr.Message, "")
	case pkgerrors.KindValidationFailure:
		response.Fail(c, http.StatusBadRequest, 14003, kind, appErr.Message, appErr.FieldSummary())
	case pkgerrors.KindDuplicateRequestNumber:
		response.Fail(c, http.StatusConflict, 14004, kind, appErr.Message, "")
	case pkgerrors.KindTransientStoreFailure:
		h.logger.Error("申请处理存储失败", zap.String("path", c.FullPath()), zap.Error(err))
		response.Fail(c, http.StatusServiceUnavailable, 14005, kind, appErr.Message, "")
	case pkgerrors.KindSubmissionInProgress:
		response.Fail(c, http.StatusConflict, 14006, kind, appErr.Message, "")
	case pkgerrors.KindNotFound:
		response.Fail(c, http.StatusNotFound, 14007, kind, appErr.Message, "")
	default:
		h.logger.Error("未知的错误分类", zap.String("kind", kind), zap.Error(err))
		response.InternalError(c)
	}
}
