package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"polylab/backend/config"
	"polylab/backend/internal/dto"
	"polylab/backend/internal/model"
	"polylab/backend/internal/repository"
	pkgerrors "polylab/backend/pkg/errors"
	"polylab/backend/pkg/metrics"
)

// ── 申请单模块业务错误 ──
// AppError 按 Kind 匹配，errors.Is(err, ErrXxx) 对包装后的错误同样成立

var (
	ErrNoCapabilityResolved   = pkgerrors.New(pkgerrors.KindNoCapabilityResolved, "所选测试方法均未关联有效能力组")
	ErrCapabilityNotFound     = pkgerrors.New(pkgerrors.KindCapabilityNotFound, "能力组不存在或已删除")
	ErrDuplicateRequestNumber = pkgerrors.New(pkgerrors.KindDuplicateRequestNumber, "申请单号重复，请重试")
	ErrTransientStoreFailure  = pkgerrors.New(pkgerrors.KindTransientStoreFailure, "存储暂时不可用，请稍后重试")
	ErrSubmissionInProgress   = pkgerrors.New(pkgerrors.KindSubmissionInProgress, "相同幂等键的提交正在处理中")
	ErrRequestNotFound        = pkgerrors.New(pkgerrors.KindNotFound, "申请单不存在")
)

// SubmissionCache 提交结果幂等缓存，由 pkg/redis.Client 实现
type SubmissionCache interface {
	GetSubmissionResult(ctx context.Context, key string) ([]byte, error)
	SaveSubmissionResult(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	AcquireInflight(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseInflight(ctx context.Context, key string) error
}

// RequestService 测试申请业务接口
type RequestService interface {
	// Submit 提交申请：按能力组拆分、取号并在单个事务内写入全部申请单与测试任务
	// idempotencyKey 为空时不做幂等处理
	Submit(ctx context.Context, req *dto.SubmitRequest, callerID, idempotencyKey string) (*dto.SubmitResponse, error)
	GetByNumber(ctx context.Context, requestNumber string) (*dto.RequestResponse, error)
	List(ctx context.Context, req *dto.RequestListRequest) ([]dto.RequestResponse, int64, error)
}

type requestService struct {
	repo    *repository.Repository
	cache   SubmissionCache // nil 时禁用幂等
	cfg     config.SubmissionConfig
	metrics *metrics.Manager
	logger  *zap.Logger
	now     func() time.Time
}

// NewRequestService 创建 RequestService 实例
func NewRequestService(
	repo *repository.Repository,
	cache SubmissionCache,
	cfg config.SubmissionConfig,
	m *metrics.Manager,
	logger *zap.Logger,
) RequestService {
	return &requestService{
		repo:    repo,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// ────────────────────── Submit ──────────────────────

func (s *requestService) Submit(ctx context.Context, req *dto.SubmitRequest, callerID, idempotencyKey string) (*dto.SubmitResponse, error) {
	start := time.Now()

	cacheKey := ""
	if s.cache != nil && idempotencyKey != "" {
		cacheKey = callerID + ":" + idempotencyKey

		if cached := s.replay(ctx, cacheKey); cached != nil {
			s.metrics.ObserveSubmission(metrics.OutcomeReplayed, "", time.Since(start))
			s.logger.Info("重放已提交的申请",
				zap.String("idempotency_key", idempotencyKey),
				zap.Strings("request_ids", cached.RequestIDs),
			)
			return cached, nil
		}

		acquired, err := s.cache.AcquireInflight(ctx, cacheKey, s.cfg.InflightTTL)
		switch {
		case err != nil:
			// Redis 异常时降级为非幂等提交
			s.logger.Warn("获取幂等锁失败，跳过幂等处理", zap.Error(err))
			cacheKey = ""
		case !acquired:
			s.metrics.ObserveSubmission(metrics.OutcomeAborted, string(pkgerrors.KindSubmissionInProgress), time.Since(start))
			return nil, ErrSubmissionInProgress
		default:
			defer func() {
				if err := s.cache.ReleaseInflight(context.WithoutCancel(ctx), cacheKey); err != nil {
					s.logger.Warn("释放幂等锁失败", zap.Error(err))
				}
			}()
			// 持锁后再查一次：前一次投递可能在首次查询与加锁之间已提交并释放
			if cached := s.replay(ctx, cacheKey); cached != nil {
				s.metrics.ObserveSubmission(metrics.OutcomeReplayed, "", time.Since(start))
				s.logger.Info("重放已提交的申请",
					zap.String("idempotency_key", idempotencyKey),
					zap.Strings("request_ids", cached.RequestIDs),
				)
				return cached, nil
			}
		}
	}

	resp, err := s.submit(ctx, req, callerID)
	if err != nil {
		kind := pkgerrors.KindOf(err)
		s.metrics.ObserveSubmission(metrics.OutcomeAborted, string(kind), time.Since(start))
		if kind == pkgerrors.KindTransientStoreFailure {
			s.logger.Error("申请提交失败", zap.String("caller_id", callerID), zap.Error(err))
		} else {
			s.logger.Info("申请提交被拒绝", zap.String("caller_id", callerID), zap.String("kind", string(kind)), zap.Error(err))
		}
		return nil, err
	}

	if cacheKey != "" {
		s.remember(ctx, cacheKey, resp)
	}

	s.metrics.ObserveSubmission(metrics.OutcomeCommitted, "", time.Since(start))
	s.logger.Info("申请提交成功",
		zap.String("caller_id", callerID),
		zap.Any("request_numbers", resp.RequestNumbers),
		zap.Bool("split_by_capability", resp.SplitByCapability),
	)
	return resp, nil
}

// submit 执行一次完整提交；任一步骤失败时整体回滚
func (s *requestService) submit(ctx context.Context, req *dto.SubmitRequest, callerID string) (*dto.SubmitResponse, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}
	now := s.now()

	// ── 解析与分组 ──
	methods, err := s.repo.TestMethod.ListByIDs(ctx, uniqueMethodIDs(req.TestMethods))
	if err != nil {
		return nil, classifyStoreError(err, "查询测试方法失败")
	}
	resolved, stats := resolveSelections(req.TestMethods, methods)
	if n := len(stats.UnknownMethod); n > 0 {
		s.logger.Debug("忽略未知测试方法", zap.Strings("method_ids", stats.UnknownMethod))
		s.metrics.RecordDropped(dropUnknownMethod, n)
	}
	if n := len(stats.NoCapability); n > 0 {
		s.logger.Debug("忽略未关联能力组的测试方法", zap.Strings("method_ids", stats.NoCapability))
		s.metrics.RecordDropped(dropNoCapability, n)
	}

	groups := groupByCapability(resolved)
	if len(groups) == 0 {
		return nil, ErrNoCapabilityResolved
	}

	// ── 计费信息 ──
	var io *model.IONumber
	if req.UseIONumber {
		io, err = s.repo.IONumber.GetActiveByNumber(ctx, strings.TrimSpace(req.IONumber))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Validation(pkgerrors.FieldError{
					Field:   "ioNumber",
					Message: "内部项目号不存在或已停用: " + req.IONumber,
				})
			}
			return nil, classifyStoreError(err, "查询内部项目号失败")
		}
	}

	samples := sampleIndex(req.Samples)

	type created struct {
		capability  string
		assignments int
	}
	var (
		resp    *dto.SubmitResponse
		records []created
	)

	// ── 事务：取号 → 组装 → 展开 ──
	err = s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		resp = &dto.SubmitResponse{
			RequestNumbers:    make(map[string]string, len(groups)),
			RequestIDs:        make([]string, 0, len(groups)),
			SplitByCapability: len(groups) > 1,
		}
		records = records[:0]

		for _, g := range groups {
			run, err := tx.Capability.NextRunNumber(ctx, g.CapabilityID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.KindCapabilityNotFound, "能力组不存在或已删除: "+g.CapabilityID, err)
				}
				return classifyStoreError(err, "分配流水号失败")
			}

			number, err := FormatRequestNumber(run.ShortName, req.Priority, now, run.Value)
			if err != nil {
				return err
			}

			request := BuildRequest(g, req, number, io, callerID, now)
			if err := request.Validate(); err != nil {
				return err
			}
			if err := tx.Request.Create(ctx, request); err != nil {
				return classifyStoreError(err, "写入申请单失败")
			}

			assignments, skipped := ExpandAssignments(request, g, samples, now)
			if skipped > 0 {
				s.logger.Debug("忽略不在样品列表中的样品",
					zap.String("request_number", number),
					zap.Int("skipped", skipped),
				)
				s.metrics.RecordDropped(dropUnknownSample, skipped)
			}
			if err := tx.TestingAssignment.BatchCreate(ctx, assignments); err != nil {
				return classifyStoreError(err, "写入测试任务失败")
			}

			resp.RequestNumbers[g.CapabilityID] = number
			resp.RequestIDs = append(resp.RequestIDs, request.RequestID)
			records = append(records, created{capability: g.ShortName, assignments: len(assignments)})
		}
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, "提交事务失败")
	}

	for _, r := range records {
		s.metrics.RecordRequestCreated(r.capability, req.Priority, r.assignments)
	}
	if resp.SplitByCapability {
		s.metrics.RecordSplit()
	}
	return resp, nil
}

// validateSubmission 持久化前的边界校验
func validateSubmission(req *dto.SubmitRequest) error {
	var fields []pkgerrors.FieldError
	add := func(field, msg string) {
		fields = append(fields, pkgerrors.FieldError{Field: field, Message: msg})
	}

	if req.Priority != model.PriorityNormal && req.Priority != model.PriorityUrgent {
		add("priority", "必须为 normal 或 urgent")
	}
	if strings.TrimSpace(req.Requester.Name) == "" {
		add("requester.name", "不能为空")
	}
	if strings.TrimSpace(req.Requester.Email) == "" {
		add("requester.email", "不能为空")
	}
	if req.Priority == model.PriorityUrgent {
		if strings.TrimSpace(req.UrgentType) == "" {
			add("urgentType", "加急申请必须填写")
		}
		if strings.TrimSpace(req.UrgencyReason) == "" {
			add("urgencyReason", "加急申请必须填写")
		}
	}
	if req.UseIONumber && strings.TrimSpace(req.IONumber) == "" {
		add("ioNumber", "使用内部项目号时必须填写")
	}

	if len(req.Samples) == 0 {
		add("samples", "至少需要一个样品")
	}
	seen := make(map[string]struct{}, len(req.Samples))
	for _, smp := range req.Samples {
		if strings.TrimSpace(smp.Name) == "" {
			add("samples", "样品名称不能为空")
			continue
		}
		if _, dup := seen[smp.Name]; dup {
			add("samples", "样品名称重复: "+smp.Name)
		}
		seen[smp.Name] = struct{}{}
	}

	if len(req.TestMethods) == 0 {
		add("testMethods", "至少需要一个测试方法")
	}
	for _, m := range req.TestMethods {
		if strings.TrimSpace(m.ID) == "" {
			add("testMethods.id", "不能为空")
		}
		if m.Cost < 0 {
			add("testMethods.cost", "不能为负数")
		}
	}

	if len(fields) > 0 {
		return pkgerrors.Validation(fields...)
	}
	return nil
}

// classifyStoreError 将存储层错误归类；已分类的错误原样返回
func classifyStoreError(err error, message string) error {
	var appErr *pkgerrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return pkgerrors.Wrap(pkgerrors.KindDuplicateRequestNumber, ErrDuplicateRequestNumber.Message, err)
	default:
		return pkgerrors.Wrap(pkgerrors.KindTransientStoreFailure, message, err)
	}
}

// ── 幂等缓存 ──

func (s *requestService) replay(ctx context.Context, key string) *dto.SubmitResponse {
	payload, err := s.cache.GetSubmissionResult(ctx, key)
	if err != nil {
		s.logger.Warn("读取幂等缓存失败", zap.Error(err))
		return nil
	}
	if payload == nil {
		return nil
	}
	var resp dto.SubmitResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.logger.Warn("幂等缓存内容损坏", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &resp
}

func (s *requestService) remember(ctx context.Context, key string, resp *dto.SubmitResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("序列化提交结果失败", zap.Error(err))
		return
	}
	if err := s.cache.SaveSubmissionResult(context.WithoutCancel(ctx), key, payload, s.cfg.IdempotencyTTL); err != nil {
		s.logger.Warn("写入幂等缓存失败", zap.Error(err))
	}
}

// ────────────────────── GetByNumber ──────────────────────

func (s *requestService) GetByNumber(ctx context.Context, requestNumber string) (*dto.RequestResponse, error) {
	request, err := s.repo.Request.GetByNumber(ctx, requestNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		s.logger.Error("查询申请单失败", zap.String("request_number", requestNumber), zap.Error(err))
		return nil, classifyStoreError(err, "查询申请单失败")
	}
	resp := toRequestResponse(request)
	return &resp, nil
}

// ────────────────────── List ──────────────────────

func (s *requestService) List(ctx context.Context, req *dto.RequestListRequest) ([]dto.RequestResponse, int64, error) {
	filter := repository.RequestFilter{
		CapabilityID: req.CapabilityID,
		Status:       req.Status,
		Priority:     req.Priority,
	}
	requests, total, err := s.repo.Request.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出申请单失败", zap.Error(err))
		return nil, 0, classifyStoreError(err, "列出申请单失败")
	}

	result := make([]dto.RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, toRequestResponse(&requests[i]))
	}
	return result, total, nil
}

// ── 转换 ──

func toRequestResponse(r *model.Request) dto.RequestResponse {
	resp := dto.RequestResponse{
		ID:            r.RequestID,
		RequestNumber: r.RequestNumber,
		CapabilityID:  r.CapabilityID,
		Status:        r.RequestStatus,
		Priority:      r.Priority,
		Requester:     dto.Person{Name: r.RequesterName, Email: r.RequesterEmail},
		UseIONumber:   r.UseIONumber,
		CostCenter:    r.CostCenter,
		RequestTitle:  r.RequestTitle,
		UrgentType:    r.UrgentType,
		UrgencyReason: r.UrgencyReason,
		Samples:       make([]dto.SampleInput, 0, len(r.Samples)),
		TestMethods:   make([]dto.TestMethodInput, 0, len(r.TestingMethods)),
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if r.Capability != nil {
		resp.Capability = &dto.CapabilityBrief{
			ID:        r.Capability.CapabilityID,
			ShortName: r.Capability.ShortName,
			Name:      r.Capability.Name,
		}
	}
	if r.OnBehalfName != "" || r.OnBehalfEmail != "" {
		resp.OnBehalf = &dto.Person{Name: r.OnBehalfName, Email: r.OnBehalfEmail}
	}
	if r.ApproverName != "" || r.ApproverEmail != "" {
		resp.Approver = &dto.Person{Name: r.ApproverName, Email: r.ApproverEmail}
	}
	for _, smp := range r.Samples {
		resp.Samples = append(resp.Samples, dto.SampleInput{Name: smp.Name, Remark: smp.Remark})
	}
	for _, m := range r.TestingMethods {
		resp.TestMethods = append(resp.TestMethods, dto.TestMethodInput{
			ID:            m.MethodID,
			Samples:       m.Samples,
			EquipmentID:   m.EquipmentID,
			EquipmentName: m.EquipmentName,
			Cost:          m.Cost,
			Remark:        m.Remark,
		})
	}
	for _, a := range r.Assignments {
		resp.Assignments = append(resp.Assignments, dto.AssignmentResponse{
			ID:            a.TestingID,
			MethodID:      a.MethodID,
			MethodCode:    a.MethodCode,
			SampleName:    a.SampleName,
			EquipmentID:   a.EquipmentID,
			EquipmentName: a.EquipmentName,
			Cost:          a.Cost,
			Remark:        a.Remark,
			Status:        a.Status,
			SubmittedAt:   a.SubmittedAt.Format(time.RFC3339),
		})
	}
	return resp
}
