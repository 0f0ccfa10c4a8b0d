package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"polylab/backend/internal/dto"
	"polylab/backend/internal/model"
	pkgerrors "polylab/backend/pkg/errors"
)

// ── 提交流水线：解析 → 分组 → 取号 → 组装申请单 → 展开测试任务 ──
// 除取号外均为纯函数，事务边界由 requestService.Submit 统一控制

// 被忽略选择的原因，用于日志与指标
const (
	dropUnknownMethod = "unknown_method"
	dropNoCapability  = "no_capability"
	dropUnknownSample = "unknown_sample"
)

// resolvedSelection 已解析到能力组的方法选择
type resolvedSelection struct {
	Input          dto.TestMethodInput
	MethodCode     string
	CapabilityID   string
	ShortName      string
	CapabilityName string
}

// capabilityGroup 同一能力组下的全部方法选择
type capabilityGroup struct {
	CapabilityID string
	ShortName    string
	Selections   []resolvedSelection
}

// resolveStats 解析阶段被丢弃的选择数
type resolveStats struct {
	UnknownMethod []string
	NoCapability  []string
}

// resolveSelections 将方法选择关联到所属能力组
// 方法不存在、未关联能力组或能力组已删除的选择被丢弃
func resolveSelections(inputs []dto.TestMethodInput, methods []model.TestMethod) ([]resolvedSelection, resolveStats) {
	byID := make(map[string]*model.TestMethod, len(methods))
	for i := range methods {
		byID[methods[i].MethodID] = &methods[i]
	}

	var stats resolveStats
	resolved := make([]resolvedSelection, 0, len(inputs))
	for _, in := range inputs {
		m, ok := byID[in.ID]
		if !ok {
			stats.UnknownMethod = append(stats.UnknownMethod, in.ID)
			continue
		}
		if m.CapabilityID == nil || m.Capability == nil {
			stats.NoCapability = append(stats.NoCapability, in.ID)
			continue
		}
		resolved = append(resolved, resolvedSelection{
			Input:          in,
			MethodCode:     m.MethodCode,
			CapabilityID:   m.Capability.CapabilityID,
			ShortName:      m.Capability.ShortName,
			CapabilityName: m.Capability.Name,
		})
	}
	return resolved, stats
}

// groupByCapability 按能力组分组，结果按能力组 ID 升序
// 固定顺序保证并发提交以相同次序锁定计数行
func groupByCapability(selections []resolvedSelection) []capabilityGroup {
	index := make(map[string]int)
	var groups []capabilityGroup
	for _, sel := range selections {
		i, ok := index[sel.CapabilityID]
		if !ok {
			i = len(groups)
			index[sel.CapabilityID] = i
			groups = append(groups, capabilityGroup{
				CapabilityID: sel.CapabilityID,
				ShortName:    sel.ShortName,
			})
		}
		groups[i].Selections = append(groups[i].Selections, sel)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].CapabilityID < groups[b].CapabilityID
	})
	return groups
}

// FormatRequestNumber 生成申请单号 {能力代码}-{E|N}-{MMYY}-{流水号}
// 月份与年份取提交时刻；结果不符合 model.RequestNumberPattern 时返回校验错误
func FormatRequestNumber(shortCode, priority string, at time.Time, runNumber int64) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(shortCode))
	flag := "N"
	if priority == model.PriorityUrgent {
		flag = "E"
	}

	number := fmt.Sprintf("%s-%s-%02d%02d-%05d", code, flag, int(at.Month()), at.Year()%100, runNumber)
	if runNumber < 1 || !model.RequestNumberPattern.MatchString(number) {
		return "", pkgerrors.Validation(pkgerrors.FieldError{
			Field:   "requestNumber",
			Message: fmt.Sprintf("无法为能力组代码 %q 生成合法申请单号: %s", shortCode, number),
		})
	}
	return number, nil
}

// BuildRequest 为单个能力组组装申请单
// 样品列表为整次提交的完整列表，方法快照只包含本组方法
func BuildRequest(group capabilityGroup, req *dto.SubmitRequest, number string, io *model.IONumber, callerID string, at time.Time) *model.Request {
	samples := make([]model.SampleSnapshot, 0, len(req.Samples))
	for _, s := range req.Samples {
		samples = append(samples, model.SampleSnapshot{Name: s.Name, Remark: s.Remark})
	}

	methods := make([]model.MethodSnapshot, 0, len(group.Selections))
	for _, sel := range group.Selections {
		methods = append(methods, model.MethodSnapshot{
			MethodID:      sel.Input.ID,
			MethodCode:    sel.MethodCode,
			Samples:       append([]string(nil), sel.Input.Samples...),
			EquipmentID:   sel.Input.EquipmentID,
			EquipmentName: sel.Input.EquipmentName,
			Cost:          sel.Input.Cost,
			Remark:        sel.Input.Remark,
		})
	}

	r := &model.Request{
		RequestID:      uuid.NewString(),
		RequestNumber:  number,
		CapabilityID:   group.CapabilityID,
		RequestStatus:  model.RequestStatusPendingReceiveSample,
		Priority:       req.Priority,
		RequesterName:  req.Requester.Name,
		RequesterEmail: req.Requester.Email,
		UseIONumber:    req.UseIONumber,
		CostCenter:     req.CostCenter,
		RequestTitle:   req.RequestTitle,
		UrgentType:     req.UrgentType,
		UrgencyReason:  req.UrgencyReason,
		Samples:        samples,
		TestingMethods: methods,
		CreatedAt:      at,
	}
	if req.OnBehalf != nil {
		r.OnBehalfName = req.OnBehalf.Name
		r.OnBehalfEmail = req.OnBehalf.Email
	}
	if req.Approver != nil {
		r.ApproverName = req.Approver.Name
		r.ApproverEmail = req.Approver.Email
	}
	if io != nil {
		ioID := io.IOID
		r.IOID = &ioID
		if r.CostCenter == "" {
			r.CostCenter = io.CostCenter
		}
	}
	if callerID != "" {
		r.CreatedBy = &callerID
	}
	return r
}

// ExpandAssignments 展开申请单的测试任务（方法 × 样品）
// 样品名不在提交样品列表中的组合被跳过，返回跳过数
func ExpandAssignments(request *model.Request, group capabilityGroup, samples map[string]dto.SampleInput, at time.Time) ([]model.TestingAssignment, int) {
	var (
		assignments []model.TestingAssignment
		skipped     int
	)
	for _, sel := range group.Selections {
		for _, name := range sel.Input.Samples {
			sample, ok := samples[name]
			if !ok {
				skipped++
				continue
			}
			assignments = append(assignments, model.TestingAssignment{
				TestingID:     uuid.NewString(),
				RequestID:     request.RequestID,
				RequestNumber: request.RequestNumber,
				CapabilityID:  group.CapabilityID,
				MethodID:      sel.Input.ID,
				MethodCode:    sel.MethodCode,
				SampleName:    sample.Name,
				SampleRemark:  sample.Remark,
				EquipmentID:   sel.Input.EquipmentID,
				EquipmentName: sel.Input.EquipmentName,
				Cost:          sel.Input.Cost,
				Remark:        sel.Input.Remark,
				Status:        model.AssignmentStatusSubmitted,
				SubmittedAt:   at,
			})
		}
	}
	return assignments, skipped
}

// sampleIndex 按样品名建立索引
func sampleIndex(samples []dto.SampleInput) map[string]dto.SampleInput {
	idx := make(map[string]dto.SampleInput, len(samples))
	for _, s := range samples {
		idx[s.Name] = s
	}
	return idx
}

// uniqueMethodIDs 去重后的方法 ID，保持输入顺序
// 非 UUID 格式的 ID 不可能命中，直接跳过，由 resolveSelections 计为未知方法
func uniqueMethodIDs(inputs []dto.TestMethodInput) []string {
	seen := make(map[string]struct{}, len(inputs))
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.ID]; ok {
			continue
		}
		if _, err := uuid.Parse(in.ID); err != nil {
			continue
		}
		seen[in.ID] = struct{}{}
		ids = append(ids, in.ID)
	}
	return ids
}
