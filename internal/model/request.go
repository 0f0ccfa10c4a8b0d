package model

import (
	"regexp"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	pkgerrors "polylab/backend/pkg/errors"
)

// ── 申请单状态与优先级 ──

const (
	RequestStatusPendingReceiveSample = "Pending Receive Sample"

	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// RequestNumberPattern 申请单号格式：{能力代码}-{N|E}-{MMYY}-{5位流水号}
var RequestNumberPattern = regexp.MustCompile(`^[A-Z0-9]+-[NE]-\d{4}-\d{5}$`)

// SampleSnapshot 申请单内的样品快照
type SampleSnapshot struct {
	Name   string `json:"name"`
	Remark string `json:"remark,omitempty"`
}

// MethodSnapshot 申请单内的测试方法选择快照
type MethodSnapshot struct {
	MethodID      string   `json:"method_id"`
	MethodCode    string   `json:"method_code"`
	Samples       []string `json:"samples"`
	EquipmentID   string   `json:"equipment_id,omitempty"`
	EquipmentName string   `json:"equipment_name,omitempty"`
	Cost          float64  `json:"cost"`
	Remark        string   `json:"remark,omitempty"`
}

// Request 测试申请单 — 对应 requests
type Request struct {
	RequestID      string                              `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"request_id"`
	RequestNumber  string                              `gorm:"type:varchar(40);not null;uniqueIndex"          json:"request_number"`
	CapabilityID   string                              `gorm:"type:uuid;not null;index"                       json:"capability_id"`
	RequestStatus  string                              `gorm:"type:varchar(40);not null"                      json:"request_status"`
	Priority       string                              `gorm:"type:varchar(10);not null"                      json:"priority"`
	RequesterName  string                              `gorm:"type:varchar(100);not null"                     json:"requester_name"`
	RequesterEmail string                              `gorm:"type:varchar(255);not null"                     json:"requester_email"`
	OnBehalfName   string                              `gorm:"type:varchar(100)"                              json:"on_behalf_name,omitempty"`
	OnBehalfEmail  string                              `gorm:"type:varchar(255)"                              json:"on_behalf_email,omitempty"`
	UseIONumber    bool                                `gorm:"not null;default:false"                         json:"use_io_number"`
	IOID           *string                             `gorm:"type:uuid"                                      json:"io_id,omitempty"`
	CostCenter     string                              `gorm:"type:varchar(50)"                               json:"cost_center,omitempty"`
	RequestTitle   string                              `gorm:"type:varchar(200)"                              json:"request_title,omitempty"`
	UrgentType     string                              `gorm:"type:varchar(50)"                               json:"urgent_type,omitempty"`
	UrgencyReason  string                              `gorm:"type:varchar(500)"                              json:"urgency_reason,omitempty"`
	ApproverName   string                              `gorm:"type:varchar(100)"                              json:"approver_name,omitempty"`
	ApproverEmail  string                              `gorm:"type:varchar(255)"                              json:"approver_email,omitempty"`
	Samples        datatypes.JSONSlice[SampleSnapshot] `gorm:"type:jsonb;not null"                            json:"samples"`
	TestingMethods datatypes.JSONSlice[MethodSnapshot] `gorm:"type:jsonb;not null"                            json:"testing_methods"`
	CreatedBy      *string                             `gorm:"type:varchar(64)"                               json:"created_by,omitempty"`
	CreatedAt      time.Time                           `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`

	// 关联
	Capability  *Capability         `gorm:"foreignKey:CapabilityID;references:CapabilityID" json:"capability,omitempty"`
	Assignments []TestingAssignment `gorm:"foreignKey:RequestID;references:RequestID"       json:"assignments,omitempty"`
}

// TableName 指定表名
func (Request) TableName() string { return "requests" }

// Validate 入库前校验，返回字段级错误
func (r *Request) Validate() error {
	var fields []pkgerrors.FieldError
	add := func(field, msg string) {
		fields = append(fields, pkgerrors.FieldError{Field: field, Message: msg})
	}

	if !RequestNumberPattern.MatchString(r.RequestNumber) {
		add("requestNumber", "申请单号格式无效: "+r.RequestNumber)
	}
	if r.CapabilityID == "" {
		add("capabilityId", "不能为空")
	}
	if r.RequestStatus != RequestStatusPendingReceiveSample {
		add("requestStatus", "初始状态必须为 "+RequestStatusPendingReceiveSample)
	}
	if r.Priority != PriorityNormal && r.Priority != PriorityUrgent {
		add("priority", "必须为 normal 或 urgent")
	}
	if r.RequesterName == "" {
		add("requester.name", "不能为空")
	}
	if r.RequesterEmail == "" {
		add("requester.email", "不能为空")
	}
	if r.Priority == PriorityUrgent {
		if r.UrgentType == "" {
			add("urgentType", "加急申请必须填写")
		}
		if r.UrgencyReason == "" {
			add("urgencyReason", "加急申请必须填写")
		}
	}
	if r.UseIONumber && r.IOID == nil {
		add("ioNumber", "未关联有效的内部项目号")
	}
	if len(r.Samples) == 0 {
		add("samples", "至少需要一个样品")
	}
	if len(r.TestingMethods) == 0 {
		add("testMethods", "至少需要一个测试方法")
	}

	if len(fields) > 0 {
		return pkgerrors.Validation(fields...)
	}
	return nil
}

// BeforeCreate GORM 钩子：写入前再次校验
func (r *Request) BeforeCreate(_ *gorm.DB) error {
	return r.Validate()
}
