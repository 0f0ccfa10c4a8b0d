package dto

// ── 申请提交 DTO ──
// JSON 字段沿用前端表单的 camelCase 命名

// Person 联系人
type Person struct {
	Name  string `json:"name"  binding:"required,max=100"`
	Email string `json:"email" binding:"required,email,max=255"`
}

// SampleInput 样品
type SampleInput struct {
	Name   string `json:"name"   binding:"required,max=200"`
	Remark string `json:"remark" binding:"max=500"`
}

// TestMethodInput 测试方法选择
type TestMethodInput struct {
	ID            string   `json:"id"            binding:"required"`
	Samples       []string `json:"samples"       binding:"dive,required"`
	EquipmentID   string   `json:"equipmentId"   binding:"max=64"`
	EquipmentName string   `json:"equipmentName" binding:"max=200"`
	Cost          float64  `json:"cost"          binding:"min=0"`
	Remark        string   `json:"remark"        binding:"max=500"`
}

// SubmitRequest 申请提交请求
type SubmitRequest struct {
	Priority      string            `json:"priority"      binding:"required,oneof=normal urgent"`
	Requester     Person            `json:"requester"     binding:"required"`
	OnBehalf      *Person           `json:"onBehalf"      binding:"omitempty"`
	UseIONumber   bool              `json:"useIONumber"`
	IONumber      string            `json:"ioNumber"      binding:"max=50"`
	CostCenter    string            `json:"costCenter"    binding:"max=50"`
	RequestTitle  string            `json:"requestTitle"  binding:"max=200"`
	UrgentType    string            `json:"urgentType"    binding:"max=50"`
	UrgencyReason string            `json:"urgencyReason" binding:"max=500"`
	Approver      *Person           `json:"approver"      binding:"omitempty"`
	Samples       []SampleInput     `json:"samples"       binding:"required,min=1,dive"`
	TestMethods   []TestMethodInput `json:"testMethods"   binding:"required,min=1,dive"`
}

// SubmitResponse 申请提交结果
type SubmitResponse struct {
	RequestNumbers    map[string]string `json:"requestNumbers"` // capabilityId → requestNumber
	RequestIDs        []string          `json:"requestIds"`
	SplitByCapability bool              `json:"splitByCapability"`
}

// ── 查询 DTO ──

// RequestListRequest 申请单列表查询参数
type RequestListRequest struct {
	CapabilityID string `form:"capability_id" binding:"omitempty,uuid"`
	Status       string `form:"status"        binding:"omitempty,max=40"`
	Priority     string `form:"priority"      binding:"omitempty,oneof=normal urgent"`
	PaginationRequest
}

// CapabilityBrief 能力组简要信息
type CapabilityBrief struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	Name      string `json:"name"`
}

// RequestResponse 申请单响应
type RequestResponse struct {
	ID            string               `json:"id"`
	RequestNumber string               `json:"requestNumber"`
	Capability    *CapabilityBrief     `json:"capability,omitempty"`
	CapabilityID  string               `json:"capabilityId"`
	Status        string               `json:"status"`
	Priority      string               `json:"priority"`
	Requester     Person               `json:"requester"`
	OnBehalf      *Person              `json:"onBehalf,omitempty"`
	UseIONumber   bool                 `json:"useIONumber"`
	CostCenter    string               `json:"costCenter,omitempty"`
	RequestTitle  string               `json:"requestTitle,omitempty"`
	UrgentType    string               `json:"urgentType,omitempty"`
	UrgencyReason string               `json:"urgencyReason,omitempty"`
	Approver      *Person              `json:"approver,omitempty"`
	Samples       []SampleInput        `json:"samples"`
	TestMethods   []TestMethodInput    `json:"testMethods"`
	Assignments   []AssignmentResponse `json:"assignments,omitempty"`
	CreatedAt     string               `json:"createdAt"`
}

// AssignmentResponse 测试任务响应
type AssignmentResponse struct {
	ID            string  `json:"id"`
	MethodID      string  `json:"methodId"`
	MethodCode    string  `json:"methodCode"`
	SampleName    string  `json:"sampleName"`
	EquipmentID   string  `json:"equipmentId,omitempty"`
	EquipmentName string  `json:"equipmentName,omitempty"`
	Cost          float64 `json:"cost"`
	Remark        string  `json:"remark,omitempty"`
	Status        string  `json:"status"`
	SubmittedAt   string  `json:"submittedAt"`
}
