package model

import "time"

// AssignmentStatusSubmitted 测试任务初始状态
const AssignmentStatusSubmitted = "submitted"

// TestingAssignment 测试任务（样品 × 方法） — 对应 testing_assignments
type TestingAssignment struct {
	TestingID     string    `gorm:"type:uuid;primaryKey"                 json:"testing_id"`
	RequestID     string    `gorm:"type:uuid;not null;index"             json:"request_id"`
	RequestNumber string    `gorm:"type:varchar(40);not null"            json:"request_number"`
	CapabilityID  string    `gorm:"type:uuid;not null"                   json:"capability_id"`
	MethodID      string    `gorm:"type:uuid;not null"                   json:"method_id"`
	MethodCode    string    `gorm:"type:varchar(50);not null"            json:"method_code"`
	SampleName    string    `gorm:"type:varchar(200);not null"           json:"sample_name"`
	SampleRemark  string    `gorm:"type:varchar(500)"                    json:"sample_remark,omitempty"`
	EquipmentID   string    `gorm:"type:varchar(64)"                     json:"equipment_id,omitempty"`
	EquipmentName string    `gorm:"type:varchar(200)"                    json:"equipment_name,omitempty"`
	Cost          float64   `gorm:"type:numeric(12,2);not null;default:0" json:"cost"`
	Remark        string    `gorm:"type:varchar(500)"                    json:"remark,omitempty"`
	Status        string    `gorm:"type:varchar(20);not null"            json:"status"`
	SubmittedAt   time.Time `gorm:"not null"                             json:"submitted_at"`
}

// TableName 指定表名
func (TestingAssignment) TableName() string { return "testing_assignments" }
