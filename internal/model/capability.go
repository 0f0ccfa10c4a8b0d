package model

// Capability 实验室能力组 — 对应 capabilities
// ReqRunNo 为下一个待分配的流水号，普通与加急申请共用
type Capability struct {
	CapabilityID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"capability_id"`
	ShortName    string `gorm:"type:varchar(10);not null;uniqueIndex"          json:"short_name"`
	Name         string `gorm:"type:varchar(100);not null"                     json:"name"`
	ReqRunNo     int64  `gorm:"not null;default:1"                             json:"req_run_no"`
	SoftDeleteModel
}

// TableName 指定表名
func (Capability) TableName() string { return "capabilities" }
