package model

// TestMethod 测试方法 — 对应 test_methods
type TestMethod struct {
	MethodID     string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"method_id"`
	CapabilityID *string `gorm:"type:uuid"                                      json:"capability_id,omitempty"`
	MethodCode   string  `gorm:"type:varchar(50);not null"                      json:"method_code"`
	Name         string  `gorm:"type:varchar(200);not null"                     json:"name"`
	IsActive     bool    `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel

	// 关联
	Capability *Capability `gorm:"foreignKey:CapabilityID;references:CapabilityID" json:"capability,omitempty"`
}

// TableName 指定表名
func (TestMethod) TableName() string { return "test_methods" }
