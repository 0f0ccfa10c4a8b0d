package model

// IONumber 内部项目号（计费主体） — 对应 io_numbers
type IONumber struct {
	IOID       string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"io_id"`
	IONumber   string `gorm:"type:varchar(50);not null;uniqueIndex"          json:"io_number"`
	CostCenter string `gorm:"type:varchar(50)"                               json:"cost_center,omitempty"`
	IsActive   bool   `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel
}

// TableName 指定表名
func (IONumber) TableName() string { return "io_numbers" }
