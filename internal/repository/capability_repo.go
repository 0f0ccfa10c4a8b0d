package repository

import (
	"context"

	"gorm.io/gorm"
)

// RunNumber 一次流水号分配结果
type RunNumber struct {
	CapabilityID string
	ShortName    string
	Value        int64 // 本次分配到的流水号（自增前的值）
}

// CapabilityRepository 能力组数据访问接口
type CapabilityRepository interface {
	// NextRunNumber 原子地取号并自增；能力组不存在时返回 gorm.ErrRecordNotFound
	NextRunNumber(ctx context.Context, capabilityID string) (*RunNumber, error)
}

type capabilityRepo struct {
	db *gorm.DB
}

func NewCapabilityRepo(db *gorm.DB) CapabilityRepository {
	return &capabilityRepo{db: db}
}

// nextRunNumberSQL 单条语句完成读取与自增，行锁持有到外层事务结束
const nextRunNumberSQL = `
UPDATE capabilities
   SET req_run_no = req_run_no + 1,
       updated_at = CURRENT_TIMESTAMP
 WHERE capability_id = ?
   AND deleted_at IS NULL
RETURNING capability_id, short_name, req_run_no`

func (r *capabilityRepo) NextRunNumber(ctx context.Context, capabilityID string) (*RunNumber, error) {
	var row struct {
		CapabilityID string
		ShortName    string
		ReqRunNo     int64
	}
	result := r.db.WithContext(ctx).Raw(nextRunNumberSQL, capabilityID).Scan(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &RunNumber{
		CapabilityID: row.CapabilityID,
		ShortName:    row.ShortName,
		Value:        row.ReqRunNo - 1,
	}, nil
}
