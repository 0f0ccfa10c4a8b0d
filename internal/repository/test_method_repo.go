package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"polylab/backend/internal/model"
)

// TestMethodRepository 测试方法数据访问接口（只读）
type TestMethodRepository interface {
	// ListByIDs 批量查询方法并预加载所属能力组，不存在的 ID 不返回
	ListByIDs(ctx context.Context, ids []string) ([]model.TestMethod, error)
}

type testMethodRepo struct {
	db *gorm.DB
}

func NewTestMethodRepo(db *gorm.DB) TestMethodRepository {
	return &testMethodRepo{db: db}
}

func (r *testMethodRepo) ListByIDs(ctx context.Context, ids []string) ([]model.TestMethod, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		// uuid 列不接受其他格式，交给数据库会报类型转换错误
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	var methods []model.TestMethod
	err := r.db.WithContext(ctx).
		Preload("Capability").
		Where("method_id IN ?", valid).
		Find(&methods).Error
	return methods, err
}
