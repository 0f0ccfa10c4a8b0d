package repository

import (
	"context"

	"gorm.io/gorm"

	"polylab/backend/internal/model"
)

// TestingAssignmentRepository 测试任务数据访问接口
type TestingAssignmentRepository interface {
	BatchCreate(ctx context.Context, assignments []model.TestingAssignment) error
}

type testingAssignmentRepo struct {
	db *gorm.DB
}

func NewTestingAssignmentRepo(db *gorm.DB) TestingAssignmentRepository {
	return &testingAssignmentRepo{db: db}
}

func (r *testingAssignmentRepo) BatchCreate(ctx context.Context, assignments []model.TestingAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&assignments, 200).Error
}
