package repository

import (
	"context"

	"gorm.io/gorm"

	"polylab/backend/internal/model"
)

// IONumberRepository 内部项目号数据访问接口
type IONumberRepository interface {
	GetActiveByNumber(ctx context.Context, ioNumber string) (*model.IONumber, error)
}

type ioNumberRepo struct {
	db *gorm.DB
}

func NewIONumberRepo(db *gorm.DB) IONumberRepository {
	return &ioNumberRepo{db: db}
}

func (r *ioNumberRepo) GetActiveByNumber(ctx context.Context, ioNumber string) (*model.IONumber, error) {
	var io model.IONumber
	err := r.db.WithContext(ctx).
		Where("io_number = ? AND is_active = ?", ioNumber, true).
		First(&io).Error
	if err != nil {
		return nil, err
	}
	return &io, nil
}
