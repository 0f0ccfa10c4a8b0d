package repository

import (
	"context"

	"gorm.io/gorm"

	"polylab/backend/internal/model"
)

// RequestFilter 申请单列表过滤条件
type RequestFilter struct {
	CapabilityID string
	Status       string
	Priority     string
}

// RequestRepository 申请单数据访问接口
type RequestRepository interface {
	Create(ctx context.Context, request *model.Request) error
	GetByNumber(ctx context.Context, requestNumber string) (*model.Request, error)
	List(ctx context.Context, filter RequestFilter, offset, limit int) ([]model.Request, int64, error)
}

type requestRepo struct {
	db *gorm.DB
}

func NewRequestRepo(db *gorm.DB) RequestRepository {
	return &requestRepo{db: db}
}

func (r *requestRepo) Create(ctx context.Context, request *model.Request) error {
	return r.db.WithContext(ctx).Omit("Capability", "Assignments").Create(request).Error
}

func (r *requestRepo) GetByNumber(ctx context.Context, requestNumber string) (*model.Request, error) {
	var request model.Request
	err := r.db.WithContext(ctx).
		Preload("Capability").
		Preload("Assignments", func(db *gorm.DB) *gorm.DB {
			return db.Order("method_code ASC, sample_name ASC")
		}).
		Where("request_number = ?", requestNumber).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepo) List(ctx context.Context, filter RequestFilter, offset, limit int) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Request{})
	if filter.CapabilityID != "" {
		db = db.Where("capability_id = ?", filter.CapabilityID)
	}
	if filter.Status != "" {
		db = db.Where("request_status = ?", filter.Status)
	}
	if filter.Priority != "" {
		db = db.Where("priority = ?", filter.Priority)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Capability").
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, total, err
}
