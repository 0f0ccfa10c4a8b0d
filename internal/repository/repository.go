package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Capability        CapabilityRepository
	TestMethod        TestMethodRepository
	IONumber          IONumberRepository
	Request           RequestRepository
	TestingAssignment TestingAssignmentRepository

	// Tx 事务执行器；fn 返回错误时整体回滚
	Tx Transactor

	db *gorm.DB
}

// Transactor 在单个数据库事务内执行 fn，txRepo 的所有操作共享同一事务
type Transactor interface {
	Transaction(ctx context.Context, fn func(txRepo *Repository) error) error
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	r := &Repository{
		Capability:        NewCapabilityRepo(db),
		TestMethod:        NewTestMethodRepo(db),
		IONumber:          NewIONumberRepo(db),
		Request:           NewRequestRepo(db),
		TestingAssignment: NewTestingAssignmentRepo(db),
		db:                db,
	}
	r.Tx = &gormTransactor{db: db}
	return r
}

// BeginTx 手动开启事务，调用方负责 Commit / Rollback
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到指定事务的 Repository
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}

// Ping 数据库健康检查
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormTransactor struct {
	db *gorm.DB
}

func (t *gormTransactor) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
