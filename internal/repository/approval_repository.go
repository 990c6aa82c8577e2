package repository

import (
	"context"

	"github.com/mautops/shipchange-gin/internal/model"
	"gorm.io/gorm"
)

// ApprovalRepository 审批台账仓储接口，只提供追加与查询
type ApprovalRepository interface {
	WithTx(tx *gorm.DB) ApprovalRepository
	Append(ctx context.Context, entry *model.ApprovalModel) error
	CountByRequest(ctx context.Context, kind string, requestID uint) (int64, error)
	FindByRequest(ctx context.Context, kind string, requestID uint) ([]*model.ApprovalModel, error)
	DeleteByRequest(ctx context.Context, kind string, requestID uint) error
}

// approvalRepository 审批台账仓储实现
type approvalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository 创建审批台账仓储
func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *approvalRepository) WithTx(tx *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: tx}
}

// Append 追加台账条目
func (r *approvalRepository) Append(ctx context.Context, entry *model.ApprovalModel) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// CountByRequest 统计申请已有的台账条目数
func (r *approvalRepository) CountByRequest(ctx context.Context, kind string, requestID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ApprovalModel{}).
		Where("request_kind = ? AND request_id = ?", kind, requestID).
		Count(&count).Error
	return count, err
}

// FindByRequest 按阶段顺序返回申请的台账
func (r *approvalRepository) FindByRequest(ctx context.Context, kind string, requestID uint) ([]*model.ApprovalModel, error) {
	var entries []*model.ApprovalModel
	err := r.db.WithContext(ctx).
		Where("request_kind = ? AND request_id = ?", kind, requestID).
		Order("stage ASC").
		Find(&entries).Error
	return entries, err
}

// DeleteByRequest 随申请级联删除台账
func (r *approvalRepository) DeleteByRequest(ctx context.Context, kind string, requestID uint) error {
	return r.db.WithContext(ctx).
		Where("request_kind = ? AND request_id = ?", kind, requestID).
		Delete(&model.ApprovalModel{}).Error
}
