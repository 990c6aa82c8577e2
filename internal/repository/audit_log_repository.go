package repository

import (
	"context"
	"time"

	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/utils"
	"gorm.io/gorm"
)

// AuditLogFilter 审计日志查询过滤器
type AuditLogFilter struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     *uint
	From       *time.Time
	To         *time.Time
	Search     string
	Limit      int
}

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Create(ctx context.Context, log *model.AuditLogModel) error
	FindByFilter(ctx context.Context, filter *AuditLogFilter) ([]*model.AuditLogModel, error)
	DistinctEntityTypes(ctx context.Context) ([]string, error)
	DistinctActions(ctx context.Context) ([]string, error)
	MaxID(ctx context.Context) (uint, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// auditLogRepository 审计日志仓储实现
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Create 写入审计日志
func (r *auditLogRepository) Create(ctx context.Context, log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByFilter 根据过滤器查找审计日志，按时间倒序
func (r *auditLogRepository) FindByFilter(ctx context.Context, filter *AuditLogFilter) ([]*model.AuditLogModel, error) {
	query := r.db.WithContext(ctx).Model(&model.AuditLogModel{})

	if filter != nil {
		if filter.EntityType != "" {
			query = query.Where("entity_type = ?", filter.EntityType)
		}
		if filter.EntityID != "" {
			query = query.Where("entity_id = ?", filter.EntityID)
		}
		if filter.Action != "" {
			query = query.Where("action = ?", filter.Action)
		}
		if filter.UserID != nil {
			query = query.Where("user_id = ?", *filter.UserID)
		}
		if filter.From != nil {
			query = query.Where("timestamp >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("timestamp <= ?", *filter.To)
		}
		if filter.Search != "" {
			like := utils.LikePattern(filter.Search)
			query = query.Where(`entity_name LIKE ? ESCAPE '\' OR additional_info LIKE ? ESCAPE '\' OR user_name LIKE ? ESCAPE '\'`, like, like, like)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var logs []*model.AuditLogModel
	err := query.Order("timestamp DESC").Order("id DESC").Find(&logs).Error
	return logs, err
}

// DistinctEntityTypes 返回已记录的实体类型
func (r *auditLogRepository) DistinctEntityTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := r.db.WithContext(ctx).Model(&model.AuditLogModel{}).
		Distinct().Order("entity_type").Pluck("entity_type", &types).Error
	return types, err
}

// DistinctActions 返回已记录的动作
func (r *auditLogRepository) DistinctActions(ctx context.Context) ([]string, error) {
	var actions []string
	err := r.db.WithContext(ctx).Model(&model.AuditLogModel{}).
		Distinct().Order("action").Pluck("action", &actions).Error
	return actions, err
}

// MaxID 返回最大的审计日志 ID，无记录时为 0
func (r *auditLogRepository) MaxID(ctx context.Context) (uint, error) {
	var maxID int64
	err := r.db.WithContext(ctx).Model(&model.AuditLogModel{}).
		Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
	return uint(maxID), err
}

// DeleteBefore 删除早于 cutoff 的审计日志
func (r *auditLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&model.AuditLogModel{})
	return result.RowsAffected, result.Error
}
