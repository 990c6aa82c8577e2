package repository

import (
	"context"
	"time"

	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/utils"
	"gorm.io/gorm"
)

// LoginLogFilter 登录日志查询过滤器
type LoginLogFilter struct {
	UserID       *uint
	Username     string
	Action       string
	IsSuccess    *bool
	WithoutUser  bool
	FailedOnly   bool
	SecurityOnly bool
	From         *time.Time
	To           *time.Time
	Search       string
	Limit        int
}

// LoginOutcome 登录日志动作与结果的组合
type LoginOutcome struct {
	Action    string
	IsSuccess bool
}

// LoginLogRepository 登录日志仓储接口
type LoginLogRepository interface {
	Create(ctx context.Context, log *model.LoginLogModel) error
	FindByFilter(ctx context.Context, filter *LoginLogFilter) ([]*model.LoginLogModel, error)
	CountFailuresSince(ctx context.Context, username string, since time.Time) (int64, error)
	DistinctOutcomes(ctx context.Context) ([]LoginOutcome, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// loginLogRepository 登录日志仓储实现
type loginLogRepository struct {
	db *gorm.DB
}

// NewLoginLogRepository 创建登录日志仓储
func NewLoginLogRepository(db *gorm.DB) LoginLogRepository {
	return &loginLogRepository{db: db}
}

// Create 写入登录日志
func (r *loginLogRepository) Create(ctx context.Context, log *model.LoginLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByFilter 根据过滤器查找登录日志，按时间倒序
func (r *loginLogRepository) FindByFilter(ctx context.Context, filter *LoginLogFilter) ([]*model.LoginLogModel, error) {
	query := r.db.WithContext(ctx).Model(&model.LoginLogModel{})

	if filter != nil {
		if filter.UserID != nil {
			query = query.Where("user_id = ?", *filter.UserID)
		}
		if filter.Username != "" {
			query = query.Where("username = ?", filter.Username)
		}
		if filter.Action != "" {
			query = query.Where("action = ?", filter.Action)
		}
		if filter.IsSuccess != nil {
			query = query.Where("is_success = ?", *filter.IsSuccess)
		}
		if filter.WithoutUser {
			query = query.Where("user_id IS NULL")
		}
		if filter.FailedOnly {
			query = query.Where("is_success = ?", false)
		}
		if filter.SecurityOnly {
			query = query.Where("is_security_event = ?", true)
		}
		if filter.From != nil {
			query = query.Where("timestamp >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("timestamp <= ?", *filter.To)
		}
		if filter.Search != "" {
			like := utils.LikePattern(filter.Search)
			query = query.Where(`username LIKE ? ESCAPE '\' OR failure_reason LIKE ? ESCAPE '\' OR ip_address LIKE ? ESCAPE '\'`, like, like, like)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var logs []*model.LoginLogModel
	err := query.Order("timestamp DESC").Order("id DESC").Find(&logs).Error
	return logs, err
}

// CountFailuresSince 统计用户自 since 起的登录失败次数
func (r *loginLogRepository) CountFailuresSince(ctx context.Context, username string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.LoginLogModel{}).
		Where("username = ? AND action = ? AND is_success = ? AND timestamp >= ?",
			username, model.LoginActionLogin, false, since).
		Count(&count).Error
	return count, err
}

// DistinctOutcomes 返回已出现的动作与结果组合
func (r *loginLogRepository) DistinctOutcomes(ctx context.Context) ([]LoginOutcome, error) {
	var outcomes []LoginOutcome
	err := r.db.WithContext(ctx).Model(&model.LoginLogModel{}).
		Distinct("action", "is_success").
		Order("action").
		Scan(&outcomes).Error
	return outcomes, err
}

// DeleteBefore 删除早于 cutoff 的登录日志
func (r *loginLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&model.LoginLogModel{})
	return result.RowsAffected, result.Error
}
