package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户与角色仓储接口
type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	Create(ctx context.Context, user *model.UserModel) error
	Save(ctx context.Context, user *model.UserModel) error
	FindByID(ctx context.Context, id uint) (*model.UserModel, error)
	FindByUsername(ctx context.Context, username string) (*model.UserModel, error)
	RecordLoginFailure(ctx context.Context, id uint, maxFails int, now time.Time, lockout time.Duration) (*model.UserModel, bool, error)
	ResetLoginState(ctx context.Context, id uint, lastLoginAt *time.Time) error
	FindRoleByName(ctx context.Context, name string) (*model.RoleModel, error)
	CreateRole(ctx context.Context, role *model.RoleModel) error
}

// userRepository 用户仓储实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

// Create 创建用户
func (r *userRepository) Create(ctx context.Context, user *model.UserModel) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Omit("Role").Create(user).Error
}

// Save 保存用户
func (r *userRepository) Save(ctx context.Context, user *model.UserModel) error {
	return r.db.WithContext(ctx).Omit("Role").Save(user).Error
}

// FindByID 根据 ID 查找用户（含角色）
func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.UserModel, error) {
	var user model.UserModel
	if err := r.db.WithContext(ctx).Preload("Role").First(&user, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

// FindByUsername 根据用户名查找用户（含角色）
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.UserModel, error) {
	var user model.UserModel
	if err := r.db.WithContext(ctx).Preload("Role").Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

// RecordLoginFailure 原子累计登录失败次数，达到阈值且当前未锁定时写入 locked_until
// 返回更新后的用户，以及本次调用是否触发了锁定
func (r *userRepository) RecordLoginFailure(ctx context.Context, id uint, maxFails int, now time.Time, lockout time.Duration) (*model.UserModel, bool, error) {
	var user model.UserModel
	locked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.UserModel{}).Where("id = ?", id).
			UpdateColumn("failed_login_count", gorm.Expr("failed_login_count + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errs.ErrNotFound
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
			return translateNotFound(err)
		}
		if user.FailedLoginCount < maxFails || user.IsLocked(now) {
			return nil
		}

		until := now.Add(lockout)
		if err := tx.Model(&model.UserModel{}).Where("id = ?", id).
			UpdateColumn("locked_until", until).Error; err != nil {
			return err
		}
		user.LockedUntil = &until
		locked = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &user, locked, nil
}

// ResetLoginState 清零失败次数并解除锁定，lastLoginAt 非空时同时记录登录时间
func (r *userRepository) ResetLoginState(ctx context.Context, id uint, lastLoginAt *time.Time) error {
	updates := map[string]interface{}{
		"failed_login_count": 0,
		"locked_until":       nil,
	}
	if lastLoginAt != nil {
		updates["last_login_at"] = *lastLoginAt
	}
	result := r.db.WithContext(ctx).Model(&model.UserModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// FindRoleByName 根据名称查找角色
func (r *userRepository) FindRoleByName(ctx context.Context, name string) (*model.RoleModel, error) {
	var role model.RoleModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &role, nil
}

// CreateRole 创建角色
func (r *userRepository) CreateRole(ctx context.Context, role *model.RoleModel) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	return err
}
