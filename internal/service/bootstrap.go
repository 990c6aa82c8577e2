package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminBootstrapper 首次运行时创建管理员角色与账户，每个进程只执行一次
type AdminBootstrapper struct {
	db       *gorm.DB
	users    repository.UserRepository
	hasher   auth.PasswordHasher
	audit    AuditRecorder
	username string
	password string
	log      *logrus.Logger

	mu   sync.Mutex
	done atomic.Bool
}

// NewAdminBootstrapper 创建管理员初始化器
func NewAdminBootstrapper(db *gorm.DB, hasher auth.PasswordHasher, recorder AuditRecorder, username, password string, log *logrus.Logger) *AdminBootstrapper {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &AdminBootstrapper{
		db:       db,
		users:    repository.NewUserRepository(db),
		hasher:   hasher,
		audit:    recorder,
		username: username,
		password: password,
		log:      logger.OrDefault(log),
	}
}

// Done 是否已完成初始化
func (b *AdminBootstrapper) Done() bool {
	return b.done.Load()
}

// EnsureDefaults 确保管理员角色与账户存在
func (b *AdminBootstrapper) EnsureDefaults(ctx context.Context) error {
	if b.done.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// 获取锁后再次检查
	if b.done.Load() {
		return nil
	}

	var created []interface{}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := b.users.WithTx(tx)

		role, err := users.FindRoleByName(ctx, model.RoleAdmin)
		if errors.Is(err, errs.ErrNotFound) {
			role = &model.RoleModel{Name: model.RoleAdmin, Description: "System administrator"}
			if err := users.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("failed to create admin role: %w", err)
			}
			created = append(created, role)
		} else if err != nil {
			return err
		}

		_, err = users.FindByUsername(ctx, b.username)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		hash, err := b.hasher.Hash(b.password)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		admin := &model.UserModel{
			Username:     b.username,
			FullName:     "Administrator",
			PasswordHash: hash,
			RoleID:       &role.ID,
			IsActive:     true,
		}
		if err := users.Create(ctx, admin); err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		created = append(created, admin)
		return nil
	})
	if err != nil {
		return err
	}

	b.done.Store(true)
	for _, entity := range created {
		b.audit.RecordCreate(ctx, entity)
	}
	if len(created) > 0 {
		b.log.WithField("username", b.username).Info("Default administrator created")
	}
	return nil
}
