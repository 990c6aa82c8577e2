package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// LoginLogService 登录日志服务接口
type LoginLogService interface {
	LogLogin(ctx context.Context, userID *uint, username string, success bool, reason string) error
	LogLogout(ctx context.Context, userID *uint, username string, duration time.Duration) error
	LogPasswordChange(ctx context.Context, userID *uint, username string, success bool, reason string) error
	LogAccountLocked(ctx context.Context, userID *uint, username, reason string) error
	LogAccountUnlocked(ctx context.Context, userID *uint, username string) error
	LogSecurityEvent(ctx context.Context, userID *uint, username, description string) error
	GetByUser(ctx context.Context, userID uint, limit int) ([]*model.LoginLogModel, error)
	GetFailedLogins(ctx context.Context, since time.Time, limit int) ([]*model.LoginLogModel, error)
	GetSecurityEvents(ctx context.Context, limit int) ([]*model.LoginLogModel, error)
	CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error)
}

type loginLogService struct {
	repo repository.LoginLogRepository
	log  *logrus.Logger
	now  func() time.Time
}

// NewLoginLogService 创建登录日志服务
func NewLoginLogService(repo repository.LoginLogRepository, log *logrus.Logger) LoginLogService {
	return &loginLogService{
		repo: repo,
		log:  logger.OrDefault(log),
		now:  time.Now,
	}
}

// LogLogin 记录登录结果
func (s *loginLogService) LogLogin(ctx context.Context, userID *uint, username string, success bool, reason string) error {
	entry := s.newEntry(ctx, userID, username, model.LoginActionLogin, success)
	if !success {
		entry.FailureReason = reason
	}
	return s.write(ctx, entry)
}

// LogLogout 记录登出及会话时长
func (s *loginLogService) LogLogout(ctx context.Context, userID *uint, username string, duration time.Duration) error {
	entry := s.newEntry(ctx, userID, username, model.LoginActionLogout, true)
	if duration > 0 {
		seconds := int64(duration / time.Second)
		entry.SessionDuration = &seconds
	}
	return s.write(ctx, entry)
}

// LogPasswordChange 记录修改密码
func (s *loginLogService) LogPasswordChange(ctx context.Context, userID *uint, username string, success bool, reason string) error {
	entry := s.newEntry(ctx, userID, username, model.LoginActionPasswordChange, success)
	if !success {
		entry.FailureReason = reason
	}
	return s.write(ctx, entry)
}

// LogAccountLocked 记录账户锁定
func (s *loginLogService) LogAccountLocked(ctx context.Context, userID *uint, username, reason string) error {
	entry := s.newEntry(ctx, userID, username, model.LoginActionAccountLocked, true)
	entry.FailureReason = reason
	entry.IsSecurityEvent = true
	return s.write(ctx, entry)
}

// LogAccountUnlocked 记录账户解锁
func (s *loginLogService) LogAccountUnlocked(ctx context.Context, userID *uint, username string) error {
	entry := s.newEntry(ctx, userID, username, model.LoginActionAccountUnlocked, true)
	entry.IsSecurityEvent = true
	return s.write(ctx, entry)
}

// LogSecurityEvent 记录一般安全事件
func (s *loginLogService) LogSecurityEvent(ctx context.Context, userID *uint, username, description string) error {
	entry := s.newEntry(ctx, userID, username, model.LoginActionSecurityEvent, false)
	entry.FailureReason = description
	entry.IsSecurityEvent = true
	return s.write(ctx, entry)
}

// GetByUser 查询用户的登录日志
func (s *loginLogService) GetByUser(ctx context.Context, userID uint, limit int) ([]*model.LoginLogModel, error) {
	return s.repo.FindByFilter(ctx, &repository.LoginLogFilter{UserID: &userID, Limit: limit})
}

// GetFailedLogins 查询 since 之后的登录失败记录
func (s *loginLogService) GetFailedLogins(ctx context.Context, since time.Time, limit int) ([]*model.LoginLogModel, error) {
	return s.repo.FindByFilter(ctx, &repository.LoginLogFilter{
		Action:     model.LoginActionLogin,
		FailedOnly: true,
		From:       &since,
		Limit:      limit,
	})
}

// GetSecurityEvents 查询安全事件
func (s *loginLogService) GetSecurityEvents(ctx context.Context, limit int) ([]*model.LoginLogModel, error) {
	return s.repo.FindByFilter(ctx, &repository.LoginLogFilter{SecurityOnly: true, Limit: limit})
}

// CountRecentFailures 统计用户自 since 起的登录失败次数
func (s *loginLogService) CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error) {
	return s.repo.CountFailuresSince(ctx, username, since)
}

func (s *loginLogService) newEntry(ctx context.Context, userID *uint, username, action string, success bool) *model.LoginLogModel {
	client := auth.ClientFromContext(ctx)
	return &model.LoginLogModel{
		UserID:    userID,
		Username:  username,
		Action:    action,
		IsSuccess: success,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Timestamp: s.now(),
	}
}

func (s *loginLogService) write(ctx context.Context, entry *model.LoginLogModel) error {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.WithFields(logrus.Fields{
			"action":   entry.Action,
			"username": entry.Username,
		}).WithError(err).Error("Failed to write login log")
		return fmt.Errorf("failed to write login log: %w", err)
	}
	return nil
}
