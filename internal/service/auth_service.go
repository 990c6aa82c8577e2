package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/metrics"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

const minPasswordLength = 8

// AuthService 本地身份认证服务接口
type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (*model.UserModel, error)
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	CurrentUser(ctx context.Context) (*model.UserModel, error)
	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	Unlock(ctx context.Context, userID uint) error
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *model.UserModel `json:"user"`
}

// AuthOptions 认证服务选项
type AuthOptions struct {
	MaxFailedLogins int
	Lockout         time.Duration
	Now             func() time.Time
	Log             *logrus.Logger
}

type authService struct {
	users    repository.UserRepository
	hasher   auth.PasswordHasher
	logins   LoginLogService
	audit    AuditRecorder
	issuer   *auth.TokenIssuer
	maxFails int
	lockout  time.Duration
	now      func() time.Time
	log      *logrus.Logger
}

// NewAuthService 创建认证服务，issuer 为空时 Login 不可用
func NewAuthService(users repository.UserRepository, hasher auth.PasswordHasher, logins LoginLogService, recorder AuditRecorder, issuer *auth.TokenIssuer, opts AuthOptions) AuthService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if opts.MaxFailedLogins <= 0 {
		opts.MaxFailedLogins = 5
	}
	if opts.Lockout <= 0 {
		opts.Lockout = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &authService{
		users:    users,
		hasher:   hasher,
		logins:   logins,
		audit:    recorder,
		issuer:   issuer,
		maxFails: opts.MaxFailedLogins,
		lockout:  opts.Lockout,
		now:      opts.Now,
		log:      logger.OrDefault(opts.Log),
	}
}

// Authenticate 校验用户名密码，连续失败达到阈值后锁定账户
func (s *authService) Authenticate(ctx context.Context, username, password string) (*model.UserModel, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errs.NewValidationError("credentials", "username and password are required")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.loginFailed(ctx, nil, username, "unknown user")
			return nil, errs.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	if !user.IsActive {
		s.loginFailed(ctx, &user.ID, username, "account disabled")
		return nil, errs.ErrUnauthorized
	}
	if user.IsLocked(now) {
		metrics.RecordLoginAttempt("locked")
		_ = s.logins.LogLogin(ctx, &user.ID, username, false, "account locked")
		return nil, errs.ErrAccountLocked
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, s.recordFailure(ctx, user, now)
	}

	if err := s.users.ResetLoginState(ctx, user.ID, &now); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	metrics.RecordLoginAttempt("success")
	_ = s.logins.LogLogin(ctx, &user.ID, username, true, "")
	return user, nil
}

// recordFailure 累计失败次数，达到阈值时锁定
func (s *authService) recordFailure(ctx context.Context, user *model.UserModel, now time.Time) error {
	before := *user
	updated, locked, err := s.users.RecordLoginFailure(ctx, user.ID, s.maxFails, now, s.lockout)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	s.loginFailed(ctx, &user.ID, user.Username, "invalid password")
	if !locked {
		// 并发请求已先一步触发锁定
		if updated.IsLocked(now) {
			return errs.ErrAccountLocked
		}
		return errs.ErrUnauthorized
	}

	reason := fmt.Sprintf("%d consecutive failed logins", updated.FailedLoginCount)
	_ = s.logins.LogAccountLocked(ctx, &user.ID, user.Username, reason)
	s.audit.RecordUpdate(ctx, &before, updated, "Account locked: "+reason)
	s.log.WithFields(logrus.Fields{
		"username":     user.Username,
		"locked_until": updated.LockedUntil,
	}).Warn("Account locked after repeated login failures")
	return errs.ErrAccountLocked
}

func (s *authService) loginFailed(ctx context.Context, userID *uint, username, reason string) {
	metrics.RecordLoginAttempt("failure")
	_ = s.logins.LogLogin(ctx, userID, username, false, reason)
}

// Login 认证成功后签发本地 Token
func (s *authService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if s.issuer == nil {
		return nil, errors.New("local token issuer is not configured")
	}
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	var roles []string
	if name := user.RoleName(); name != "" {
		roles = append(roles, name)
	}
	token, expires, err := s.issuer.Issue(user.ID, user.Username, roles)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// CurrentUser 返回 context 中操作人对应的用户
func (s *authService) CurrentUser(ctx context.Context) (*model.UserModel, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return nil, errs.ErrUnauthorized
	}
	if actor.UserID != nil {
		return s.users.FindByID(ctx, *actor.UserID)
	}
	if actor.Username != "" {
		return s.users.FindByUsername(ctx, actor.Username)
	}
	return nil, errs.ErrUnauthorized
}

// ChangePassword 校验旧密码后修改密码
func (s *authService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		_ = s.logins.LogPasswordChange(ctx, &user.ID, user.Username, false, "current password mismatch")
		return errs.ErrUnauthorized
	}
	if len(newPassword) < minPasswordLength {
		return errs.NewValidationError("new_password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	before := *user
	user.PasswordHash = hash
	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	_ = s.logins.LogPasswordChange(ctx, &user.ID, user.Username, true, "")
	s.audit.RecordUpdate(ctx, &before, user, "Password changed")
	return nil
}

// Unlock 解除账户锁定
func (s *authService) Unlock(ctx context.Context, userID uint) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	before := *user
	if err := s.users.ResetLoginState(ctx, user.ID, nil); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	user.FailedLoginCount = 0
	user.LockedUntil = nil

	_ = s.logins.LogAccountUnlocked(ctx, &user.ID, user.Username)
	s.audit.RecordUpdate(ctx, &before, user, "Account unlocked")
	return nil
}
