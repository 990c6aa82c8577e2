package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type authFixture struct {
	db     *gorm.DB
	svc    service.AuthService
	logins service.LoginLogService
	hasher auth.PasswordHasher
	user   *model.UserModel
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestDB(t)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	users := repository.NewUserRepository(db)

	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)
	user := &model.UserModel{Username: "bosun", FullName: "Deck Bosun", PasswordHash: hash, IsActive: true}
	require.NoError(t, users.Create(context.Background(), user))

	logins := service.NewLoginLogService(repository.NewLoginLogRepository(db), nil)
	svc := service.NewAuthService(users, hasher, logins, newWriter(db),
		auth.NewTokenIssuer("test-secret", time.Hour),
		service.AuthOptions{MaxFailedLogins: 3, Lockout: 10 * time.Minute})
	return &authFixture{db: db, svc: svc, logins: logins, hasher: hasher, user: user}
}

func loginRows(t *testing.T, db *gorm.DB, action string) []model.LoginLogModel {
	t.Helper()
	var rows []model.LoginLogModel
	require.NoError(t, db.Where("action = ?", action).Order("id").Find(&rows).Error)
	return rows
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := auth.WithClient(context.Background(), auth.ClientInfo{IPAddress: "10.1.1.1", UserAgent: "test"})

	user, err := f.svc.Authenticate(ctx, " bosun ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
	assert.NotNil(t, user.LastLoginAt)

	_, err = f.svc.Authenticate(ctx, "ghost", "whatever")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = f.svc.Authenticate(ctx, "", "")
	assert.True(t, errs.IsValidation(err))

	rows := loginRows(t, f.db, model.LoginActionLogin)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].IsSuccess)
	assert.Equal(t, "10.1.1.1", rows[0].IPAddress)
	assert.False(t, rows[1].IsSuccess)
	assert.Equal(t, "unknown user", rows[1].FailureReason)
	assert.Nil(t, rows[1].UserID)
}

// TestAuthService_LockoutAfterFailures 测试连续失败后锁定账户
func TestAuthService_LockoutAfterFailures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Authenticate(ctx, "bosun", "wrong")
		assert.ErrorIs(t, err, errs.ErrUnauthorized)
	}
	_, err := f.svc.Authenticate(ctx, "bosun", "wrong")
	assert.ErrorIs(t, err, errs.ErrAccountLocked)

	// 锁定期间正确密码也被拒绝
	_, err = f.svc.Authenticate(ctx, "bosun", "correct-horse")
	assert.ErrorIs(t, err, errs.ErrAccountLocked)

	locked := loginRows(t, f.db, model.LoginActionAccountLocked)
	require.Len(t, locked, 1)
	assert.True(t, locked[0].IsSecurityEvent)
	assert.Contains(t, locked[0].FailureReason, "3 consecutive failed logins")

	count, err := f.logins.CountRecentFailures(ctx, "bosun", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, f.svc.Unlock(ctx, f.user.ID))
	_, err = f.svc.Authenticate(ctx, "bosun", "correct-horse")
	require.NoError(t, err)
	assert.Len(t, loginRows(t, f.db, model.LoginActionAccountUnlocked), 1)

	var audits []model.AuditLogModel
	require.NoError(t, f.db.Where("entity_type = ?", "User").Order("id").Find(&audits).Error)
	require.Len(t, audits, 2)
	assert.Contains(t, audits[0].AdditionalInfo, "Account locked")
	assert.Equal(t, "Account unlocked", audits[1].AdditionalInfo)
	assert.NotContains(t, string(audits[0].NewValues), "PasswordHash")
}

// TestAuthService_ConcurrentFailuresLock 测试并发错误密码请求仍会触发锁定
func TestAuthService_ConcurrentFailuresLock(t *testing.T) {
	f := newAuthFixture(t)
	svc := service.NewAuthService(repository.NewUserRepository(f.db), f.hasher, f.logins, newWriter(f.db), nil,
		service.AuthOptions{MaxFailedLogins: 5, Lockout: 10 * time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Authenticate(context.Background(), "bosun", "wrong")
			assert.Error(t, err)
		}()
	}
	wg.Wait()

	user, err := repository.NewUserRepository(f.db).FindByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.True(t, user.IsLocked(time.Now()))
	assert.GreaterOrEqual(t, user.FailedLoginCount, 5)
	assert.Len(t, loginRows(t, f.db, model.LoginActionAccountLocked), 1)

	_, err = svc.Authenticate(context.Background(), "bosun", "correct-horse")
	assert.ErrorIs(t, err, errs.ErrAccountLocked)
}

// TestUserRepository_RecordLoginFailure 测试失败计数原子累加且只锁定一次
func TestUserRepository_RecordLoginFailure(t *testing.T) {
	f := newAuthFixture(t)
	users := repository.NewUserRepository(f.db)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	lockedCalls := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, locked, err := users.RecordLoginFailure(ctx, f.user.ID, 4, now, time.Minute)
			assert.NoError(t, err)
			if locked {
				mu.Lock()
				lockedCalls++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	user, err := users.FindByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, user.FailedLoginCount)
	assert.Equal(t, 1, lockedCalls)
	require.NotNil(t, user.LockedUntil)

	require.NoError(t, users.ResetLoginState(ctx, f.user.ID, &now))
	user, err = users.FindByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, user.FailedLoginCount)
	assert.Nil(t, user.LockedUntil)
	assert.NotNil(t, user.LastLoginAt)

	_, _, err = users.RecordLoginFailure(ctx, 999, 4, now, time.Minute)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAuthService_LoginIssuesToken(t *testing.T) {
	f := newAuthFixture(t)
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)

	result, err := f.svc.Login(context.Background(), "bosun", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	actor, err := issuer.Verify(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, "bosun", actor.Username)
	require.NotNil(t, actor.UserID)
	assert.Equal(t, f.user.ID, *actor.UserID)

	ctx := auth.WithActor(context.Background(), *actor)
	current, err := f.svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bosun", current.Username)

	_, err = f.svc.CurrentUser(context.Background())
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, f.user.ID, "nope", "new-password-1")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	err = f.svc.ChangePassword(ctx, f.user.ID, "correct-horse", "short")
	assert.True(t, errs.IsValidation(err))

	require.NoError(t, f.svc.ChangePassword(ctx, f.user.ID, "correct-horse", "new-password-1"))
	_, err = f.svc.Authenticate(ctx, "bosun", "new-password-1")
	require.NoError(t, err)

	rows := loginRows(t, f.db, model.LoginActionPasswordChange)
	require.Len(t, rows, 2)
	assert.False(t, rows[0].IsSuccess)
	assert.True(t, rows[1].IsSuccess)
}

// TestAdminBootstrapper_RunsOnce 测试并发调用只创建一次默认管理员
func TestAdminBootstrapper_RunsOnce(t *testing.T) {
	db := newTestDB(t)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	boot := service.NewAdminBootstrapper(db, hasher, newWriter(db), "admin", "admin123", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, boot.EnsureDefaults(context.Background()))
		}()
	}
	wg.Wait()
	assert.True(t, boot.Done())

	var users, roles, audits int64
	require.NoError(t, db.Model(&model.UserModel{}).Count(&users).Error)
	require.NoError(t, db.Model(&model.RoleModel{}).Count(&roles).Error)
	require.NoError(t, db.Model(&model.AuditLogModel{}).Count(&audits).Error)
	assert.Equal(t, int64(1), users)
	assert.Equal(t, int64(1), roles)
	assert.Equal(t, int64(2), audits)

	admin, err := repository.NewUserRepository(db).FindByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.RoleName())
	assert.True(t, hasher.Verify("admin123", admin.PasswordHash))

	// 新进程遇到已有数据时不重复创建
	again := service.NewAdminBootstrapper(db, hasher, newWriter(db), "admin", "admin123", nil)
	require.NoError(t, again.EnsureDefaults(context.Background()))
	require.NoError(t, db.Model(&model.UserModel{}).Count(&users).Error)
	assert.Equal(t, int64(1), users)
}
