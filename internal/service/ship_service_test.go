package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShipService_Deactivate(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewShipService(repository.NewShipRepository(db), newWriter(db))
	ctx := context.Background()

	ship, err := svc.Create(ctx, &model.ShipModel{Name: " MV Aurora ", HullNumber: "H-100"})
	require.NoError(t, err)
	assert.Equal(t, "MV Aurora", ship.Name)
	assert.True(t, ship.IsActive)

	_, err = svc.Create(ctx, &model.ShipModel{Name: "Copy", HullNumber: "H-100"})
	assert.True(t, errs.IsConflict(err))

	_, err = svc.Create(ctx, &model.ShipModel{Name: "No hull"})
	assert.True(t, errs.IsValidation(err))

	ok, err := svc.Deactivate(ctx, ship.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Deactivate(ctx, ship.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	updated, err := svc.Update(ctx, ship.ID, "MV Aurora II", "IMO1234567")
	require.NoError(t, err)
	assert.Equal(t, "MV Aurora II", updated.Name)

	var audits []model.AuditLogModel
	require.NoError(t, db.Where("entity_type = ?", "Ship").Order("id").Find(&audits).Error)
	require.Len(t, audits, 3)
	assert.Equal(t, "Deactivated", audits[1].AdditionalInfo)
}

// TestComponentService_DuplicateSerial 测试序列号重复返回冲突错误
func TestComponentService_DuplicateSerial(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewShipRepository(db)
	ships := service.NewShipService(repo, nil)
	svc := service.NewComponentService(repo, newWriter(db))
	ctx := context.Background()

	ship, err := ships.Create(ctx, &model.ShipModel{Name: "MV Boreas", HullNumber: "H-200"})
	require.NoError(t, err)

	c, err := svc.Create(ctx, &model.ComponentModel{ShipID: ship.ID, Name: "Radar", SerialNumber: "SN-1"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, &model.ComponentModel{ShipID: ship.ID, Name: "Spare radar", SerialNumber: "SN-1"})
	require.Error(t, err)
	var conflict *errs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "serial number already exists", conflict.Message)

	_, err = svc.Create(ctx, &model.ComponentModel{ShipID: 999, Name: "Orphan", SerialNumber: "SN-2"})
	assert.True(t, errs.IsValidation(err))

	ok, err := svc.Purge(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Purge(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := svc.ListByShip(ctx, ship.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// TestRetentionScheduler_Sweep 测试只删除超过保留期的记录
func TestRetentionScheduler_Sweep(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	require.NoError(t, db.Create([]model.AuditLogModel{
		{EntityType: "Ship", Action: "CREATE", EntityID: "1", UserName: "System", Timestamp: now.AddDate(0, 0, -40)},
		{EntityType: "Ship", Action: "UPDATE", EntityID: "1", UserName: "System", Timestamp: now.AddDate(0, 0, -1)},
	}).Error)
	require.NoError(t, db.Create([]model.LoginLogModel{
		{Username: "bosun", Action: "LOGIN", IsSuccess: true, Timestamp: now.AddDate(0, 0, -100)},
		{Username: "bosun", Action: "LOGIN", IsSuccess: true, Timestamp: now.AddDate(0, 0, -10)},
	}).Error)

	sched := service.NewRetentionScheduler(
		repository.NewAuditLogRepository(db),
		repository.NewLoginLogRepository(db),
		&service.RetentionScheduleConfig{Interval: time.Hour, AuditDays: 30, LoginDays: 90},
		nil,
	)
	result, err := sched.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.AuditDeleted)
	assert.Equal(t, int64(1), result.LoginDeleted)

	var audits, logins int64
	require.NoError(t, db.Model(&model.AuditLogModel{}).Count(&audits).Error)
	require.NoError(t, db.Model(&model.LoginLogModel{}).Count(&logins).Error)
	assert.Equal(t, int64(1), audits)
	assert.Equal(t, int64(1), logins)

	sched.Start(context.Background())
	sched.Stop()
}

func TestRetentionScheduler_Disabled(t *testing.T) {
	db := newTestDB(t)
	sched := service.NewRetentionScheduler(repository.NewAuditLogRepository(db), repository.NewLoginLogRepository(db), nil, nil)
	assert.Equal(t, 24*time.Hour, sched.Config().Interval)

	result, err := sched.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.AuditDeleted)

	sched.Start(context.Background())
	sched.Stop()
}

func TestLoginLogService_Queries(t *testing.T) {
	db := newTestDB(t)
	svc := service.NewLoginLogService(repository.NewLoginLogRepository(db), nil)
	ctx := context.Background()
	uid := uint(3)

	require.NoError(t, svc.LogLogin(ctx, &uid, "cook", true, "ignored on success"))
	require.NoError(t, svc.LogLogout(ctx, &uid, "cook", 95*time.Second))
	require.NoError(t, svc.LogLogin(ctx, nil, "cook", false, "invalid password"))
	require.NoError(t, svc.LogSecurityEvent(ctx, nil, "cook", "token replay detected"))

	byUser, err := svc.GetByUser(ctx, uid, 0)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, model.LoginActionLogout, byUser[0].Action)
	require.NotNil(t, byUser[0].SessionDuration)
	assert.Equal(t, int64(95), *byUser[0].SessionDuration)
	assert.Empty(t, byUser[1].FailureReason)

	failed, err := svc.GetFailedLogins(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "invalid password", failed[0].FailureReason)

	events, err := svc.GetSecurityEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.LoginActionSecurityEvent, events[0].Action)
}
