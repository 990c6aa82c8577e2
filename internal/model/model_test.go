package model_test

import (
	"testing"
	"time"

	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/stretchr/testify/assert"
)

// TestRequestStatus_String 测试状态显示名称
func TestRequestStatus_String(t *testing.T) {
	assert.Equal(t, "Draft", model.StatusDraft.String())
	assert.Equal(t, "Under Review", model.StatusUnderReview.String())
	assert.Equal(t, "Implemented", model.StatusImplemented.String())
	assert.Equal(t, "Unknown", model.RequestStatus(42).String())
	assert.Equal(t, 1, int(model.StatusDraft))
	assert.Equal(t, 6, int(model.StatusImplemented))
}

// TestParseRequestStatus 测试状态解析
func TestParseRequestStatus(t *testing.T) {
	s, ok := model.ParseRequestStatus("under review")
	assert.True(t, ok)
	assert.Equal(t, model.StatusUnderReview, s)

	s, ok = model.ParseRequestStatus("UnderReview")
	assert.True(t, ok)
	assert.Equal(t, model.StatusUnderReview, s)

	_, ok = model.ParseRequestStatus("cancelled")
	assert.False(t, ok)
}

// TestRequestStatus_IsTerminal 测试终态判断
func TestRequestStatus_IsTerminal(t *testing.T) {
	assert.True(t, model.StatusRejected.IsTerminal())
	assert.True(t, model.StatusImplemented.IsTerminal())
	assert.False(t, model.StatusApproved.IsTerminal())
	assert.False(t, model.StatusDraft.IsTerminal())
}

// TestRequestType_Prefix 测试编号前缀
func TestRequestType_Prefix(t *testing.T) {
	assert.Equal(t, "HW", model.TypeHardware.Prefix())
	assert.Equal(t, "SYS", model.TypeSystem.Prefix())
	assert.Equal(t, "CR", model.RequestType("").Prefix())
	assert.Equal(t, "CR", model.RequestType("XX").Prefix())
}

// TestSnapshot_ScalarOnly 测试快照只包含标量字段
func TestSnapshot_ScalarOnly(t *testing.T) {
	roleID := uint(3)
	user := &model.UserModel{
		ID:           7,
		Username:     "jdoe",
		PasswordHash: "secret",
		RoleID:       &roleID,
		Role:         &model.RoleModel{ID: 3, Name: "admin"},
	}
	snap := user.Snapshot()
	assert.Equal(t, "jdoe", snap["Username"])
	assert.Equal(t, uint(3), snap["RoleID"])
	assert.NotContains(t, snap, "Role")
	assert.NotContains(t, snap, "PasswordHash")

	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	hw := &model.HardwareChangeRequestModel{EquipmentName: "Radar"}
	hw.RequestNumber = "HW-202501-001"
	hw.Status = model.StatusSubmitted
	hw.PreparedAt = &now
	s := hw.Snapshot()
	assert.Equal(t, "Submitted", s["Status"])
	assert.Equal(t, "2025-01-15T10:00:00Z", s["PreparedAt"])
	assert.Nil(t, s["ApprovedAt"])
	assert.Equal(t, "Radar", s["EquipmentName"])
}

// TestValidate 测试模型校验
func TestValidate(t *testing.T) {
	hw := &model.HardwareChangeRequestModel{EquipmentName: "Radar"}
	assert.Error(t, hw.Validate())
	hw.RequesterName = "Chief Engineer"
	assert.NoError(t, hw.Validate())

	sw := &model.SoftwareChangeRequestModel{}
	sw.RequesterName = "Officer"
	assert.Error(t, sw.Validate())
	sw.AfterName = "ECDIS"
	assert.NoError(t, sw.Validate())

	cr := &model.ChangeRequestModel{}
	cr.RequesterName = "Officer"
	assert.Error(t, cr.Validate())

	a := &model.ApprovalModel{RequestKind: "ChangeRequest", RequestID: 1, Stage: 0, Action: "Approved"}
	assert.Error(t, a.Validate())
	a.Stage = 1
	assert.NoError(t, a.Validate())
}

// TestUser_IsLocked 测试账户锁定判断
func TestUser_IsLocked(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	u := &model.UserModel{LockedUntil: &until}
	assert.True(t, u.IsLocked(now))
	assert.False(t, u.IsLocked(now.Add(2*time.Minute)))
	assert.False(t, (&model.UserModel{}).IsLocked(now))
}
