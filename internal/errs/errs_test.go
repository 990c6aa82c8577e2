package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// TestValidationError 测试校验错误
func TestValidationError(t *testing.T) {
	err := fmt.Errorf("create: %w", errs.NewValidationError("RequesterName", "is required"))
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "RequesterName: is required")
	assert.False(t, errs.IsConflict(err))
}

// TestConflictError 测试冲突错误
func TestConflictError(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: components.serial_number")
	err := &errs.ConflictError{Resource: "component", Message: "serial number already exists", Err: cause}
	assert.True(t, errs.IsConflict(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "serial number already exists")
}

// TestAuditWriteError 测试审计写入错误保留两个原因
func TestAuditWriteError(t *testing.T) {
	primary := errors.New("disk full")
	fallback := errors.New("connection reset")
	err := &errs.AuditWriteError{EntityType: "Ship", Action: "CREATE", EntityID: "1", Primary: primary, Fallback: fallback}
	assert.ErrorIs(t, err, primary)
	assert.ErrorIs(t, err, fallback)
}

// TestIsDuplicateKey 测试唯一索引冲突识别
func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, errs.IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, errs.IsDuplicateKey(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, errs.IsDuplicateKey(errors.New("UNIQUE constraint failed: change_requests.request_number")))
	assert.True(t, errs.IsDuplicateKey(errors.New(`ERROR: duplicate key value violates unique constraint "idx" (SQLSTATE 23505)`)))
	assert.False(t, errs.IsDuplicateKey(errors.New("connection refused")))
	assert.False(t, errs.IsDuplicateKey(nil))
}
