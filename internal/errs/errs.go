package errs

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 引用的记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition 当前状态不允许该操作
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrForbidden 缺少操作权限
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized 认证失败
	ErrUnauthorized = errors.New("invalid username or password")
	// ErrAccountLocked 账户已锁定
	ErrAccountLocked = errors.New("account is locked")
)

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 输入校验失败，调用方需修正输入
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError 创建单字段校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError 唯一性冲突
type ConflictError struct {
	Resource string
	Message  string
	Err      error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s conflict: %s: %v", e.Resource, e.Message, e.Err)
	}
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// AuditWriteError 主写入与兜底写入均失败
type AuditWriteError struct {
	EntityType string
	Action     string
	EntityID   string
	Primary    error
	Fallback   error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write failed for %s %s %s: primary: %v; fallback: %v",
		e.EntityType, e.Action, e.EntityID, e.Primary, e.Fallback)
}

func (e *AuditWriteError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict 判断是否为冲突错误
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsDuplicateKey 判断是否为数据库唯一索引冲突
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
