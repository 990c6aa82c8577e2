package model

import (
	"errors"
	"time"
)

// RoleAdmin 管理员角色名称
const RoleAdmin = "admin"

// RoleModel 角色
type RoleModel struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:varchar(255)" json:"description"`
}

// TableName 指定表名
func (RoleModel) TableName() string {
	return "roles"
}

// AuditKind 审计实体类型
func (RoleModel) AuditKind() string {
	return "Role"
}

// Snapshot 审计快照
func (m *RoleModel) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ID":          m.ID,
		"Name":        m.Name,
		"Description": m.Description,
	}
}

// UserModel 用户
type UserModel struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"username"`
	FullName         string     `gorm:"type:varchar(255)" json:"full_name"`
	Email            string     `gorm:"type:varchar(255)" json:"email"`
	PasswordHash     string     `gorm:"type:varchar(255);not null" json:"-"`
	RoleID           *uint      `gorm:"index" json:"role_id,omitempty"`
	Role             *RoleModel `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	IsActive         bool       `gorm:"not null" json:"is_active"`
	FailedLoginCount int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// AuditKind 审计实体类型
func (UserModel) AuditKind() string {
	return "User"
}

// Snapshot 审计快照，不包含密码和关联角色
func (m *UserModel) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ID":          m.ID,
		"Username":    m.Username,
		"FullName":    m.FullName,
		"Email":       m.Email,
		"RoleID":      uintValue(m.RoleID),
		"IsActive":    m.IsActive,
		"LockedUntil": timeValue(m.LockedUntil),
	}
}

// RoleName 返回角色名称
func (m *UserModel) RoleName() string {
	if m.Role == nil {
		return ""
	}
	return m.Role.Name
}

// IsLocked 判断账户在 now 时刻是否锁定
func (m *UserModel) IsLocked(now time.Time) bool {
	return m.LockedUntil != nil && now.Before(*m.LockedUntil)
}

// Validate 验证用户
func (m *UserModel) Validate() error {
	if m.Username == "" {
		return errors.New("username is required")
	}
	if m.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}
