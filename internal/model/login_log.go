package model

import (
	"errors"
	"time"
)

// 登录日志动作
const (
	LoginActionLogin           = "LOGIN"
	LoginActionLogout          = "LOGOUT"
	LoginActionPasswordChange  = "PASSWORD_CHANGE"
	LoginActionAccountLocked   = "ACCOUNT_LOCKED"
	LoginActionAccountUnlocked = "ACCOUNT_UNLOCKED"
	LoginActionSecurityEvent   = "SECURITY_EVENT"
)

// LoginLogModel 认证相关事件日志
type LoginLogModel struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          *uint     `gorm:"index" json:"user_id,omitempty"`
	Username        string    `gorm:"type:varchar(128);index" json:"username"`
	Action          string    `gorm:"type:varchar(32);not null;index" json:"action"`
	IsSuccess       bool      `json:"is_success"`
	FailureReason   string    `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	IPAddress       string    `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent       string    `gorm:"type:text" json:"user_agent,omitempty"`
	SessionDuration *int64    `json:"session_duration,omitempty"` // 秒
	IsSecurityEvent bool      `gorm:"index" json:"is_security_event"`
	Timestamp       time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName 指定表名
func (LoginLogModel) TableName() string {
	return "login_logs"
}

// Validate 验证登录日志
func (m *LoginLogModel) Validate() error {
	if m.Action == "" {
		return errors.New("action is required")
	}
	return nil
}
