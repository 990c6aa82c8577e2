package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 审计动作
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
)

// AuditLogModel 审计日志数据模型
type AuditLogModel struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	EntityType     string         `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	Action         string         `gorm:"type:varchar(64);not null;index" json:"action"`
	EntityID       string         `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	EntityName     string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	OldValues      datatypes.JSON `json:"old_values,omitempty"`
	NewValues      datatypes.JSON `json:"new_values,omitempty"`
	AdditionalInfo string         `gorm:"type:text" json:"additional_info,omitempty"`
	UserID         *uint          `gorm:"index" json:"user_id,omitempty"`
	UserName       string         `gorm:"type:varchar(128)" json:"user_name"`
	IPAddress      string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	Timestamp      time.Time      `gorm:"not null;index" json:"timestamp"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (m *AuditLogModel) Validate() error {
	if m.EntityType == "" {
		return errors.New("entity type is required")
	}
	if m.Action == "" {
		return errors.New("action is required")
	}
	if m.EntityID == "" {
		return errors.New("entity ID is required")
	}
	return nil
}
