package model

import (
	"errors"
	"time"
)

// ShipModel 船舶，删除采用停用方式
type ShipModel struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	HullNumber string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"hull_number" validate:"required"`
	IMONumber  string    `gorm:"type:varchar(16)" json:"imo_number"`
	IsActive   bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ShipModel) TableName() string {
	return "ships"
}

// AuditKind 审计实体类型
func (ShipModel) AuditKind() string {
	return "Ship"
}

// Snapshot 审计快照
func (m *ShipModel) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ID":         m.ID,
		"Name":       m.Name,
		"HullNumber": m.HullNumber,
		"IMONumber":  m.IMONumber,
		"IsActive":   m.IsActive,
	}
}

// Validate 验证船舶
func (m *ShipModel) Validate() error {
	if m.Name == "" {
		return errors.New("ship name is required")
	}
	if m.HullNumber == "" {
		return errors.New("hull number is required")
	}
	return nil
}

// ComponentModel 船舶设备组件，删除采用物理删除
type ComponentModel struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ShipID       uint      `gorm:"not null;index" json:"ship_id" validate:"required"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Manufacturer string    `gorm:"type:varchar(128)" json:"manufacturer"`
	Model        string    `gorm:"type:varchar(128)" json:"model"`
	SerialNumber string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"serial_number" validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (ComponentModel) TableName() string {
	return "components"
}

// AuditKind 审计实体类型
func (ComponentModel) AuditKind() string {
	return "Component"
}

// Snapshot 审计快照
func (m *ComponentModel) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ID":           m.ID,
		"ShipID":       m.ShipID,
		"Name":         m.Name,
		"Manufacturer": m.Manufacturer,
		"Model":        m.Model,
		"SerialNumber": m.SerialNumber,
	}
}
