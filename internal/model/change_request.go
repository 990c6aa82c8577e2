package model

import (
	"errors"
	"strings"
	"time"
)

// Request 三类变更申请的公共行为
type Request interface {
	Base() *RequestBase
	TableName() string
	AuditKind() string
	Snapshot() map[string]interface{}
	Normalize()
	Validate() error
}

// RequestBase 变更申请公共字段
type RequestBase struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	RequestNumber   string        `gorm:"type:varchar(32);not null;uniqueIndex" json:"request_number"`
	Type            RequestType   `gorm:"type:varchar(8);not null;index" json:"type"`
	Status          RequestStatus `gorm:"not null;index" json:"status"`
	Title           string        `gorm:"type:varchar(255)" json:"title"`
	RequesterID     *uint         `gorm:"index" json:"requester_id,omitempty"`
	RequesterName   string        `gorm:"type:varchar(128);not null" json:"requester_name" validate:"required"`
	Purpose         string        `gorm:"type:text" json:"purpose"`
	Description     string        `gorm:"type:text" json:"description"`
	WorkDetail      string        `gorm:"type:text" json:"work_detail"`
	ShipID          *uint         `gorm:"index" json:"ship_id,omitempty"`
	ReviewerID      *uint         `json:"reviewer_id,omitempty"`
	ReviewComment   string        `gorm:"type:text" json:"review_comment"`
	ApproverID      *uint         `json:"approver_id,omitempty"`
	RejectionReason string        `gorm:"type:text" json:"rejection_reason"`
	CreatedAt       time.Time     `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	PreparedAt      *time.Time    `json:"prepared_at,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty"`
	ImplementedAt   *time.Time    `json:"implemented_at,omitempty"`
}

// Base 返回公共字段
func (b *RequestBase) Base() *RequestBase {
	return b
}

// baseSnapshot 公共字段的扁平快照
func (b *RequestBase) baseSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"ID":              b.ID,
		"RequestNumber":   b.RequestNumber,
		"Type":            string(b.Type),
		"Status":          b.Status.String(),
		"Title":           b.Title,
		"RequesterID":     uintValue(b.RequesterID),
		"RequesterName":   b.RequesterName,
		"Purpose":         b.Purpose,
		"Description":     b.Description,
		"WorkDetail":      b.WorkDetail,
		"ShipID":          uintValue(b.ShipID),
		"ReviewerID":      uintValue(b.ReviewerID),
		"ReviewComment":   b.ReviewComment,
		"ApproverID":      uintValue(b.ApproverID),
		"RejectionReason": b.RejectionReason,
		"CreatedAt":       timeValue(&b.CreatedAt),
		"PreparedAt":      timeValue(b.PreparedAt),
		"ReviewedAt":      timeValue(b.ReviewedAt),
		"ApprovedAt":      timeValue(b.ApprovedAt),
		"RejectedAt":      timeValue(b.RejectedAt),
		"ImplementedAt":   timeValue(b.ImplementedAt),
	}
}

// ChangeRequestModel 通用变更申请
type ChangeRequestModel struct {
	RequestBase
}

// TableName 指定表名
func (ChangeRequestModel) TableName() string {
	return "change_requests"
}

// AuditKind 审计实体类型
func (ChangeRequestModel) AuditKind() string {
	return "ChangeRequest"
}

// Snapshot 审计快照
func (m *ChangeRequestModel) Snapshot() map[string]interface{} {
	return m.baseSnapshot()
}

// Validate 验证通用变更申请
func (m *ChangeRequestModel) Validate() error {
	if m.Title == "" {
		return errors.New("title is required")
	}
	if m.RequesterName == "" {
		return errors.New("requester name is required")
	}
	return nil
}

// HardwareChangeRequestModel 硬件变更申请
type HardwareChangeRequestModel struct {
	RequestBase
	EquipmentName      string `gorm:"type:varchar(255);not null" json:"equipment_name" validate:"required"`
	Location           string `gorm:"type:varchar(255)" json:"location"`
	BeforeManufacturer string `gorm:"type:varchar(128)" json:"before_manufacturer"`
	BeforeModel        string `gorm:"type:varchar(128)" json:"before_model"`
	BeforeOS           string `gorm:"type:varchar(128)" json:"before_os"`
	AfterManufacturer  string `gorm:"type:varchar(128)" json:"after_manufacturer"`
	AfterModel         string `gorm:"type:varchar(128)" json:"after_model"`
	AfterOS            string `gorm:"type:varchar(128)" json:"after_os"`
}

// TableName 指定表名
func (HardwareChangeRequestModel) TableName() string {
	return "hardware_change_requests"
}

// AuditKind 审计实体类型
func (HardwareChangeRequestModel) AuditKind() string {
	return "HardwareChangeRequest"
}

// Snapshot 审计快照
func (m *HardwareChangeRequestModel) Snapshot() map[string]interface{} {
	s := m.baseSnapshot()
	s["EquipmentName"] = m.EquipmentName
	s["Location"] = m.Location
	s["BeforeManufacturer"] = m.BeforeManufacturer
	s["BeforeModel"] = m.BeforeModel
	s["BeforeOS"] = m.BeforeOS
	s["AfterManufacturer"] = m.AfterManufacturer
	s["AfterModel"] = m.AfterModel
	s["AfterOS"] = m.AfterOS
	return s
}

// Validate 验证硬件变更申请
func (m *HardwareChangeRequestModel) Validate() error {
	if m.RequesterName == "" {
		return errors.New("requester name is required")
	}
	if m.EquipmentName == "" {
		return errors.New("equipment name is required")
	}
	return nil
}

// SoftwareChangeRequestModel 软件变更申请
type SoftwareChangeRequestModel struct {
	RequestBase
	Reason             string `gorm:"type:text" json:"reason"`
	BeforeManufacturer string `gorm:"type:varchar(128)" json:"before_manufacturer"`
	BeforeName         string `gorm:"type:varchar(255)" json:"before_name"`
	BeforeVersion      string `gorm:"type:varchar(64)" json:"before_version"`
	AfterManufacturer  string `gorm:"type:varchar(128)" json:"after_manufacturer"`
	AfterName          string `gorm:"type:varchar(255);not null" json:"after_name" validate:"required"`
	AfterVersion       string `gorm:"type:varchar(64)" json:"after_version"`
}

// TableName 指定表名
func (SoftwareChangeRequestModel) TableName() string {
	return "software_change_requests"
}

// AuditKind 审计实体类型
func (SoftwareChangeRequestModel) AuditKind() string {
	return "SoftwareChangeRequest"
}

// Snapshot 审计快照
func (m *SoftwareChangeRequestModel) Snapshot() map[string]interface{} {
	s := m.baseSnapshot()
	s["Reason"] = m.Reason
	s["BeforeManufacturer"] = m.BeforeManufacturer
	s["BeforeName"] = m.BeforeName
	s["BeforeVersion"] = m.BeforeVersion
	s["AfterManufacturer"] = m.AfterManufacturer
	s["AfterName"] = m.AfterName
	s["AfterVersion"] = m.AfterVersion
	return s
}

// Validate 验证软件变更申请
func (m *SoftwareChangeRequestModel) Validate() error {
	if m.RequesterName == "" {
		return errors.New("requester name is required")
	}
	if m.AfterName == "" {
		return errors.New("software name is required")
	}
	return nil
}

func uintValue(v *uint) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timeValue(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// normalizeBase 去除公共文本字段首尾空白
func (b *RequestBase) normalizeBase() {
	for _, f := range []*string{&b.Title, &b.RequesterName, &b.Purpose, &b.Description, &b.WorkDetail} {
		*f = strings.TrimSpace(*f)
	}
}

// Normalize 去除首尾空白
func (m *ChangeRequestModel) Normalize() {
	m.normalizeBase()
}

// Normalize 去除首尾空白
func (m *HardwareChangeRequestModel) Normalize() {
	m.normalizeBase()
	for _, f := range []*string{&m.EquipmentName, &m.Location, &m.BeforeManufacturer, &m.BeforeModel,
		&m.BeforeOS, &m.AfterManufacturer, &m.AfterModel, &m.AfterOS} {
		*f = strings.TrimSpace(*f)
	}
}

// Normalize 去除首尾空白
func (m *SoftwareChangeRequestModel) Normalize() {
	m.normalizeBase()
	for _, f := range []*string{&m.Reason, &m.BeforeManufacturer, &m.BeforeName, &m.BeforeVersion,
		&m.AfterManufacturer, &m.AfterName, &m.AfterVersion} {
		*f = strings.TrimSpace(*f)
	}
}
