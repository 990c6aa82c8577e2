package model

import (
	"errors"
	"time"
)

// 审批台账动作
const (
	ApprovalActionSubmitted   = "Submitted"
	ApprovalActionUnderReview = "Under Review"
	ApprovalActionApproved    = "Approved"
	ApprovalActionRejected    = "Rejected"
	ApprovalActionImplemented = "Implemented"
)

// ApprovalModel 审批台账条目，只追加不修改
type ApprovalModel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequestKind string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_approvals_request_stage,priority:1" json:"request_kind"`
	RequestID   uint      `gorm:"not null;uniqueIndex:idx_approvals_request_stage,priority:2" json:"request_id"`
	Stage       int       `gorm:"not null;uniqueIndex:idx_approvals_request_stage,priority:3" json:"stage"`
	Action      string    `gorm:"type:varchar(32);not null" json:"action"`
	ActorID     *uint     `gorm:"index" json:"actor_id,omitempty"`
	Comment     string    `gorm:"type:text" json:"comment"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (ApprovalModel) TableName() string {
	return "approvals"
}

// Validate 验证台账条目
func (m *ApprovalModel) Validate() error {
	if m.RequestKind == "" {
		return errors.New("request kind is required")
	}
	if m.RequestID == 0 {
		return errors.New("request ID is required")
	}
	if m.Stage < 1 {
		return errors.New("stage must be positive")
	}
	if m.Action == "" {
		return errors.New("approval action is required")
	}
	return nil
}
