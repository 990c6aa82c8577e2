package model

import "strings"

// RequestStatus 变更申请状态
type RequestStatus int

const (
	StatusDraft RequestStatus = iota + 1
	StatusSubmitted
	StatusUnderReview
	StatusApproved
	StatusRejected
	StatusImplemented
)

var statusNames = map[RequestStatus]string{
	StatusDraft:       "Draft",
	StatusSubmitted:   "Submitted",
	StatusUnderReview: "Under Review",
	StatusApproved:    "Approved",
	StatusRejected:    "Rejected",
	StatusImplemented: "Implemented",
}

// String 返回状态显示名称
func (s RequestStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsValid 判断状态值是否合法
func (s RequestStatus) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal 判断是否为终态
func (s RequestStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusImplemented
}

// ParseRequestStatus 解析状态名称（忽略大小写与空格）
func ParseRequestStatus(name string) (RequestStatus, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "")
	for status, display := range statusNames {
		if strings.ReplaceAll(strings.ToLower(display), " ", "") == normalized {
			return status, true
		}
	}
	return 0, false
}

// RequestType 变更申请类型，决定申请编号前缀
type RequestType string

const (
	TypeHardware   RequestType = "HW"
	TypeSoftware   RequestType = "SW"
	TypeSystemPlan RequestType = "SP"
	TypeService    RequestType = "SER"
	TypeSystem     RequestType = "SYS"
	TypeGeneric    RequestType = "CR"
)

// Prefix 返回申请编号前缀，未知类型使用 CR
func (t RequestType) Prefix() string {
	switch t {
	case TypeHardware, TypeSoftware, TypeSystemPlan, TypeService, TypeSystem:
		return string(t)
	default:
		return string(TypeGeneric)
	}
}
