package audit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mautops/shipchange-gin/internal/model"
)

const (
	// SecurityEntityType 登录日志投影后的实体类型
	SecurityEntityType = "Security"
	// SecurityIDOffset 投影记录的 ID 偏移量
	SecurityIDOffset uint = 1_000_000
)

// ProjectLoginLog 将登录日志投影为审计记录，偏移量为 SecurityIDOffset
func ProjectLoginLog(l model.LoginLogModel) model.AuditLogModel {
	return projectWithOffset(l, SecurityIDOffset)
}

// ProjectLoginLogs 批量投影
func ProjectLoginLogs(logs []*model.LoginLogModel) []*model.AuditLogModel {
	return projectAll(logs, SecurityIDOffset)
}

func projectAll(logs []*model.LoginLogModel, offset uint) []*model.AuditLogModel {
	out := make([]*model.AuditLogModel, 0, len(logs))
	for _, l := range logs {
		if l == nil {
			continue
		}
		projected := projectWithOffset(*l, offset)
		out = append(out, &projected)
	}
	return out
}

func projectWithOffset(l model.LoginLogModel, offset uint) model.AuditLogModel {
	entityID := UnknownID
	if l.UserID != nil {
		entityID = strconv.FormatUint(uint64(*l.UserID), 10)
	}

	return model.AuditLogModel{
		ID:             l.ID + offset,
		EntityType:     SecurityEntityType,
		Action:         SecurityAction(l.Action, l.IsSuccess),
		EntityID:       entityID,
		EntityName:     l.Username,
		AdditionalInfo: securityInfo(l),
		UserID:         l.UserID,
		UserName:       l.Username,
		IPAddress:      l.IPAddress,
		Timestamp:      l.Timestamp,
	}
}

// SecurityAction 组合动作与结果，例如 LOGIN_FAILED
func SecurityAction(action string, success bool) string {
	if success {
		return action + "_SUCCESS"
	}
	return action + "_FAILED"
}

// ParseSecurityAction 拆分 SecurityAction 生成的动作，例如 LOGIN_FAILED 拆为 LOGIN 与 false
func ParseSecurityAction(action string) (string, bool, bool) {
	if base, ok := strings.CutSuffix(action, "_SUCCESS"); ok && base != "" {
		return base, true, true
	}
	if base, ok := strings.CutSuffix(action, "_FAILED"); ok && base != "" {
		return base, false, true
	}
	return "", false, false
}

func securityInfo(l model.LoginLogModel) string {
	var parts []string
	if l.FailureReason != "" {
		parts = append(parts, "Reason: "+l.FailureReason)
	}
	if l.IPAddress != "" {
		parts = append(parts, "IP: "+l.IPAddress)
	}
	if l.SessionDuration != nil {
		parts = append(parts, fmt.Sprintf("Duration: %ds", *l.SessionDuration))
	}
	return strings.Join(parts, ", ")
}
