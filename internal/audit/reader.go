package audit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
)

// Filter 审计查询条件，零值字段表示不过滤
type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     *uint
	From       *time.Time
	To         *time.Time
	Search     string
	Limit      int
}

// Reader 审计查询，合并登录日志投影出的 Security 记录
type Reader struct {
	audits repository.AuditLogRepository
	logins repository.LoginLogRepository
}

// NewReader 创建审计查询
func NewReader(audits repository.AuditLogRepository, logins repository.LoginLogRepository) *Reader {
	return &Reader{audits: audits, logins: logins}
}

// GetAll 返回全部审计记录
func (r *Reader) GetAll(ctx context.Context) ([]*model.AuditLogModel, error) {
	return r.GetFiltered(ctx, Filter{})
}

// GetByEntityType 按实体类型查询
func (r *Reader) GetByEntityType(ctx context.Context, entityType string) ([]*model.AuditLogModel, error) {
	return r.GetFiltered(ctx, Filter{EntityType: entityType})
}

// GetByAction 按动作查询
func (r *Reader) GetByAction(ctx context.Context, action string) ([]*model.AuditLogModel, error) {
	return r.GetFiltered(ctx, Filter{Action: action})
}

// GetByUser 按操作人查询
func (r *Reader) GetByUser(ctx context.Context, userID uint) ([]*model.AuditLogModel, error) {
	return r.GetFiltered(ctx, Filter{UserID: &userID})
}

// GetByDateRange 按时间范围查询（闭区间）
func (r *Reader) GetByDateRange(ctx context.Context, from, to time.Time) ([]*model.AuditLogModel, error) {
	return r.GetFiltered(ctx, Filter{From: &from, To: &to})
}

// GetByEntity 查询单个实体的审计记录
func (r *Reader) GetByEntity(ctx context.Context, entityType, entityID string) ([]*model.AuditLogModel, error) {
	return r.GetFiltered(ctx, Filter{EntityType: entityType, EntityID: entityID})
}

// GetFiltered 组合条件查询，结果按时间倒序
func (r *Reader) GetFiltered(ctx context.Context, f Filter) ([]*model.AuditLogModel, error) {
	includeSecurity := f.EntityType == "" || f.EntityType == SecurityEntityType
	securityOnly := f.EntityType == SecurityEntityType

	var result []*model.AuditLogModel
	var maxAuditID uint
	if !securityOnly {
		rows, err := r.audits.FindByFilter(ctx, &repository.AuditLogFilter{
			EntityType: f.EntityType,
			EntityID:   f.EntityID,
			Action:     f.Action,
			UserID:     f.UserID,
			From:       f.From,
			To:         f.To,
			Search:     f.Search,
			Limit:      f.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query audit logs: %w", err)
		}
		result = rows
	}

	if includeSecurity && r.logins != nil {
		if loginFilter, ok := securityLoginFilter(f); ok {
			var err error
			maxAuditID, err = r.audits.MaxID(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to query audit log ids: %w", err)
			}
			logins, err := r.logins.FindByFilter(ctx, loginFilter)
			if err != nil {
				return nil, fmt.Errorf("failed to query login logs: %w", err)
			}
			result = append(result, projectAll(logins, securityOffset(maxAuditID))...)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID > result[j].ID
		}
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// GetDistinctEntityTypes 返回实体类型列表，总是包含 Security
func (r *Reader) GetDistinctEntityTypes(ctx context.Context) ([]string, error) {
	types, err := r.audits.DistinctEntityTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity types: %w", err)
	}
	return mergeSorted(types, SecurityEntityType), nil
}

// GetDistinctActions 返回动作列表，包含已出现的 Security 动作
func (r *Reader) GetDistinctActions(ctx context.Context) ([]string, error) {
	actions, err := r.audits.DistinctActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	if r.logins == nil {
		return actions, nil
	}

	outcomes, err := r.logins.DistinctOutcomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query login outcomes: %w", err)
	}
	extra := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		extra = append(extra, SecurityAction(o.Action, o.IsSuccess))
	}
	return mergeSorted(actions, extra...), nil
}

// SecurityOffset 返回当前投影使用的 ID 偏移量
// 真实审计 ID 越过当前区间后偏移量会整体后移，投影 ID 只在同一偏移量下保持稳定
func (r *Reader) SecurityOffset(ctx context.Context) (uint, error) {
	maxAuditID, err := r.audits.MaxID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query audit log ids: %w", err)
	}
	return securityOffset(maxAuditID), nil
}

// securityOffset 返回不与真实审计 ID 冲突的偏移量，至少为 SecurityIDOffset
func securityOffset(maxAuditID uint) uint {
	if maxAuditID < SecurityIDOffset {
		return SecurityIDOffset
	}
	return (maxAuditID/SecurityIDOffset + 1) * SecurityIDOffset
}

// securityLoginFilter 将审计条件转换为登录日志条件，条件不可能命中投影记录时返回 false
func securityLoginFilter(f Filter) (*repository.LoginLogFilter, bool) {
	lf := &repository.LoginLogFilter{
		UserID: f.UserID,
		From:   f.From,
		To:     f.To,
		Search: f.Search,
		Limit:  f.Limit,
	}
	if f.Action != "" {
		action, success, ok := ParseSecurityAction(f.Action)
		if !ok {
			return nil, false
		}
		lf.Action = action
		lf.IsSuccess = &success
	}

	switch f.EntityID {
	case "":
	case UnknownID:
		if f.UserID != nil {
			return nil, false
		}
		lf.WithoutUser = true
	default:
		v, err := strconv.ParseUint(f.EntityID, 10, 64)
		if err != nil {
			return nil, false
		}
		id := uint(v)
		if f.UserID != nil && *f.UserID != id {
			return nil, false
		}
		lf.UserID = &id
	}
	return lf, true
}

func mergeSorted(base []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range append(append([]string{}, base...), extra...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
