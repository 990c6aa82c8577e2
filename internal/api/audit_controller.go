package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/audit"
)

const (
	maxAuditLimit        = 1000
	securityOffsetHeader = "X-Security-ID-Offset"
)

// AuditLogController 审计日志查询控制器
type AuditLogController struct {
	reader *audit.Reader
}

// NewAuditLogController 创建审计日志查询控制器
func NewAuditLogController(reader *audit.Reader) *AuditLogController {
	return &AuditLogController{reader: reader}
}

// List 按条件查询审计记录，包含登录日志投影的 Security 记录
// Security 记录的 ID 为登录日志 ID 加偏移量，偏移量通过 X-Security-ID-Offset 响应头返回，
// 偏移量变化后旧的 Security ID 不再有效
func (c *AuditLogController) List(ctx *gin.Context) {
	f := audit.Filter{
		EntityType: ctx.Query("entity_type"),
		EntityID:   ctx.Query("entity_id"),
		Action:     ctx.Query("action"),
		Search:     ctx.Query("search"),
		Limit:      200,
	}

	if raw := ctx.Query("user_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid user_id", err.Error())
			return
		}
		id := uint(v)
		f.UserID = &id
	}
	for name, target := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := ctx.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid "+name, "expected RFC3339 timestamp")
			return
		}
		*target = &t
	}
	if raw := ctx.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			Error(ctx, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		f.Limit = min(limit, maxAuditLimit)
	}

	logs, err := c.reader.GetFiltered(ctx.Request.Context(), f)
	if err != nil {
		respondError(ctx, err, "failed to query audit logs")
		return
	}
	if offset, err := c.reader.SecurityOffset(ctx.Request.Context()); err == nil {
		ctx.Header(securityOffsetHeader, strconv.FormatUint(uint64(offset), 10))
	}
	Success(ctx, logs)
}

// ForEntity 查询单个实体的审计记录
func (c *AuditLogController) ForEntity(ctx *gin.Context) {
	logs, err := c.reader.GetByEntity(ctx.Request.Context(), ctx.Param("type"), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "failed to query audit logs")
		return
	}
	Success(ctx, logs)
}

// EntityTypes 返回实体类型列表
func (c *AuditLogController) EntityTypes(ctx *gin.Context) {
	types, err := c.reader.GetDistinctEntityTypes(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "failed to query entity types")
		return
	}
	Success(ctx, types)
}

// Actions 返回动作列表
func (c *AuditLogController) Actions(ctx *gin.Context) {
	actions, err := c.reader.GetDistinctActions(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "failed to query actions")
		return
	}
	Success(ctx, actions)
}
