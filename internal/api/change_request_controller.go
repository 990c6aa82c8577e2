package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBatchSize    = 100
)

// TransitionRequest 状态流转请求体
type TransitionRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// BatchApproveRequest 批量审批请求体
type BatchApproveRequest struct {
	IDs     []uint `json:"ids" binding:"required,min=1"`
	Comment string `json:"comment"`
}

// RequestController 变更申请控制器，三类申请共用
type RequestController[T any, PT repository.RequestPtr[T]] struct {
	svc *service.RequestService[T, PT]
}

// NewRequestController 创建变更申请控制器
func NewRequestController[T any, PT repository.RequestPtr[T]](svc *service.RequestService[T, PT]) *RequestController[T, PT] {
	return &RequestController[T, PT]{svc: svc}
}

// Register 注册路由
func (c *RequestController[T, PT]) Register(group *gin.RouterGroup, deleteGuard gin.HandlerFunc) {
	group.POST("", c.Create)
	group.GET("", c.List)
	group.POST("/batch/approve", c.BatchApprove)
	group.GET("/:id", c.Get)
	group.PUT("/:id", c.Update)
	group.DELETE("/:id", deleteGuard, c.Delete)
	group.GET("/:id/approvals", c.Approvals)
	group.POST("/:id/submit", c.Submit)
	group.POST("/:id/review", c.Review)
	group.POST("/:id/approve", c.Approve)
	group.POST("/:id/reject", c.Reject)
	group.POST("/:id/implement", c.Implement)
}

// Create 创建草稿申请
func (c *RequestController[T, PT]) Create(ctx *gin.Context) {
	req := PT(new(T))
	if err := ctx.ShouldBindJSON(req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	base := req.Base()
	if actor, ok := auth.ActorFromContext(ctx.Request.Context()); ok && base.RequesterID == nil {
		base.RequesterID = actor.UserID
	}
	// 编号总是由服务端分配
	base.RequestNumber = ""

	created, err := c.svc.Create(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err, "failed to create request")
		return
	}
	Created(ctx, created)
}

// List 分页查询申请
func (c *RequestController[T, PT]) List(ctx *gin.Context) {
	filter, page, pageSize, err := parseRequestFilter(ctx)
	if err != nil {
		ValidationFailed(ctx, err)
		return
	}

	items, total, lerr := c.svc.List(ctx.Request.Context(), filter)
	if lerr != nil {
		respondError(ctx, lerr, "failed to list requests")
		return
	}
	Paginated(ctx, items, newPagination(page, pageSize, total))
}

// Get 获取申请详情
func (c *RequestController[T, PT]) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	req, err := c.svc.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to get request")
		return
	}
	Success(ctx, req)
}

// Update 修改草稿申请，仅覆盖请求体中出现的字段
func (c *RequestController[T, PT]) Update(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	body, err := ctx.GetRawData()
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := json.Unmarshal(body, PT(new(T))); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	updated, err := c.svc.Update(ctx.Request.Context(), id, func(current PT) {
		_ = json.Unmarshal(body, current)
	})
	if err != nil {
		respondError(ctx, err, "failed to update request")
		return
	}
	Success(ctx, updated)
}

// Delete 删除申请及其审批台账
func (c *RequestController[T, PT]) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	deleted, err := c.svc.Delete(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to delete request")
		return
	}
	if !deleted {
		c.explainRefusal(ctx, id)
		return
	}
	Success(ctx, gin.H{"id": id, "deleted": true})
}

// Approvals 获取申请的审批台账
func (c *RequestController[T, PT]) Approvals(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	if _, err := c.svc.Get(ctx.Request.Context(), id); err != nil {
		respondError(ctx, err, "failed to get request")
		return
	}
	approvals, err := c.svc.GetApprovals(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to get approvals")
		return
	}
	Success(ctx, approvals)
}

// Submit 提交审批
func (c *RequestController[T, PT]) Submit(ctx *gin.Context) {
	c.transit(ctx, func(id, actorID uint, _ TransitionRequest) (bool, error) {
		return c.svc.SubmitForApproval(ctx.Request.Context(), id, actorID)
	})
}

// Review 开始审查
func (c *RequestController[T, PT]) Review(ctx *gin.Context) {
	c.transit(ctx, func(id, actorID uint, body TransitionRequest) (bool, error) {
		return c.svc.Review(ctx.Request.Context(), id, actorID, body.Comment)
	})
}

// Approve 批准
func (c *RequestController[T, PT]) Approve(ctx *gin.Context) {
	c.transit(ctx, func(id, actorID uint, body TransitionRequest) (bool, error) {
		return c.svc.Approve(ctx.Request.Context(), id, actorID, body.Comment)
	})
}

// Reject 驳回，必须填写原因
func (c *RequestController[T, PT]) Reject(ctx *gin.Context) {
	c.transit(ctx, func(id, actorID uint, body TransitionRequest) (bool, error) {
		reason := body.Reason
		if strings.TrimSpace(reason) == "" {
			reason = body.Comment
		}
		return c.svc.Reject(ctx.Request.Context(), id, actorID, reason)
	})
}

// Implement 标记已实施
func (c *RequestController[T, PT]) Implement(ctx *gin.Context) {
	c.transit(ctx, func(id, actorID uint, _ TransitionRequest) (bool, error) {
		return c.svc.Implement(ctx.Request.Context(), id, actorID)
	})
}

// BatchApprove 批量批准
func (c *RequestController[T, PT]) BatchApprove(ctx *gin.Context) {
	var body BatchApproveRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if len(body.IDs) > maxBatchSize {
		ValidationFailed(ctx, errs.NewValidationError("ids", "at most "+strconv.Itoa(maxBatchSize)+" ids per batch"))
		return
	}

	results, err := c.svc.BatchApprove(ctx.Request.Context(), body.IDs, actorID(ctx), body.Comment)
	if err != nil {
		respondError(ctx, err, "batch approve failed")
		return
	}
	Success(ctx, results)
}

// transit 执行状态流转并返回最新的申请
func (c *RequestController[T, PT]) transit(ctx *gin.Context, fn func(id, actorID uint, body TransitionRequest) (bool, error)) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var body TransitionRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&body); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}

	done, err := fn(id, actorID(ctx), body)
	if err != nil {
		respondError(ctx, err, "status transition failed")
		return
	}
	if !done {
		c.explainRefusal(ctx, id)
		return
	}

	req, err := c.svc.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to get request")
		return
	}
	Success(ctx, req)
}

// explainRefusal 区分申请不存在与状态不允许
func (c *RequestController[T, PT]) explainRefusal(ctx *gin.Context, id uint) {
	req, err := c.svc.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to get request")
		return
	}
	Error(ctx, http.StatusConflict, "invalid status transition",
		"operation not allowed while request is "+req.Base().Status.String())
}

// parseRequestFilter 解析列表查询参数
func parseRequestFilter(ctx *gin.Context) (*repository.RequestFilter, int, int, *errs.ValidationError) {
	page, err := queryInt(ctx, "page", 1)
	if err != nil || page < 1 {
		return nil, 0, 0, errs.NewValidationError("page", "must be a positive integer")
	}
	pageSize, err := queryInt(ctx, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 {
		return nil, 0, 0, errs.NewValidationError("page_size", "must be a positive integer")
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	filter := &repository.RequestFilter{
		Search:    ctx.Query("search"),
		SortBy:    ctx.Query("sort_by"),
		SortOrder: ctx.Query("order"),
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
	}
	if raw := ctx.Query("status"); raw != "" {
		status, ok := model.ParseRequestStatus(raw)
		if !ok {
			if n, err := strconv.Atoi(raw); err == nil && model.RequestStatus(n).IsValid() {
				status, ok = model.RequestStatus(n), true
			}
		}
		if !ok {
			return nil, 0, 0, errs.NewValidationError("status", "unknown status "+raw)
		}
		filter.Status = &status
	}
	for name, target := range map[string]**uint{"requester_id": &filter.RequesterID, "ship_id": &filter.ShipID} {
		raw := ctx.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, 0, 0, errs.NewValidationError(name, "must be a positive integer")
		}
		id := uint(v)
		*target = &id
	}
	return filter, page, pageSize, nil
}

// pathID 解析路径中的 ID，失败时直接写入 400 响应
func pathID(ctx *gin.Context) (uint, bool) {
	v, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || v == 0 {
		Error(ctx, http.StatusBadRequest, "invalid id", "id must be a positive integer")
		return 0, false
	}
	return uint(v), true
}

func queryInt(ctx *gin.Context, name string, def int) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}

// actorID 当前操作人的本地用户 ID，外部身份没有本地账号时为 0
func actorID(ctx *gin.Context) uint {
	actor, ok := auth.ActorFromContext(ctx.Request.Context())
	if !ok || actor.UserID == nil {
		return 0
	}
	return *actor.UserID
}
