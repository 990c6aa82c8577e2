package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/service"
)

// LoginRequest 登录请求体
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest 修改密码请求体
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// AuthController 本地账户认证控制器
type AuthController struct {
	auth   service.AuthService
	logins service.LoginLogService
	now    func() time.Time
}

// NewAuthController 创建认证控制器
func NewAuthController(authService service.AuthService, logins service.LoginLogService) *AuthController {
	return &AuthController{auth: authService, logins: logins, now: time.Now}
}

// Login 用户名密码登录并签发 Token
func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := c.auth.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(ctx, err, "login failed")
		return
	}
	Success(ctx, result)
}

// Logout 记录登出，时长按最近一次登录计算
func (c *AuthController) Logout(ctx *gin.Context) {
	user, err := c.auth.CurrentUser(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "logout failed")
		return
	}
	var duration time.Duration
	if user.LastLoginAt != nil {
		duration = c.now().Sub(*user.LastLoginAt)
	}
	if err := c.logins.LogLogout(ctx.Request.Context(), &user.ID, user.Username, duration); err != nil {
		respondError(ctx, err, "logout failed")
		return
	}
	Success(ctx, gin.H{"logged_out": true})
}

// Me 返回当前用户
func (c *AuthController) Me(ctx *gin.Context) {
	user, err := c.auth.CurrentUser(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "failed to get current user")
		return
	}
	Success(ctx, user)
}

// ChangePassword 修改当前用户密码
func (c *AuthController) ChangePassword(ctx *gin.Context) {
	var req ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	user, err := c.auth.CurrentUser(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "failed to change password")
		return
	}
	if err := c.auth.ChangePassword(ctx.Request.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		respondError(ctx, err, "failed to change password")
		return
	}
	Success(ctx, gin.H{"changed": true})
}

// Unlock 管理员解除账户锁定
func (c *AuthController) Unlock(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	if err := c.auth.Unlock(ctx.Request.Context(), id); err != nil {
		respondError(ctx, err, "failed to unlock user")
		return
	}
	Success(ctx, gin.H{"id": id, "unlocked": true})
}

// FailedLogins 查询最近的登录失败记录
func (c *AuthController) FailedLogins(ctx *gin.Context) {
	since := c.now().Add(-24 * time.Hour)
	if raw := ctx.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ValidationFailed(ctx, errs.NewValidationError("since", "expected RFC3339 timestamp"))
			return
		}
		since = t
	}
	limit, err := queryInt(ctx, "limit", 100)
	if err != nil {
		ValidationFailed(ctx, errs.NewValidationError("limit", err.Error()))
		return
	}

	logs, err := c.logins.GetFailedLogins(ctx.Request.Context(), since, limit)
	if err != nil {
		respondError(ctx, err, "failed to query login logs")
		return
	}
	Success(ctx, logs)
}

// SecurityEvents 查询安全事件
func (c *AuthController) SecurityEvents(ctx *gin.Context) {
	limit, err := queryInt(ctx, "limit", 100)
	if err != nil {
		ValidationFailed(ctx, errs.NewValidationError("limit", err.Error()))
		return
	}
	logs, err := c.logins.GetSecurityEvents(ctx.Request.Context(), limit)
	if err != nil {
		respondError(ctx, err, "failed to query security events")
		return
	}
	Success(ctx, logs)
}

// UserLogins 查询指定用户的登录记录
func (c *AuthController) UserLogins(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "100"))
	if err != nil {
		ValidationFailed(ctx, errs.NewValidationError("limit", "must be an integer"))
		return
	}
	logs, err := c.logins.GetByUser(ctx.Request.Context(), id, limit)
	if err != nil {
		respondError(ctx, err, "failed to query login logs")
		return
	}
	Success(ctx, logs)
}
