package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/database"
	"gorm.io/gorm"
)

// ReadinessProbe 就绪检查项
type ReadinessProbe interface {
	Done() bool
}

// HealthController 健康检查控制器
type HealthController struct {
	db        *gorm.DB
	bootstrap ReadinessProbe
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, bootstrap ReadinessProbe) *HealthController {
	return &HealthController{
		db:        db,
		bootstrap: bootstrap,
	}
}

// Check 存活检查，数据库不可达时返回 503
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	if err := database.CheckHealth(ctx.Request.Context(), c.db); err != nil {
		status = "unhealthy"
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// Ready 就绪检查，默认管理员初始化完成前返回 503
func (c *HealthController) Ready(ctx *gin.Context) {
	if c.bootstrap != nil && !c.bootstrap.Done() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	if err := database.CheckHealth(ctx.Request.Context(), c.db); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "detail": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
