package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/service"
)

// UpdateShipRequest 修改船舶请求体
type UpdateShipRequest struct {
	Name      string `json:"name" binding:"required"`
	IMONumber string `json:"imo_number"`
}

// ShipController 船舶与设备组件控制器
type ShipController struct {
	ships      service.ShipService
	components service.ComponentService
}

// NewShipController 创建船舶控制器
func NewShipController(ships service.ShipService, components service.ComponentService) *ShipController {
	return &ShipController{ships: ships, components: components}
}

// Create 创建船舶
func (c *ShipController) Create(ctx *gin.Context) {
	var ship model.ShipModel
	if err := ctx.ShouldBindJSON(&ship); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	created, err := c.ships.Create(ctx.Request.Context(), &ship)
	if err != nil {
		respondError(ctx, err, "failed to create ship")
		return
	}
	Created(ctx, created)
}

// List 查询船舶，include_inactive=true 时包含已停用船舶
func (c *ShipController) List(ctx *gin.Context) {
	includeInactive, _ := strconv.ParseBool(ctx.DefaultQuery("include_inactive", "false"))
	ships, err := c.ships.List(ctx.Request.Context(), includeInactive)
	if err != nil {
		respondError(ctx, err, "failed to list ships")
		return
	}
	Success(ctx, ships)
}

// Get 获取船舶
func (c *ShipController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	ship, err := c.ships.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to get ship")
		return
	}
	Success(ctx, ship)
}

// Update 修改船舶
func (c *ShipController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req UpdateShipRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	ship, err := c.ships.Update(ctx.Request.Context(), id, req.Name, req.IMONumber)
	if err != nil {
		respondError(ctx, err, "failed to update ship")
		return
	}
	Success(ctx, ship)
}

// Deactivate 停用船舶
func (c *ShipController) Deactivate(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	done, err := c.ships.Deactivate(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to deactivate ship")
		return
	}
	if !done {
		Error(ctx, http.StatusNotFound, "not found", "ship does not exist or is already inactive")
		return
	}
	Success(ctx, gin.H{"id": id, "active": false})
}

// CreateComponent 为船舶登记设备组件
func (c *ShipController) CreateComponent(ctx *gin.Context) {
	shipID, ok := pathID(ctx)
	if !ok {
		return
	}
	var component model.ComponentModel
	if err := ctx.ShouldBindJSON(&component); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	component.ShipID = shipID
	created, err := c.components.Create(ctx.Request.Context(), &component)
	if err != nil {
		respondError(ctx, err, "failed to create component")
		return
	}
	Created(ctx, created)
}

// ListComponents 查询船舶的设备组件
func (c *ShipController) ListComponents(ctx *gin.Context) {
	shipID, ok := pathID(ctx)
	if !ok {
		return
	}
	components, err := c.components.ListByShip(ctx.Request.Context(), shipID)
	if err != nil {
		respondError(ctx, err, "failed to list components")
		return
	}
	Success(ctx, components)
}

// DeleteComponent 删除设备组件
func (c *ShipController) DeleteComponent(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	done, err := c.components.Purge(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to delete component")
		return
	}
	if !done {
		Error(ctx, http.StatusNotFound, "not found", "component does not exist")
		return
	}
	Success(ctx, gin.H{"id": id, "deleted": true})
}
