package handler

import (
	"fmt"
	"strconv"
	"time"

	"uapoints/internal/model"
	"uapoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 管理端：等级配置
// ============================================================

// TierRequest 等级配置请求
type TierRequest struct {
	Slug                string  `json:"slug" binding:"required"`
	Name                string  `json:"name" binding:"required"`
	Priority            int     `json:"priority"`
	Permissions         int64   `json:"permissions"`
	MaxClients          int     `json:"max_clients"`
	PointsMultiplier    float64 `json:"points_multiplier"`
	IsPermanent         bool    `json:"is_permanent"`
	DefaultDurationDays int     `json:"default_duration_days"`
	IsActive            *bool   `json:"is_active"`
	IsDefault           bool    `json:"is_default"`
}

func (r *TierRequest) toModel(id int64) *model.Tier {
	isActive := true
	if r.IsActive != nil {
		isActive = *r.IsActive
	}
	multiplier := r.PointsMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	return &model.Tier{
		ID:                  id,
		Slug:                r.Slug,
		Name:                r.Name,
		Priority:            r.Priority,
		Permissions:         r.Permissions,
		MaxClients:          r.MaxClients,
		PointsMultiplier:    multiplier,
		IsPermanent:         r.IsPermanent,
		DefaultDurationDays: r.DefaultDurationDays,
		IsActive:            isActive,
		IsDefault:           r.IsDefault,
	}
}

// CreateTier 新建等级
// POST /api/v1/admin/tiers
func (h *Handler) CreateTier(c *gin.Context) {
	var req TierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	tier := req.toModel(0)
	if err := h.adminService.CreateTier(c.Request.Context(), tier); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, tier)
}

// UpdateTier 更新等级配置
// PUT /api/v1/admin/tiers/:id
func (h *Handler) UpdateTier(c *gin.Context) {
	tierID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tierID <= 0 {
		response.ParamError(c, "id 参数错误")
		return
	}

	var req TierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	tier := req.toModel(tierID)
	if err := h.adminService.UpdateTier(c.Request.Context(), tier); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, tier)
}

// DeactivateTier 停用等级
// POST /api/v1/admin/tiers/:id/deactivate
func (h *Handler) DeactivateTier(c *gin.Context) {
	tierID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tierID <= 0 {
		response.ParamError(c, "id 参数错误")
		return
	}

	if err := h.adminService.DeactivateTier(c.Request.Context(), tierID); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "等级已停用"})
}

// ListTiers 等级列表
// GET /api/v1/admin/tiers
func (h *Handler) ListTiers(c *gin.Context) {
	tiers, err := h.adminService.ListTiers(c.Request.Context())
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"list": tiers})
}

// ============================================================
// 管理端：等级授予
// ============================================================

// GrantTierRequest 授予等级请求
type GrantTierRequest struct {
	UserID       int64 `json:"user_id" binding:"required"`
	TierID       int64 `json:"tier_id" binding:"required"`
	DurationDays int   `json:"duration_days"`
}

// GrantTier 给用户授予等级
// POST /api/v1/admin/grants
func (h *Handler) GrantTier(c *gin.Context) {
	var req GrantTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.adminService.GrantTier(c.Request.Context(), req.UserID, req.TierID, req.DurationDays); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "授予成功"})
}

// RevokeTierGrant 撤销等级授予
// DELETE /api/v1/admin/grants/:id?user_id=xxx
func (h *Handler) RevokeTierGrant(c *gin.Context) {
	grantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || grantID <= 0 {
		response.ParamError(c, "id 参数错误")
		return
	}
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	if err := h.adminService.RevokeTierGrant(c.Request.Context(), userID, grantID); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "已撤销"})
}

// ListTierGrants 查询用户的等级授予记录
// GET /api/v1/admin/grants?user_id=xxx
func (h *Handler) ListTierGrants(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	grants, err := h.adminService.ListTierGrants(c.Request.Context(), userID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"list": grants})
}

// ============================================================
// 管理端：商品配置
// ============================================================

// ItemRequest 商品配置请求
type ItemRequest struct {
	Name             string `json:"name" binding:"required"`
	PointsCost       int64  `json:"points_cost" binding:"required"`
	Stock            int64  `json:"stock"`
	MaxPerUser       int64  `json:"max_per_user"`
	RequiresShipping bool   `json:"requires_shipping"`
	Category         string `json:"category"`
	AutoActionDays   int    `json:"auto_action_days"`
	AutoActionTierID int64  `json:"auto_action_tier_id"`
	IsActive         *bool  `json:"is_active"`
}

func (r *ItemRequest) toModel(id int64) *model.RedeemableItem {
	isActive := true
	if r.IsActive != nil {
		isActive = *r.IsActive
	}
	stock := r.Stock
	if stock == 0 {
		stock = model.StockUnlimited
	}
	maxPerUser := r.MaxPerUser
	if maxPerUser == 0 {
		maxPerUser = model.MaxPerUserUnlimited
	}
	return &model.RedeemableItem{
		ID:               id,
		Name:             r.Name,
		PointsCost:       r.PointsCost,
		Stock:            stock,
		MaxPerUser:       maxPerUser,
		RequiresShipping: r.RequiresShipping,
		Category:         r.Category,
		AutoActionDays:   r.AutoActionDays,
		AutoActionTierID: r.AutoActionTierID,
		IsActive:         isActive,
	}
}

// CreateItem 新建兑换商品
// POST /api/v1/admin/items
func (h *Handler) CreateItem(c *gin.Context) {
	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	item := req.toModel(0)
	if err := h.adminService.CreateItem(c.Request.Context(), item); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, item)
}

// UpdateItem 更新兑换商品（stock_used 归引擎所有，不可改写）
// PUT /api/v1/admin/items/:id
func (h *Handler) UpdateItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		response.ParamError(c, "id 参数错误")
		return
	}

	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	item := req.toModel(itemID)
	if err := h.adminService.UpdateItem(c.Request.Context(), item); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, item)
}

// GetItem 商品详情
// GET /api/v1/admin/items/:id
func (h *Handler) GetItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		response.ParamError(c, "id 参数错误")
		return
	}

	item, err := h.adminService.GetItem(c.Request.Context(), itemID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, item)
}

// ============================================================
// 管理端：订单状态流转
// ============================================================

// UpdateOrderStatusRequest 订单状态更新请求
type UpdateOrderStatusRequest struct {
	OrderNo  string `json:"order_no" binding:"required"`
	ToStatus string `json:"to_status" binding:"required"`
}

// UpdateOrderStatus 推进实物订单状态（发货、完成、取消）
// POST /api/v1/admin/orders/status
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.redeemService.UpdateOrderStatus(c.Request.Context(), req.OrderNo, req.ToStatus); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "订单状态已更新"})
}

// ============================================================
// 管理端：手工调整 / 流水导出
// ============================================================

// ManualAdjustRequest 手工调整请求
type ManualAdjustRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// ManualAdjust 管理员手工调整积分（带审计日志）
// POST /api/v1/admin/adjust
func (h *Handler) ManualAdjust(c *gin.Context) {
	var req ManualAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	operator := c.GetHeader("X-Operator")
	if operator == "" {
		operator = "admin"
	}

	newBalance, err := h.adminService.ManualAdjust(c.Request.Context(), operator, req.UserID, req.Amount, req.Reason)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"new_balance": newBalance,
	})
}

// ExportLedger 导出指定时间范围的全量流水（CSV）
// GET /api/v1/admin/export/ledger?from=2026-01-01&to=2026-02-01
func (h *Handler) ExportLedger(c *gin.Context) {
	from, err := time.Parse("2006-01-02", c.DefaultQuery("from", "1970-01-01"))
	if err != nil {
		response.ParamError(c, "from 参数错误，格式应为 2006-01-02")
		return
	}
	to, err := time.Parse("2006-01-02", c.DefaultQuery("to", "2100-01-01"))
	if err != nil {
		response.ParamError(c, "to 参数错误，格式应为 2006-01-02")
		return
	}

	filename := fmt.Sprintf("ledger_%s.csv", time.Now().Format("20060102150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	if err := h.adminService.ExportLedgerCSV(c.Request.Context(), c.Writer, from, to); err != nil {
		// 响应头已发出，只能记录错误后中断
		c.Error(err) //nolint:errcheck
	}
}
