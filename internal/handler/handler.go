package handler

import (
	"errors"
	"strconv"

	"uapoints/internal/config"
	"uapoints/internal/repository"
	"uapoints/internal/service"
	"uapoints/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledgerService   *service.LedgerService
	rewardService   *service.RewardService
	redeemService   *service.RedeemService
	referralService *service.ReferralService
	adminService    *service.AdminService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		ledgerService:   service.NewLedgerService(db, cfg),
		rewardService:   service.NewRewardService(db, rdb, cfg),
		redeemService:   service.NewRedeemService(db, rdb, cfg),
		referralService: service.NewReferralService(db, rdb, cfg),
		adminService:    service.NewAdminService(db, rdb, cfg),
	}
}

// bizError 把服务层错误翻译成业务错误码
// 全部是可恢复的用户侧结果，HTTP 状态码保持 200
func bizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientPoints, "积分余额不足")
	case errors.Is(err, repository.ErrOutOfStock):
		response.BusinessError(c, response.CodeOutOfStock, "商品库存不足")
	case errors.Is(err, service.ErrPerUserLimitReached):
		response.BusinessError(c, response.CodePerUserLimitReached, "已达到该商品每人限兑次数")
	case errors.Is(err, service.ErrItemInactive):
		response.BusinessError(c, response.CodeItemInactive, "商品已下架")
	case errors.Is(err, service.ErrShippingInfoRequired):
		response.BusinessError(c, response.CodeShippingRequired, "请填写收货信息后重试")
	case errors.Is(err, service.ErrTierRestricted):
		response.BusinessError(c, response.CodeTierRestricted, "当前等级不允许此操作")
	case errors.Is(err, service.ErrSelfReferral):
		response.BusinessError(c, response.CodeSelfReferral, "不能使用自己的推荐码")
	case errors.Is(err, repository.ErrAlreadyReferred):
		response.BusinessError(c, response.CodeAlreadyReferred, "该账户已绑定推荐人")
	case errors.Is(err, service.ErrInvalidReferralCode):
		response.BusinessError(c, response.CodeInvalidReferralCode, "推荐码不存在")
	case errors.Is(err, service.ErrReferralCodeFormat):
		response.ParamError(c, "推荐码格式不合法")
	case errors.Is(err, repository.ErrReferralCodeTaken):
		response.BusinessError(c, response.CodeReferralCodeTaken, "推荐码已被占用")
	case errors.Is(err, repository.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, "订单不存在")
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		response.BusinessError(c, response.CodeOrderStatusInvalid, "订单状态不允许此操作")
	case errors.Is(err, repository.ErrItemNotFound):
		response.BusinessError(c, response.CodeNotFound, "商品不存在")
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, "账户不存在")
	default:
		response.ServerError(c, err.Error())
	}
}

func userIDFromQuery(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

// ============================================================
// 奖励发放接口
// ============================================================

type userIDRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// DailyLogin 每日登录奖励
// POST /api/v1/points/daily-login
func (h *Handler) DailyLogin(c *gin.Context) {
	var req userIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.rewardService.DailyLogin(c.Request.Context(), req.UserID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// ToolUseRequest 工具使用奖励请求
type ToolUseRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	ToolName string `json:"tool_name" binding:"required"`
}

// ToolUse 工具使用奖励
// POST /api/v1/points/tool-use
func (h *Handler) ToolUse(c *gin.Context) {
	var req ToolUseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.rewardService.ToolUse(c.Request.Context(), req.UserID, req.ToolName)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// FirstClient 首次创建客户奖励
// POST /api/v1/points/first-client
func (h *Handler) FirstClient(c *gin.Context) {
	var req userIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.rewardService.FirstClient(c.Request.Context(), req.UserID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 积分查询接口
// ============================================================

// GetSummary 积分概览
// GET /api/v1/points/summary?user_id=xxx
func (h *Handler) GetSummary(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	summary, err := h.ledgerService.GetSummary(c.Request.Context(), userID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, summary)
}

// ListTransactions 积分流水列表
// GET /api/v1/points/transactions?user_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.ledgerService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 推荐接口
// ============================================================

// ApplyReferralRequest 应用推荐码请求
type ApplyReferralRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// ApplyReferral 应用推荐码
// POST /api/v1/referral/apply
func (h *Handler) ApplyReferral(c *gin.Context) {
	var req ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.referralService.ApplyReferral(c.Request.Context(), req.UserID, req.Code)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateReferralCodeRequest 自定义推荐码请求
type UpdateReferralCodeRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	NewCode string `json:"new_code" binding:"required"`
}

// UpdateReferralCode 自定义推荐码
// POST /api/v1/referral/code
func (h *Handler) UpdateReferralCode(c *gin.Context) {
	var req UpdateReferralCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	newCode, err := h.referralService.UpdateReferralCode(c.Request.Context(), req.UserID, req.NewCode)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"success":  true,
		"new_code": newCode,
	})
}

// ============================================================
// 积分商城接口
// ============================================================

// ListStoreItems 商城商品列表
// GET /api/v1/store/items?category=xxx
func (h *Handler) ListStoreItems(c *gin.Context) {
	items, err := h.redeemService.ListItems(c.Request.Context(), c.Query("category"))
	if err != nil {
		bizError(c, err)
		return
	}

	list := make([]gin.H, 0, len(items))
	for _, item := range items {
		list = append(list, gin.H{
			"id":                item.ID,
			"name":              item.Name,
			"points_cost":       item.PointsCost,
			"remaining":         item.Remaining(),
			"max_per_user":      item.MaxPerUser,
			"requires_shipping": item.RequiresShipping,
			"category":          item.Category,
			"is_virtual":        item.IsVirtual(),
		})
	}

	response.Success(c, gin.H{"list": list})
}

// RedeemItem 兑换商品
// POST /api/v1/store/redeem
//
// 【关键点】兑换必须保证：
// 1. 幂等性：相同的 request_id 只会产生一个订单
// 2. 原子性：库存占用、积分扣减、订单创建同时成功或同时失败
// 3. 防超卖：限量商品并发兑换不会卖超
func (h *Handler) RedeemItem(c *gin.Context) {
	var req service.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.redeemService.Redeem(c.Request.Context(), &req)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, result)
}

// ListOrders 兑换订单历史
// GET /api/v1/store/orders?user_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := userIDFromQuery(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.redeemService.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CancelOrderRequest 取消订单请求
type CancelOrderRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
	Reason  string `json:"reason"`
}

// CancelOrder 取消兑换订单（退还积分并回补库存）
// POST /api/v1/store/orders/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.redeemService.CancelOrder(c.Request.Context(), req.OrderNo, req.Reason); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "订单已取消，积分已退还",
	})
}
