package handler

import (
	"uapoints/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 积分奖励与查询
		points := api.Group("/points")
		{
			points.POST("/daily-login", h.DailyLogin)
			points.POST("/tool-use", h.ToolUse)
			points.POST("/first-client", h.FirstClient)
			points.GET("/summary", h.GetSummary)
			points.GET("/transactions", h.ListTransactions)
		}

		// 推荐注册
		referral := api.Group("/referral")
		{
			referral.POST("/apply", h.ApplyReferral)
			referral.POST("/code", h.UpdateReferralCode)
		}

		// 积分商城
		store := api.Group("/store")
		{
			store.GET("/items", h.ListStoreItems)
			store.POST("/redeem", h.RedeemItem)
			store.GET("/orders", h.ListOrders)
			store.POST("/orders/cancel", h.CancelOrder)
		}

		// 管理端（需要 X-Admin-Token）
		admin := api.Group("/admin")
		admin.Use(AdminAuthMiddleware(cfg))
		{
			admin.GET("/tiers", h.ListTiers)
			admin.POST("/tiers", h.CreateTier)
			admin.PUT("/tiers/:id", h.UpdateTier)
			admin.POST("/tiers/:id/deactivate", h.DeactivateTier)

			admin.GET("/grants", h.ListTierGrants)
			admin.POST("/grants", h.GrantTier)
			admin.DELETE("/grants/:id", h.RevokeTierGrant)

			admin.GET("/items/:id", h.GetItem)
			admin.POST("/items", h.CreateItem)
			admin.PUT("/items/:id", h.UpdateItem)

			admin.POST("/orders/status", h.UpdateOrderStatus)
			admin.POST("/adjust", h.ManualAdjust)
			admin.GET("/export/ledger", h.ExportLedger)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
