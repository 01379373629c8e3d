package handler

import (
	"cyberpark/internal/config"

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
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 车型相关
		car := api.Group("/car")
		{
			car.GET("/list", h.ListCarTypes)
			car.GET("/detail", h.GetCarType)
		}

		// 预订相关
		reservation := api.Group("/reservation")
		{
			reservation.POST("/create", h.CreateReservation)
			reservation.GET("/active", h.GetActiveReservation)
			reservation.GET("/list", h.ListReservations)
			reservation.POST("/cancel", h.CancelReservation)
			reservation.POST("/use", h.UseReservation)
		}

		// 行程相关
		ride := api.Group("/ride")
		{
			ride.POST("/finish", h.FinishRide)
			ride.POST("/charge", h.ChargeRide)
		}

		// 钱包相关
		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.POST("/deposit", h.Deposit)
			wallet.POST("/refund", h.Refund)
		}

		// 网关回调
		payment := api.Group("/payment")
		{
			payment.POST("/webhook", h.PaymentWebhook)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
