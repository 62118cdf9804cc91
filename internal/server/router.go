package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"zeur-core/internal/handler"
	"zeur-core/pkg/monitor"
	"zeur-core/pkg/validator"
)

// Handlers 路由依赖的全部 handler
type Handlers struct {
	Health  *handler.HealthHandler
	Lending *handler.LendingHandler
	Tx      *handler.TxHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers, limiter *RateLimiter) *gin.Engine {
	// 0. 初始化监控指标与自定义校验规则
	monitor.Init()
	validator.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", h.Health.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/assets", h.Lending.Assets)
		api.GET("/collaterals", h.Lending.Collaterals)
		api.GET("/positions", h.Lending.Position)
		api.GET("/balances/:asset", h.Lending.Balance)
		api.POST("/refetch", h.Lending.Refetch)

		api.GET("/tx/:flow", h.Tx.Status)
		api.POST("/tx/:flow/reset", h.Tx.Reset)

		// 写接口会触发签名，单独限流
		write := api.Group("")
		if limiter != nil {
			write.Use(limiter.Middleware())
		}
		write.POST("/supply", h.Lending.Supply)
		write.POST("/withdraw", h.Lending.Withdraw)
		write.POST("/borrow", h.Lending.Borrow)
		write.POST("/repay", h.Lending.Repay)
		write.POST("/liquidate", h.Lending.Liquidate)
	}

	return r
}
