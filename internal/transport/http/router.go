package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agencysite/backend/internal/health"
	"agencysite/backend/internal/middleware"
	"agencysite/backend/internal/monitoring"
	"agencysite/backend/internal/websocket"
)

// maxRequestBody 请求体上限，联系表单的合法请求远小于此
const maxRequestBody = 64 << 10

// RouterConfig 路由依赖
type RouterConfig struct {
	Contact        *ContactHandler
	Banner         *BannerHandler
	Archive        *ArchiveHandler // nil 表示未启用归档
	Cache          *CacheHandler   // nil 表示不代理站点资源
	Hub            *websocket.Hub
	Health         *health.Checker
	Metrics        *monitoring.Metrics
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	Log            *zap.Logger
	Development    bool
}

// NewRouter 构建 gin 路由
func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryHandler(cfg.Log, cfg.Metrics))
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(maxRequestBody))
	if cfg.Metrics != nil {
		router.Use(middleware.Monitoring(cfg.Metrics))
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 连通性探测端点：空 204，禁止缓存
	router.GET("/ping", cfg.Contact.Ping)
	router.HEAD("/ping", cfg.Contact.Ping)

	// 联系表单
	contact := router.Group("/contact")
	if cfg.RateLimiter != nil {
		contact.Use(cfg.RateLimiter.Handler())
	}
	contact.POST("", cfg.Contact.Submit)
	// GET/HEAD 同样作为探测端点使用
	contact.GET("", cfg.Contact.Ping)
	contact.HEAD("", cfg.Contact.Ping)

	// 诊断接口
	v1 := router.Group("/v1")
	v1.GET("/outbox", cfg.Contact.OutboxSnapshot)
	if cfg.Banner != nil {
		v1.GET("/banner", cfg.Banner.State)
	}
	if cfg.Archive != nil {
		v1.GET("/delivered", cfg.Archive.Delivered)
	}

	// 事件推送
	if cfg.Hub != nil {
		router.GET("/ws", cfg.Hub.HandleConnection)
	}

	// 运维端点
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.Health != nil {
		router.GET("/live", gin.WrapH(cfg.Health.Handler()))
		router.GET("/ready", gin.WrapH(cfg.Health.Handler()))
	}

	// 其余路径交给离线缓存代理站点资源
	if cfg.Cache != nil {
		router.NoRoute(cfg.Cache.Serve)
	} else {
		router.NoRoute(func(c *gin.Context) {
			c.Status(http.StatusNotFound)
		})
	}

	return router
}
