package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"eCard/internal/api/middleware"
	"eCard/internal/auth"
	"eCard/internal/card"
	"eCard/internal/config"
	"eCard/internal/profile"
	"eCard/internal/storage"
)

// Dependencies 汇总路由注册所需的外部资源。
// cmd/api 启动时必须连上 Redis（导出队列依赖它）；Redis 为空只出现在不关心限流、
// 令牌黑名单与 WebSocket 的接口测试里，此时这些功能关闭。
type Dependencies struct {
	DB             *gorm.DB
	Queue          TaskEnqueuer
	AuthService    *auth.AuthService
	Redis          redis.UniversalClient
	Storage        storage.ObjectStore
	Renderer       *card.Renderer
	API            config.APIConfig
	ClamdAddr      string
	ExportMaxRetry int
	Logger         *slog.Logger
}

// RegisterRoutes 注册 API 路由，不带版本前缀。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	store := profile.NewGormStore(deps.DB)
	profiles := profile.NewService(store)
	accounts := auth.NewAccounts(store)

	var (
		authCache   authRedis
		rateCounter redisRateCounter
	)
	if deps.Redis != nil {
		authCache = deps.Redis
		rateCounter = deps.Redis
	}

	authHandler := NewAuthHandler(accounts, deps.AuthService, authCache, LoginLimits{
		RatePerHour:   deps.API.LoginRateLimitPerHour,
		LockThreshold: deps.API.LoginLockThreshold,
		LockTTL:       deps.API.LoginLockTTL,
	}, deps.API.CookieDomain)
	profileHandler := NewProfileHandler(profiles)
	cardHandler := NewCardHandler(profiles, deps.Renderer, deps.Storage, deps.API.PublicBaseURL)
	exportHandler := NewExportHandler(deps.DB, deps.Queue, deps.Storage, profiles, deps.ExportMaxRetry)
	assetHandler := NewAssetHandler(deps.Storage, rateCounter, deps.ClamdAddr)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	if deps.Redis != nil {
		wsHandler := NewWsHandler(NewRedisNotifySubscriber(deps.Redis), deps.AuthService, deps.Logger, deps.API.CORSAllowedOrigins)
		router.GET("/ws", wsHandler.HandleConnection)
	}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
	}

	router.GET("/profile", profileHandler.GetProfile)
	router.POST("/profile/save", authMiddleware, passwordGate, profileHandler.SaveProfile)

	router.GET("/cards/:name", cardHandler.GetCard)
	router.GET("/cards/:name/qr.png", cardHandler.GetQRCode)
	router.POST("/cards/export", authMiddleware, passwordGate, exportHandler.CreateExport)
	router.GET("/share/:name", cardHandler.ShareByName)
	router.GET("/s/:shareId", cardHandler.ShareByID)
	router.GET("/profile1.png", cardHandler.Placeholder)

	exportGroup := router.Group("/exports")
	exportGroup.Use(authMiddleware, passwordGate)
	{
		exportGroup.GET("/:id", exportHandler.GetExport)
		exportGroup.GET("/:id/download-link", exportHandler.GetDownloadLink)
	}

	assetGroup := router.Group("/assets")
	assetGroup.Use(authMiddleware, passwordGate)
	{
		assetGroup.POST("/upload", assetHandler.UploadAsset)
		assetGroup.GET("", assetHandler.ListAssets)
		assetGroup.GET("/view", assetHandler.GetAssetURL)
		assetGroup.DELETE("", assetHandler.DeleteAsset)
	}

	internalGroup := router.Group("/internal")
	internalGroup.Use(middleware.InternalSecretMiddleware(deps.API.InternalSecret))
	{
		internalGroup.GET("/cards/:id", cardHandler.GetInternalCardData)
	}
}
