package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fetchq/fetchq/api/handlers"
	"github.com/fetchq/fetchq/api/middleware"
	"github.com/fetchq/fetchq/internal/app"
	"github.com/fetchq/fetchq/internal/domain"
	"github.com/fetchq/fetchq/internal/infrastructure"
)

// RouterDeps bundles everything the HTTP surface needs
type RouterDeps struct {
	Scheduler *app.Scheduler
	History   domain.HistoryStore
	Logs      domain.LogStore
	Checker   *infrastructure.BinaryChecker
	Config    *domain.Config
	Logger    *zap.Logger
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Scheduler)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Download endpoints
		downloadHandler := handlers.NewDownloadHandler(deps.Scheduler, deps.Logger)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/stats", downloadHandler.GetStats)
			downloads.POST("/cancel-all", downloadHandler.CancelAll)
			downloads.POST("/clear-completed", downloadHandler.ClearCompleted)
			downloads.GET("/:id", downloadHandler.GetDownload)
			downloads.POST("/:id/cancel", downloadHandler.CancelDownload)
			downloads.POST("/:id/retry", downloadHandler.RetryDownload)
		}

		// History endpoints
		historyHandler := handlers.NewHistoryHandler(deps.History, deps.Scheduler, deps.Logger)
		history := v1.Group("/history")
		{
			history.GET("", historyHandler.ListHistory)
			history.GET("/duplicate", historyHandler.CheckDuplicate)
			history.DELETE("/:id", historyHandler.DeleteHistory)
		}

		// Log endpoints
		logHandler := handlers.NewLogHandler(deps.Logs, deps.Logger)
		wsHandler := handlers.NewLogWebSocketHandler(deps.Logs, deps.Logger)
		logs := v1.Group("/logs")
		{
			logs.GET("", logHandler.ListLogs)
			logs.GET("/stats", logHandler.GetStats)
			logs.DELETE("", logHandler.ClearLogs)
			logs.GET("/ws", wsHandler.HandleWebSocket)
		}

		// System endpoints
		systemHandler := handlers.NewSystemHandler(deps.Scheduler, deps.Checker, deps.Config.Download.Dir, deps.Logger)
		system := v1.Group("/system")
		{
			system.GET("/status", systemHandler.GetStatus)
			system.GET("/dependencies", systemHandler.GetDependencies)
			system.POST("/update", systemHandler.UpdateDependencies)
			system.GET("/concurrency", systemHandler.GetConcurrency)
			system.PUT("/concurrency", systemHandler.SetConcurrency)
		}
	}

	return router
}
