package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/datastations/packaging-service/internal/handlers"
	"github.com/datastations/packaging-service/internal/middleware"
)

type RouterConfig struct {
	ServiceName     string
	ServiceVersion  string
	AuthMiddleware  *middleware.AuthMiddleware
	DatasetHandler  *handlers.DatasetHandler
	UploadHandler   *handlers.UploadHandler
	RegistryHandler *handlers.RegistryHandler
	AssetHandler    *handlers.AssetHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Api-Key", "X-Owner-Id"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/info", handlers.ServiceInfo(cfg.ServiceName, cfg.ServiceVersion))

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAPIKey())
	// Inbox
	protected.POST("/inbox/dataset/:release_version", cfg.DatasetHandler.Submit)
	protected.DELETE("/inbox/dataset/:dataset_id", cfg.DatasetHandler.Delete)
	protected.POST("/inbox/resubmit/:dataset_id", cfg.DatasetHandler.Resubmit)
	protected.PATCH("/inbox/files/:dataset_id/:upload_id", cfg.UploadHandler.Complete)
	protected.POST("/tus-hook", cfg.UploadHandler.TusHook)
	// Admin
	protected.POST("/register-bridge-module/:name/:overwrite", cfg.RegistryHandler.Register)
	protected.GET("/bridge-modules", cfg.RegistryHandler.List)
	// Progress
	protected.GET("/progress-state/:dataset_id", cfg.AssetHandler.ProgressState)
	protected.GET("/dataset-assets/:owner_id", cfg.AssetHandler.OwnerAssets)

	return router
}
