package app

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/bridge"
	"github.com/datastations/packaging-service/internal/db"
	"github.com/datastations/packaging-service/internal/middleware"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/platform/secrets"
	"github.com/datastations/packaging-service/internal/server"
)

const (
	ServiceName    = "packaging-service"
	ServiceVersion = "1.0.0"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Registry *bridge.Registry
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig()
	if cfg.SecretKey == "" {
		log.Sync()
		return nil, fmt.Errorf("missing SECRET_KEY")
	}
	codec, err := secrets.New(cfg.SecretKey)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init codec: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	registry := bridge.NewRegistry(log)
	if err := registry.LoadDir(cfg.BridgeConfDir); err != nil {
		log.Sync()
		return nil, fmt.Errorf("load bridge manifests: %w", err)
	}

	for _, dir := range []string{cfg.UploadDir, cfg.StoreDir, cfg.WorkRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Sync()
			return nil, fmt.Errorf("ensure data dir %s: %w", dir, err)
		}
	}

	reposet := wireRepos(theDB, log, codec)
	serviceset, err := wireServices(theDB, log, cfg, reposet, registry)
	if err != nil {
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(serviceset, registry)

	authMiddleware := middleware.NewAuthMiddleware(log, cfg.APIKey)
	router := server.NewRouter(server.RouterConfig{
		ServiceName:     ServiceName,
		ServiceVersion:  ServiceVersion,
		AuthMiddleware:  authMiddleware,
		DatasetHandler:  handlerset.Dataset,
		UploadHandler:   handlerset.Upload,
		RegistryHandler: handlerset.Registry,
		AssetHandler:    handlerset.Assets,
	})

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Registry: registry,
	}, nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
