package app

import (
	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/bridge"
	"github.com/datastations/packaging-service/internal/platform/assistant"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/platform/mailer"
	"github.com/datastations/packaging-service/internal/platform/notify"
	"github.com/datastations/packaging-service/internal/platform/transformer"
	"github.com/datastations/packaging-service/internal/platform/tus"
	"github.com/datastations/packaging-service/internal/services"
)

type Services struct {
	Reconcile  services.ReconcileService
	Chain      services.ChainService
	Upload     services.UploadService
	Submission services.SubmissionService
	Assets     services.AssetService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, registry *bridge.Registry) (Services, error) {
	transformerClient, err := transformer.NewFromEnv(log)
	if err != nil {
		return Services{}, err
	}
	assistantClient, err := assistant.NewFromEnv(log)
	if err != nil {
		return Services{}, err
	}
	tusClient, err := tus.NewFromEnv(log)
	if err != nil {
		return Services{}, err
	}

	// Mail alerts and progress events are optional facilities.
	mailClient, err := mailer.NewFromEnv(log)
	if err != nil {
		log.Warn("Operator mail disabled", "error", err)
		mailClient = nil
	}
	publisher, err := notify.NewFromEnv(log)
	if err != nil {
		log.Warn("Progress notification disabled", "error", err)
		publisher = nil
	}

	fileOps := services.NewFileOps()

	reconcile := services.NewReconcileService(log, repos.Dataset, repos.DataFile, fileOps, cfg.WorkRoot)
	chain := services.NewChainService(db, log, repos.Dataset, repos.TargetRepo, repos.DataFile,
		registry, transformerClient, mailClient, publisher, fileOps, cfg.WorkRoot)
	upload := services.NewUploadService(db, log, repos.Dataset, repos.DataFile, repos.UploadRecord,
		reconcile, chain, tusClient, fileOps, cfg.UploadDir, cfg.StoreDir, cfg.WorkRoot)
	submission := services.NewSubmissionService(db, log, repos.Dataset, repos.TargetRepo,
		reconcile, chain, assistantClient, registry, fileOps, cfg.WorkRoot)
	assets := services.NewAssetService(db, log, repos.Dataset, repos.TargetRepo)

	return Services{
		Reconcile:  reconcile,
		Chain:      chain,
		Upload:     upload,
		Submission: submission,
		Assets:     assets,
	}, nil
}
