package app

import (
	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/platform/secrets"
)

type Repos struct {
	Dataset      deposit.DatasetRepo
	TargetRepo   deposit.TargetRepoRepo
	DataFile     deposit.DataFileRepo
	UploadRecord deposit.UploadRecordRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, codec *secrets.Codec) Repos {
	return Repos{
		Dataset:      deposit.NewDatasetRepo(db, log, codec),
		TargetRepo:   deposit.NewTargetRepoRepo(db, log, codec),
		DataFile:     deposit.NewDataFileRepo(db, log),
		UploadRecord: deposit.NewUploadRecordRepo(db, log),
	}
}
