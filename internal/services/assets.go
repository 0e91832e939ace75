package services

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// AssetService answers the read-only progress queries: one dataset with its
// ordered target states, or everything an owner has submitted.
type AssetService interface {
	ProgressState(dbc dbctx.Context, datasetID string) (*types.Asset, error)
	OwnerAssets(dbc dbctx.Context, ownerID string) (*types.OwnerAssets, error)
}

type assetService struct {
	db          *gorm.DB
	log         *logger.Logger
	datasetRepo deposit.DatasetRepo
	targetRepo  deposit.TargetRepoRepo
}

func NewAssetService(db *gorm.DB, log *logger.Logger, datasetRepo deposit.DatasetRepo, targetRepo deposit.TargetRepoRepo) AssetService {
	serviceLog := log.With("service", "AssetService")
	return &assetService{
		db:          db,
		log:         serviceLog,
		datasetRepo: datasetRepo,
		targetRepo:  targetRepo,
	}
}

func (s *assetService) ProgressState(dbc dbctx.Context, datasetID string) (*types.Asset, error) {
	ds, err := s.datasetRepo.Get(dbc, datasetID)
	if err != nil {
		return nil, err
	}
	return s.buildAsset(dbc, ds)
}

func (s *assetService) OwnerAssets(dbc dbctx.Context, ownerID string) (*types.OwnerAssets, error) {
	datasets, err := s.datasetRepo.ListByOwner(dbc, ownerID)
	if err != nil {
		return nil, err
	}
	owned := &types.OwnerAssets{OwnerID: ownerID, Assets: []types.Asset{}}
	for _, ds := range datasets {
		asset, err := s.buildAsset(dbc, ds)
		if err != nil {
			return nil, err
		}
		owned.Assets = append(owned.Assets, *asset)
	}
	return owned, nil
}

func (s *assetService) buildAsset(dbc dbctx.Context, ds *types.Dataset) (*types.Asset, error) {
	targets, err := s.targetRepo.ListByDataset(dbc, ds.ID)
	if err != nil {
		return nil, err
	}

	states := make([]types.TargetState, 0, len(targets))
	for _, target := range targets {
		state := types.TargetState{
			RepoName:      target.Name,
			DisplayName:   target.DisplayName,
			DepositStatus: target.DepositStatus,
			Duration:      target.Duration,
		}
		if target.DepositTime != nil {
			state.DepositTime = formatDate(*target.DepositTime)
		}
		if len(target.Output) > 0 {
			state.Output = json.RawMessage(target.Output)
		}
		states = append(states, state)
	}

	asset := &types.Asset{
		DatasetID:      ds.ID,
		Title:          ds.Title,
		ReleaseVersion: string(ds.ReleaseVersion),
		Version:        ds.Version,
		CreatedDate:    formatDate(ds.CreatedDate),
		SavedDate:      formatDate(ds.SavedDate),
		Targets:        states,
	}
	if ds.SubmittedDate != nil {
		asset.SubmittedDate = formatDate(*ds.SubmittedDate)
	}
	return asset, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
