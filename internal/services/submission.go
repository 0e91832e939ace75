package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/bridge"
	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/assistant"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// SubmitRequest is the inbound submission payload.
type SubmitRequest struct {
	DatasetID          string                    `json:"dataset-id"`
	Title              string                    `json:"title"`
	OwnerID            string                    `json:"owner-id"`
	AppName            string                    `json:"app-name"`
	Metadata           json.RawMessage           `json:"metadata"`
	FileNames          []types.FileEntry         `json:"file-names"`
	TargetsCredentials []types.TargetCredentials `json:"targets-credentials,omitempty"`
}

// SubmissionService handles the dataset lifecycle entry points: accepting a
// submission, resubmitting stalled chains, and deleting drafts.
type SubmissionService interface {
	Submit(ctx context.Context, releaseVersion string, req SubmitRequest) (*types.SubmitReceipt, error)
	Resubmit(ctx context.Context, datasetID string) (*types.SubmitReceipt, error)
	Delete(ctx context.Context, datasetID, ownerID string) error
}

type submissionService struct {
	db          *gorm.DB
	log         *logger.Logger
	datasetRepo deposit.DatasetRepo
	targetRepo  deposit.TargetRepoRepo
	reconciler  ReconcileService
	chain       ChainService
	assistant   assistant.Client
	registry    *bridge.Registry
	fileOps     FileOps
	workRoot    string
}

func NewSubmissionService(
	db *gorm.DB,
	log *logger.Logger,
	datasetRepo deposit.DatasetRepo,
	targetRepo deposit.TargetRepoRepo,
	reconciler ReconcileService,
	chain ChainService,
	assistantClient assistant.Client,
	registry *bridge.Registry,
	fileOps FileOps,
	workRoot string,
) SubmissionService {
	serviceLog := log.With("service", "SubmissionService")
	return &submissionService{
		db:          db,
		log:         serviceLog,
		datasetRepo: datasetRepo,
		targetRepo:  targetRepo,
		reconciler:  reconciler,
		chain:       chain,
		assistant:   assistantClient,
		registry:    registry,
		fileOps:     fileOps,
		workRoot:    workRoot,
	}
}

func (s *submissionService) Submit(ctx context.Context, releaseVersion string, req SubmitRequest) (*types.SubmitReceipt, error) {
	release, ok := types.ParseReleaseVersion(releaseVersion)
	if !ok {
		return nil, fmt.Errorf("release version %q: %w", releaseVersion, apperr.ErrInvalidArgument)
	}
	if req.DatasetID == "" || req.OwnerID == "" || req.AppName == "" {
		return nil, fmt.Errorf("dataset-id, owner-id and app-name required: %w", apperr.ErrInvalidArgument)
	}

	dbc := dbctx.Context{Ctx: ctx}
	published, err := s.datasetRepo.IsPublished(dbc, req.DatasetID)
	if err != nil {
		return nil, err
	}
	if published {
		return nil, fmt.Errorf("dataset %s already published: %w", req.DatasetID, apperr.ErrConflict)
	}

	descriptor, err := s.assistant.FetchChainDescriptor(ctx, req.AppName)
	if err != nil {
		return nil, err
	}

	// Every referenced adapter must resolve before a single row is written.
	for _, target := range descriptor.Targets {
		if _, err := s.registry.Resolve(target.Adapter); err != nil {
			return nil, fmt.Errorf("target %s: %w", target.RepoName, err)
		}
	}

	targets, err := buildTargetRows(req.DatasetID, descriptor, req.TargetsCredentials)
	if err != nil {
		return nil, err
	}

	var ready bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		ds := &types.Dataset{
			ID:             req.DatasetID,
			Title:          req.Title,
			OwnerID:        req.OwnerID,
			AppName:        req.AppName,
			Metadata:       string(req.Metadata),
			ReleaseVersion: release,
		}
		if err := s.datasetRepo.Upsert(inner, ds); err != nil {
			return err
		}
		if err := s.targetRepo.ReplaceAll(inner, req.DatasetID, targets); err != nil {
			return err
		}
		outcome, err := s.reconciler.Reconcile(inner, req.DatasetID, req.FileNames)
		if err != nil {
			return err
		}
		ready = outcome.Ready
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.fileOps.EnsureDir(filepath.Join(s.workRoot, req.DatasetID)); err != nil {
		return nil, fmt.Errorf("ensure working dir: %w", err)
	}

	started := false
	if ready && release == types.ReleasePublish {
		started, err = s.chain.Trigger(ctx, req.DatasetID)
		if err != nil {
			return nil, err
		}
	}

	s.log.Info("Submission accepted",
		"dataset", req.DatasetID,
		"release", release,
		"targets", len(targets),
		"ready", ready,
		"started", started)
	return &types.SubmitReceipt{
		Status:          "OK",
		DatasetID:       req.DatasetID,
		StartProcessing: started,
	}, nil
}

// buildTargetRows serializes each descriptor target, with caller credentials
// substituted by symbolic name, into an ordered TargetRepo row set.
func buildTargetRows(datasetID string, descriptor *types.ChainDescriptor, credentials []types.TargetCredentials) ([]*types.TargetRepo, error) {
	credsByName := make(map[string]*types.Credentials, len(credentials))
	for _, cred := range credentials {
		credsByName[cred.TargetRepoName] = cred.Credentials
	}

	rows := make([]*types.TargetRepo, 0, len(descriptor.Targets))
	for _, target := range descriptor.Targets {
		if cred := credsByName[target.RepoName]; cred != nil {
			if cred.Username != "" {
				target.Username = cred.Username
			}
			if cred.Password != "" {
				target.Password = cred.Password
			}
		}
		config, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("serialize target %s: %w", target.RepoName, err)
		}
		rows = append(rows, &types.TargetRepo{
			DatasetID:   datasetID,
			Name:        target.RepoName,
			DisplayName: target.DisplayName,
			Config:      string(config),
			URL:         target.TargetURL,
		})
	}
	return rows, nil
}

func (s *submissionService) Resubmit(ctx context.Context, datasetID string) (*types.SubmitReceipt, error) {
	started, err := s.chain.Resubmit(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return &types.SubmitReceipt{
		Status:          "OK",
		DatasetID:       datasetID,
		StartProcessing: started,
	}, nil
}

func (s *submissionService) Delete(ctx context.Context, datasetID, ownerID string) error {
	dbc := dbctx.Context{Ctx: ctx}
	ds, err := s.datasetRepo.Get(dbc, datasetID)
	if err != nil {
		return err
	}
	if ownerID != "" && ds.OwnerID != ownerID {
		return fmt.Errorf("dataset %s: %w", datasetID, apperr.ErrNotFound)
	}

	// A dataset with any target already archived externally is immutable.
	protected, err := s.targetRepo.AnyTerminalSuccess(dbc, datasetID)
	if err != nil {
		return err
	}
	if protected {
		return fmt.Errorf("dataset %s has archived deposits: %w", datasetID, apperr.ErrConflict)
	}

	if err := s.datasetRepo.DeleteCascade(dbc, datasetID); err != nil {
		return err
	}
	if err := s.fileOps.RemoveTree(filepath.Join(s.workRoot, datasetID)); err != nil {
		s.log.Warn("Working directory cleanup failed", "dataset", datasetID, "error", err)
	}
	s.log.Info("Dataset deleted", "dataset", datasetID)
	return nil
}
