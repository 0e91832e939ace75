package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/platform/tus"
)

// UploadRegistration describes one upload announced by the upload daemon's
// post-create hook: the daemon's handle plus the declared destination.
type UploadRegistration struct {
	UploadID  string
	DatasetID string
	FileName  string
	Size      int64
	MimeType  string
	Info      json.RawMessage
}

// UploadService tracks the resumable-upload side channel and folds finished
// uploads into their dataset: the daemon's hooks register and discard upload
// records, and completion verifies the blob, moves it to permanent storage,
// links it into the dataset working directory, flips the file row to
// UPLOADED, and triggers the deposit chain when that upload was the last
// missing file.
type UploadService interface {
	RegisterUpload(ctx context.Context, reg UploadRegistration) (*types.UploadRecord, error)
	DiscardUpload(ctx context.Context, uploadID string) error
	CompleteUpload(ctx context.Context, datasetID, uploadID string) (*types.SubmitReceipt, error)
}

type uploadService struct {
	db          *gorm.DB
	log         *logger.Logger
	datasetRepo deposit.DatasetRepo
	fileRepo    deposit.DataFileRepo
	uploadRepo  deposit.UploadRecordRepo
	reconciler  ReconcileService
	chain       ChainService
	tusClient   tus.Client
	fileOps     FileOps
	uploadDir   string
	storeDir    string
	workRoot    string
}

func NewUploadService(
	db *gorm.DB,
	log *logger.Logger,
	datasetRepo deposit.DatasetRepo,
	fileRepo deposit.DataFileRepo,
	uploadRepo deposit.UploadRecordRepo,
	reconciler ReconcileService,
	chain ChainService,
	tusClient tus.Client,
	fileOps FileOps,
	uploadDir, storeDir, workRoot string,
) UploadService {
	serviceLog := log.With("service", "UploadService")
	return &uploadService{
		db:          db,
		log:         serviceLog,
		datasetRepo: datasetRepo,
		fileRepo:    fileRepo,
		uploadRepo:  uploadRepo,
		reconciler:  reconciler,
		chain:       chain,
		tusClient:   tusClient,
		fileOps:     fileOps,
		uploadDir:   uploadDir,
		storeDir:    storeDir,
		workRoot:    workRoot,
	}
}

func (s *uploadService) RegisterUpload(ctx context.Context, reg UploadRegistration) (*types.UploadRecord, error) {
	if reg.UploadID == "" || reg.DatasetID == "" || reg.FileName == "" {
		return nil, fmt.Errorf("upload-id, dataset-id and file-name required: %w", apperr.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}

	// Only declared files of known datasets get an upload slot.
	if _, err := s.datasetRepo.Get(dbc, reg.DatasetID); err != nil {
		return nil, err
	}
	if _, err := s.fileRepo.GetByName(dbc, reg.DatasetID, reg.FileName); err != nil {
		return nil, err
	}

	record := &types.UploadRecord{
		ID:        reg.UploadID,
		DatasetID: reg.DatasetID,
		FileName:  reg.FileName,
		Size:      reg.Size,
		MimeType:  reg.MimeType,
		Info:      datatypes.JSON(reg.Info),
	}
	if err := s.uploadRepo.Create(dbc, record); err != nil {
		return nil, err
	}
	s.log.Info("Upload registered", "dataset", reg.DatasetID, "upload", reg.UploadID, "file", reg.FileName)
	return record, nil
}

func (s *uploadService) DiscardUpload(ctx context.Context, uploadID string) error {
	if uploadID == "" {
		return fmt.Errorf("upload-id required: %w", apperr.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := s.uploadRepo.Delete(dbc, uploadID); err != nil {
		return err
	}
	s.log.Info("Upload discarded", "upload", uploadID)
	return nil
}

func (s *uploadService) CompleteUpload(ctx context.Context, datasetID, uploadID string) (*types.SubmitReceipt, error) {
	dbc := dbctx.Context{Ctx: ctx}
	log := s.log.With("dataset", datasetID, "upload", uploadID)

	ds, err := s.datasetRepo.Get(dbc, datasetID)
	if err != nil {
		return nil, err
	}
	record, err := s.uploadRepo.Get(dbc, uploadID)
	if err != nil {
		return nil, err
	}
	if record.DatasetID != datasetID {
		return nil, fmt.Errorf("upload %s belongs to another dataset: %w", uploadID, apperr.ErrInvalidArgument)
	}
	if _, err := s.fileRepo.GetByName(dbc, datasetID, record.FileName); err != nil {
		return nil, err
	}

	// The upload daemon writes the blob under the bare upload id.
	blobPath := filepath.Join(s.uploadDir, uploadID)
	size, exists, err := s.fileOps.Stat(blobPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("upload blob %s missing: %w", uploadID, apperr.ErrNotFound)
	}
	if size == 0 || size != record.Size {
		return nil, fmt.Errorf("upload %s size mismatch: blob %d, declared %d: %w",
			uploadID, size, record.Size, apperr.ErrInvalidArgument)
	}

	stored := filepath.Join(s.storeDir, datasetID, record.FileName)
	if err := s.fileOps.Move(blobPath, stored); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	link := filepath.Join(s.workRoot, datasetID, record.FileName)
	if err := s.fileOps.Symlink(stored, link); err != nil {
		return nil, fmt.Errorf("link blob into working dir: %w", err)
	}

	if err := s.fileRepo.MarkUploaded(dbc, datasetID, record.FileName, link, record.MimeType, size, ""); err != nil {
		return nil, err
	}

	// Cleanup of the upload side-channel is best effort.
	if s.tusClient != nil {
		if err := s.tusClient.DeleteUpload(ctx, uploadID); err != nil {
			log.Warn("Upload daemon cleanup failed", "error", err)
		}
	}
	if err := s.uploadRepo.Delete(dbc, uploadID); err != nil {
		log.Warn("Upload record cleanup failed", "error", err)
	}

	ready, err := s.reconciler.RecomputeReadiness(dbc, datasetID)
	if err != nil {
		return nil, err
	}

	started := false
	if ready && ds.ReleaseVersion == types.ReleasePublish {
		started, err = s.chain.Trigger(ctx, datasetID)
		if err != nil {
			return nil, err
		}
	}

	log.Info("Upload folded into dataset", "file", record.FileName, "ready", ready, "started", started)
	return &types.SubmitReceipt{
		Status:          "OK",
		DatasetID:       datasetID,
		StartProcessing: started,
	}, nil
}
