package deposit

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

type DataFileRepo interface {
	CreateAll(dbc dbctx.Context, files []*domain.DataFile) error
	GetByName(dbc dbctx.Context, datasetID, name string) (*domain.DataFile, error)
	// MarkUploaded records the stored location and content attributes of a
	// file whose bytes just arrived, flipping its state to UPLOADED.
	MarkUploaded(dbc dbctx.Context, datasetID, name, path, mimeType string, size int64, checksum string) error
	UpdatePermission(dbc dbctx.Context, datasetID, name string, permission domain.FilePermission) error
	DeleteByName(dbc dbctx.Context, datasetID, name string) error
	ListByDataset(dbc dbctx.Context, datasetID string) ([]*domain.DataFile, error)
	ListByState(dbc dbctx.Context, datasetID string, state domain.FileState) ([]*domain.DataFile, error)
	// ListWithContent returns files whose bytes exist on disk, i.e. every
	// state except REGISTERED.
	ListWithContent(dbc dbctx.Context, datasetID string) ([]*domain.DataFile, error)
	CountByState(dbc dbctx.Context, datasetID string, state domain.FileState) (int64, error)
	CountByDataset(dbc dbctx.Context, datasetID string) (int64, error)
}

type dataFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataFileRepo(db *gorm.DB, baseLog *logger.Logger) DataFileRepo {
	repoLog := baseLog.With("repo", "DataFileRepo")
	return &dataFileRepo{db: db, log: repoLog}
}

func (r *dataFileRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *dataFileRepo) CreateAll(dbc dbctx.Context, files []*domain.DataFile) error {
	now := time.Now().UTC()
	for _, file := range files {
		row := *file
		row.ID = 0
		row.DateAdded = &now
		if row.State == "" {
			row.State = domain.FileRegistered
		}
		if row.Permission == "" {
			row.Permission = domain.FilePrivate
		}
		if err := r.conn(dbc).Create(&row).Error; err != nil {
			return translate(err)
		}
		file.ID = row.ID
	}
	return nil
}

func (r *dataFileRepo) GetByName(dbc dbctx.Context, datasetID, name string) (*domain.DataFile, error) {
	var file domain.DataFile
	err := r.conn(dbc).Where("ds_id = ? AND name = ?", datasetID, name).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("file %s of dataset %s: %w", name, datasetID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &file, nil
}

func (r *dataFileRepo) MarkUploaded(dbc dbctx.Context, datasetID, name, path, mimeType string, size int64, checksum string) error {
	res := r.conn(dbc).Model(&domain.DataFile{}).
		Where("ds_id = ? AND name = ?", datasetID, name).
		Updates(map[string]interface{}{
			"path":           path,
			"mime_type":      mimeType,
			"size":           size,
			"checksum_value": checksum,
			"state":          domain.FileUploaded,
			"date_added":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("file %s of dataset %s: %w", name, datasetID, apperr.ErrNotFound)
	}
	return nil
}

func (r *dataFileRepo) UpdatePermission(dbc dbctx.Context, datasetID, name string, permission domain.FilePermission) error {
	res := r.conn(dbc).Model(&domain.DataFile{}).
		Where("ds_id = ? AND name = ?", datasetID, name).
		Update("permissions", permission)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("file %s of dataset %s: %w", name, datasetID, apperr.ErrNotFound)
	}
	return nil
}

func (r *dataFileRepo) DeleteByName(dbc dbctx.Context, datasetID, name string) error {
	return r.conn(dbc).
		Where("ds_id = ? AND name = ?", datasetID, name).
		Delete(&domain.DataFile{}).Error
}

func (r *dataFileRepo) ListByDataset(dbc dbctx.Context, datasetID string) ([]*domain.DataFile, error) {
	var rows []*domain.DataFile
	if err := r.conn(dbc).
		Where("ds_id = ?", datasetID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *dataFileRepo) ListByState(dbc dbctx.Context, datasetID string, state domain.FileState) ([]*domain.DataFile, error) {
	var rows []*domain.DataFile
	if err := r.conn(dbc).
		Where("ds_id = ? AND state = ?", datasetID, state).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *dataFileRepo) ListWithContent(dbc dbctx.Context, datasetID string) ([]*domain.DataFile, error) {
	var rows []*domain.DataFile
	if err := r.conn(dbc).
		Where("ds_id = ? AND state <> ?", datasetID, domain.FileRegistered).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *dataFileRepo) CountByState(dbc dbctx.Context, datasetID string, state domain.FileState) (int64, error) {
	var count int64
	if err := r.conn(dbc).Model(&domain.DataFile{}).
		Where("ds_id = ? AND state = ?", datasetID, state).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *dataFileRepo) CountByDataset(dbc dbctx.Context, datasetID string) (int64, error) {
	var count int64
	if err := r.conn(dbc).Model(&domain.DataFile{}).
		Where("ds_id = ?", datasetID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
