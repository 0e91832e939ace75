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

type UploadRecordRepo interface {
	Create(dbc dbctx.Context, rec *domain.UploadRecord) error
	Get(dbc dbctx.Context, id string) (*domain.UploadRecord, error)
	Delete(dbc dbctx.Context, id string) error
	ListByDataset(dbc dbctx.Context, datasetID string) ([]*domain.UploadRecord, error)
}

type uploadRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadRecordRepo(db *gorm.DB, baseLog *logger.Logger) UploadRecordRepo {
	repoLog := baseLog.With("repo", "UploadRecordRepo")
	return &uploadRecordRepo{db: db, log: repoLog}
}

func (r *uploadRecordRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *uploadRecordRepo) Create(dbc dbctx.Context, rec *domain.UploadRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("upload id required: %w", apperr.ErrInvalidArgument)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := r.conn(dbc).Create(rec).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *uploadRecordRepo) Get(dbc dbctx.Context, id string) (*domain.UploadRecord, error) {
	var rec domain.UploadRecord
	if err := r.conn(dbc).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("upload %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

func (r *uploadRecordRepo) Delete(dbc dbctx.Context, id string) error {
	return r.conn(dbc).Where("id = ?", id).Delete(&domain.UploadRecord{}).Error
}

func (r *uploadRecordRepo) ListByDataset(dbc dbctx.Context, datasetID string) ([]*domain.UploadRecord, error) {
	var rows []*domain.UploadRecord
	if err := r.conn(dbc).
		Where("ds_id = ?", datasetID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
