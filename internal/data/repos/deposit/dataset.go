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
	"github.com/datastations/packaging-service/internal/platform/secrets"
)

type DatasetRepo interface {
	Upsert(dbc dbctx.Context, ds *domain.Dataset) error
	Get(dbc dbctx.Context, id string) (*domain.Dataset, error)
	Exists(dbc dbctx.Context, id string) (bool, error)
	IsPublished(dbc dbctx.Context, id string) (bool, error)
	SetState(dbc dbctx.Context, id string, state domain.DatasetState) error
	SetPublished(dbc dbctx.Context, id string) error
	MarkSubmitted(dbc dbctx.Context, id string) error
	// TryBeginSubmission atomically flips a READY dataset in PUBLISH release
	// to RELEASED and reports whether this caller won the transition. Losing
	// callers must not start a chain.
	TryBeginSubmission(dbc dbctx.Context, id string) (bool, error)
	DeleteCascade(dbc dbctx.Context, id string) error
	ListIDsByOwner(dbc dbctx.Context, ownerID string) ([]string, error)
	ListByOwner(dbc dbctx.Context, ownerID string) ([]*domain.Dataset, error)
}

type datasetRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	codec *secrets.Codec
}

func NewDatasetRepo(db *gorm.DB, baseLog *logger.Logger, codec *secrets.Codec) DatasetRepo {
	repoLog := baseLog.With("repo", "DatasetRepo")
	return &datasetRepo{db: db, log: repoLog, codec: codec}
}

func (r *datasetRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *datasetRepo) Upsert(dbc dbctx.Context, ds *domain.Dataset) error {
	if ds == nil || ds.ID == "" {
		return fmt.Errorf("dataset id required: %w", apperr.ErrInvalidArgument)
	}
	enc, err := r.codec.Encrypt(ds.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var existing domain.Dataset
	err = r.conn(dbc).Where("id = ?", ds.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := *ds
		row.Metadata = enc
		row.CreatedDate = now
		row.SavedDate = now
		if row.State == "" {
			row.State = domain.DatasetNotReady
		}
		if createErr := r.conn(dbc).Create(&row).Error; createErr != nil {
			return translate(createErr)
		}
		return nil
	case err != nil:
		return err
	}

	updates := map[string]interface{}{
		"title":           ds.Title,
		"md":              enc,
		"release_version": ds.ReleaseVersion,
		"state":           ds.State,
		"saved_date":      now,
	}
	return r.conn(dbc).Model(&domain.Dataset{}).Where("id = ?", ds.ID).Updates(updates).Error
}

func (r *datasetRepo) Get(dbc dbctx.Context, id string) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := r.conn(dbc).Where("id = ?", id).First(&ds).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dataset %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	if ds.Metadata != "" {
		plain, err := r.codec.Decrypt(ds.Metadata)
		if err != nil {
			return nil, fmt.Errorf("decrypt dataset %s metadata: %w", id, err)
		}
		ds.Metadata = plain
	}
	return &ds, nil
}

func (r *datasetRepo) Exists(dbc dbctx.Context, id string) (bool, error) {
	var count int64
	if err := r.conn(dbc).Model(&domain.Dataset{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *datasetRepo) IsPublished(dbc dbctx.Context, id string) (bool, error) {
	var count int64
	if err := r.conn(dbc).Model(&domain.Dataset{}).
		Where("id = ? AND release_version = ?", id, domain.ReleasePublished).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *datasetRepo) SetState(dbc dbctx.Context, id string, state domain.DatasetState) error {
	return r.conn(dbc).Model(&domain.Dataset{}).
		Where("id = ?", id).
		Update("state", state).Error
}

func (r *datasetRepo) SetPublished(dbc dbctx.Context, id string) error {
	return r.conn(dbc).Model(&domain.Dataset{}).
		Where("id = ?", id).
		Update("release_version", domain.ReleasePublished).Error
}

func (r *datasetRepo) MarkSubmitted(dbc dbctx.Context, id string) error {
	now := time.Now().UTC()
	return r.conn(dbc).Model(&domain.Dataset{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"submitted_date": now, "saved_date": now}).Error
}

func (r *datasetRepo) TryBeginSubmission(dbc dbctx.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.conn(dbc).Model(&domain.Dataset{}).
		Where("id = ? AND state = ? AND release_version = ?",
			id, domain.DatasetReady, domain.ReleasePublish).
		Updates(map[string]interface{}{
			"state":          domain.DatasetReleased,
			"submitted_date": now,
			"saved_date":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *datasetRepo) DeleteCascade(dbc dbctx.Context, id string) error {
	run := func(tx *gorm.DB) error {
		if err := tx.Where("ds_id = ?", id).Delete(&domain.DataFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ds_id = ?", id).Delete(&domain.TargetRepo{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ds_id = ?", id).Delete(&domain.UploadRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Dataset{}).Error
	}
	if dbc.Tx != nil {
		return run(r.conn(dbc))
	}
	return r.db.WithContext(dbc.Ctx).Transaction(run)
}

func (r *datasetRepo) ListIDsByOwner(dbc dbctx.Context, ownerID string) ([]string, error) {
	var ids []string
	if err := r.conn(dbc).Model(&domain.Dataset{}).
		Where("owner_id = ?", ownerID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *datasetRepo) ListByOwner(dbc dbctx.Context, ownerID string) ([]*domain.Dataset, error) {
	var rows []*domain.Dataset
	if err := r.conn(dbc).
		Where("owner_id = ?", ownerID).
		Order("created_date DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, ds := range rows {
		if ds.Metadata == "" {
			continue
		}
		plain, err := r.codec.Decrypt(ds.Metadata)
		if err != nil {
			return nil, fmt.Errorf("decrypt dataset %s metadata: %w", ds.ID, err)
		}
		ds.Metadata = plain
	}
	return rows, nil
}

// translate maps driver-level uniqueness violations onto the shared conflict
// sentinel so handlers can answer 409 instead of 500.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%v: %w", err, apperr.ErrConflict)
	}
	return err
}
