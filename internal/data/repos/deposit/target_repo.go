package deposit

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/platform/secrets"
)

type TargetRepoRepo interface {
	CreateAll(dbc dbctx.Context, targets []*domain.TargetRepo) error
	// ReplaceAll swaps a dataset's chain for a new one. Rows that already
	// finished with a terminal success keep their stored result; the matching
	// new descriptor row is dropped rather than re-queued.
	ReplaceAll(dbc dbctx.Context, datasetID string, targets []*domain.TargetRepo) error
	Get(dbc dbctx.Context, datasetID, name string) (*domain.TargetRepo, error)
	ListByDataset(dbc dbctx.Context, datasetID string) ([]*domain.TargetRepo, error)
	ListUnfinished(dbc dbctx.Context, datasetID string) ([]*domain.TargetRepo, error)
	UpdateDepositState(dbc dbctx.Context, datasetID, name string, status domain.DepositStatus, output datatypes.JSON, duration float64) error
	AnyTerminalSuccess(dbc dbctx.Context, datasetID string) (bool, error)
	AllTerminalSuccess(dbc dbctx.Context, datasetID string) (bool, error)
}

type targetRepoRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	codec *secrets.Codec
}

func NewTargetRepoRepo(db *gorm.DB, baseLog *logger.Logger, codec *secrets.Codec) TargetRepoRepo {
	repoLog := baseLog.With("repo", "TargetRepoRepo")
	return &targetRepoRepo{db: db, log: repoLog, codec: codec}
}

func (r *targetRepoRepo) conn(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *targetRepoRepo) CreateAll(dbc dbctx.Context, targets []*domain.TargetRepo) error {
	// One row at a time so autoincrement ids preserve chain order.
	for _, target := range targets {
		enc, err := r.codec.Encrypt(target.Config)
		if err != nil {
			return err
		}
		row := *target
		row.ID = 0
		row.Config = enc
		if row.DepositStatus == "" {
			row.DepositStatus = domain.DepositInitial
		}
		if err := r.conn(dbc).Create(&row).Error; err != nil {
			return translate(err)
		}
		target.ID = row.ID
	}
	return nil
}

func (r *targetRepoRepo) ReplaceAll(dbc dbctx.Context, datasetID string, targets []*domain.TargetRepo) error {
	run := func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		existing, err := r.ListByDataset(inner, datasetID)
		if err != nil {
			return err
		}
		finished := make(map[string]bool, len(existing))
		for _, target := range existing {
			if target.DepositStatus.IsTerminalSuccess() {
				finished[target.Name] = true
			}
		}
		if err := tx.Where("ds_id = ? AND name NOT IN (?)", datasetID, namesOf(finished)).
			Delete(&domain.TargetRepo{}).Error; err != nil {
			return err
		}
		fresh := make([]*domain.TargetRepo, 0, len(targets))
		for _, target := range targets {
			if finished[target.Name] {
				continue
			}
			fresh = append(fresh, target)
		}
		return r.CreateAll(inner, fresh)
	}
	if dbc.Tx != nil {
		return run(r.conn(dbc))
	}
	return r.db.WithContext(dbc.Ctx).Transaction(run)
}

func namesOf(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	if len(names) == 0 {
		// gorm renders an empty IN () which some drivers reject.
		names = append(names, "")
	}
	return names
}

func (r *targetRepoRepo) Get(dbc dbctx.Context, datasetID, name string) (*domain.TargetRepo, error) {
	var target domain.TargetRepo
	err := r.conn(dbc).Where("ds_id = ? AND name = ?", datasetID, name).First(&target).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("target %s of dataset %s: %w", name, datasetID, apperr.ErrNotFound)
		}
		return nil, err
	}
	if err := r.decryptConfig(&target); err != nil {
		return nil, err
	}
	return &target, nil
}

func (r *targetRepoRepo) ListByDataset(dbc dbctx.Context, datasetID string) ([]*domain.TargetRepo, error) {
	var rows []*domain.TargetRepo
	if err := r.conn(dbc).
		Where("ds_id = ?", datasetID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, target := range rows {
		if err := r.decryptConfig(target); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (r *targetRepoRepo) ListUnfinished(dbc dbctx.Context, datasetID string) ([]*domain.TargetRepo, error) {
	var rows []*domain.TargetRepo
	if err := r.conn(dbc).
		Where("ds_id = ? AND deposit_status NOT IN (?)", datasetID, terminalSuccessStatuses()).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, target := range rows {
		if err := r.decryptConfig(target); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (r *targetRepoRepo) UpdateDepositState(dbc dbctx.Context, datasetID, name string, status domain.DepositStatus, output datatypes.JSON, duration float64) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"deposit_status": status,
		"deposit_time":   now,
		"duration":       duration,
	}
	if output != nil {
		updates["target_output"] = output
	}
	res := r.conn(dbc).Model(&domain.TargetRepo{}).
		Where("ds_id = ? AND name = ?", datasetID, name).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("target %s of dataset %s: %w", name, datasetID, apperr.ErrNotFound)
	}
	return nil
}

func (r *targetRepoRepo) AnyTerminalSuccess(dbc dbctx.Context, datasetID string) (bool, error) {
	var count int64
	if err := r.conn(dbc).Model(&domain.TargetRepo{}).
		Where("ds_id = ? AND deposit_status IN (?)", datasetID, terminalSuccessStatuses()).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *targetRepoRepo) AllTerminalSuccess(dbc dbctx.Context, datasetID string) (bool, error) {
	var pending int64
	if err := r.conn(dbc).Model(&domain.TargetRepo{}).
		Where("ds_id = ? AND deposit_status NOT IN (?)", datasetID, terminalSuccessStatuses()).
		Count(&pending).Error; err != nil {
		return false, err
	}
	return pending == 0, nil
}

func (r *targetRepoRepo) decryptConfig(target *domain.TargetRepo) error {
	if target.Config == "" {
		return nil
	}
	plain, err := r.codec.Decrypt(target.Config)
	if err != nil {
		return fmt.Errorf("decrypt config of target %s: %w", target.Name, err)
	}
	target.Config = plain
	return nil
}

func terminalSuccessStatuses() []domain.DepositStatus {
	return []domain.DepositStatus{
		domain.DepositFinish,
		domain.DepositAccepted,
		domain.DepositSuccess,
		domain.DepositDeposited,
	}
}
