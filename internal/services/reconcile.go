package services

import (
	"path/filepath"

	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// ReconcileOutcome reports what a manifest reconciliation changed and whether
// the dataset ended up with every declared file present.
type ReconcileOutcome struct {
	Added   []string
	Deleted []string
	Updated []string
	Ready   bool
}

// ReconcileService converges the stored file rows of a dataset onto the
// declared manifest: rows for undeclared files go away, missing declarations
// appear as REGISTERED placeholders, and permission changes apply in place so
// already-uploaded bytes are never re-requested.
type ReconcileService interface {
	Reconcile(dbc dbctx.Context, datasetID string, declared []types.FileEntry) (*ReconcileOutcome, error)
	// RecomputeReadiness re-derives the dataset state from its file rows.
	RecomputeReadiness(dbc dbctx.Context, datasetID string) (bool, error)
}

type reconcileService struct {
	log         *logger.Logger
	datasetRepo deposit.DatasetRepo
	fileRepo    deposit.DataFileRepo
	fileOps     FileOps
	workRoot    string
}

func NewReconcileService(log *logger.Logger, datasetRepo deposit.DatasetRepo, fileRepo deposit.DataFileRepo, fileOps FileOps, workRoot string) ReconcileService {
	serviceLog := log.With("service", "ReconcileService")
	return &reconcileService{
		log:         serviceLog,
		datasetRepo: datasetRepo,
		fileRepo:    fileRepo,
		fileOps:     fileOps,
		workRoot:    workRoot,
	}
}

func (s *reconcileService) Reconcile(dbc dbctx.Context, datasetID string, declared []types.FileEntry) (*ReconcileOutcome, error) {
	known, err := s.fileRepo.ListByDataset(dbc, datasetID)
	if err != nil {
		return nil, err
	}

	knownByName := make(map[string]*types.DataFile, len(known))
	for _, file := range known {
		knownByName[file.Name] = file
	}
	declaredByName := make(map[string]types.FileEntry, len(declared))
	for _, entry := range declared {
		declaredByName[entry.Name] = entry
	}

	outcome := &ReconcileOutcome{}

	var toCreate []*types.DataFile
	for _, entry := range declared {
		existing, ok := knownByName[entry.Name]
		if !ok {
			toCreate = append(toCreate, &types.DataFile{
				DatasetID:  datasetID,
				Name:       entry.Name,
				Path:       filepath.Join(s.workRoot, datasetID, entry.Name),
				State:      types.FileRegistered,
				Permission: permissionOf(entry),
			})
			outcome.Added = append(outcome.Added, entry.Name)
			continue
		}
		if existing.Permission != permissionOf(entry) {
			if err := s.fileRepo.UpdatePermission(dbc, datasetID, entry.Name, permissionOf(entry)); err != nil {
				return nil, err
			}
			outcome.Updated = append(outcome.Updated, entry.Name)
		}
	}
	if len(toCreate) > 0 {
		if err := s.fileRepo.CreateAll(dbc, toCreate); err != nil {
			return nil, err
		}
	}

	for _, file := range known {
		if _, stillDeclared := declaredByName[file.Name]; stillDeclared {
			continue
		}
		// The physical file goes too: removing the working-directory link
		// also drops the stored blob behind it.
		path := file.Path
		if path == "" {
			path = filepath.Join(s.workRoot, datasetID, file.Name)
		}
		if err := s.fileOps.Remove(path); err != nil {
			return nil, err
		}
		if err := s.fileRepo.DeleteByName(dbc, datasetID, file.Name); err != nil {
			return nil, err
		}
		outcome.Deleted = append(outcome.Deleted, file.Name)
	}

	ready, err := s.RecomputeReadiness(dbc, datasetID)
	if err != nil {
		return nil, err
	}
	outcome.Ready = ready

	s.log.Debug("Reconciled manifest",
		"dataset", datasetID,
		"added", len(outcome.Added),
		"deleted", len(outcome.Deleted),
		"updated", len(outcome.Updated),
		"ready", ready)
	return outcome, nil
}

func (s *reconcileService) RecomputeReadiness(dbc dbctx.Context, datasetID string) (bool, error) {
	pending, err := s.fileRepo.CountByState(dbc, datasetID, types.FileRegistered)
	if err != nil {
		return false, err
	}
	ready := pending == 0

	ds, err := s.datasetRepo.Get(dbc, datasetID)
	if err != nil {
		return false, err
	}
	// A released dataset's state belongs to the chain executor.
	if ds.State == types.DatasetReleased {
		return ready, nil
	}

	next := types.DatasetNotReady
	if ready {
		next = types.DatasetReady
	}
	if ds.State != next {
		if err := s.datasetRepo.SetState(dbc, datasetID, next); err != nil {
			return false, err
		}
	}
	return ready, nil
}

func permissionOf(entry types.FileEntry) types.FilePermission {
	if entry.Private {
		return types.FilePrivate
	}
	return types.FilePublic
}
