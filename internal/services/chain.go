package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/datastations/packaging-service/internal/bridge"
	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/platform/mailer"
	"github.com/datastations/packaging-service/internal/platform/notify"
	"github.com/datastations/packaging-service/internal/platform/transformer"
)

// ChainService runs a dataset's deposit chain: every target in insertion
// order, one fresh adapter per step, halting on the first step that does not
// end in a terminal success. Each step's result is persisted whatever the
// outcome, so a crashed run leaves an inspectable trail.
type ChainService interface {
	// Trigger begins a detached chain run if this caller wins the dataset's
	// ready-to-released transition. Duplicate triggers report false.
	Trigger(ctx context.Context, datasetID string) (bool, error)
	// Resubmit re-runs only the unfinished targets of an already-submitted
	// dataset, detached.
	Resubmit(ctx context.Context, datasetID string) (bool, error)
	// Run executes the chain synchronously. Exported for the trigger paths
	// and for tests; production callers go through Trigger/Resubmit.
	Run(ctx context.Context, datasetID string, onlyUnfinished bool) error
}

type chainService struct {
	db          *gorm.DB
	log         *logger.Logger
	datasetRepo deposit.DatasetRepo
	targetRepo  deposit.TargetRepoRepo
	fileRepo    deposit.DataFileRepo
	registry    *bridge.Registry
	transformer transformer.Client
	mail        mailer.Client
	publisher   notify.Publisher
	fileOps     FileOps
	workRoot    string
	group       singleflight.Group

	runMu   sync.Mutex
	running map[string]struct{}
}

func NewChainService(
	db *gorm.DB,
	log *logger.Logger,
	datasetRepo deposit.DatasetRepo,
	targetRepo deposit.TargetRepoRepo,
	fileRepo deposit.DataFileRepo,
	registry *bridge.Registry,
	transformerClient transformer.Client,
	mail mailer.Client,
	publisher notify.Publisher,
	fileOps FileOps,
	workRoot string,
) ChainService {
	serviceLog := log.With("service", "ChainService")
	return &chainService{
		db:          db,
		log:         serviceLog,
		datasetRepo: datasetRepo,
		targetRepo:  targetRepo,
		fileRepo:    fileRepo,
		registry:    registry,
		transformer: transformerClient,
		mail:        mail,
		publisher:   publisher,
		fileOps:     fileOps,
		workRoot:    workRoot,
		running:     map[string]struct{}{},
	}
}

// beginRun marks a dataset's chain as in flight. At most one run per dataset
// exists at any moment; Trigger and Resubmit both pass through here.
func (s *chainService) beginRun(datasetID string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, inFlight := s.running[datasetID]; inFlight {
		return false
	}
	s.running[datasetID] = struct{}{}
	return true
}

func (s *chainService) endRun(datasetID string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	delete(s.running, datasetID)
}

func (s *chainService) Trigger(ctx context.Context, datasetID string) (bool, error) {
	result, err, _ := s.group.Do(datasetID, func() (interface{}, error) {
		dbc := dbctx.Context{Ctx: ctx}
		won, err := s.datasetRepo.TryBeginSubmission(dbc, datasetID)
		if err != nil {
			return false, err
		}
		if !won {
			return false, nil
		}
		return s.runDetached(datasetID, false), nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (s *chainService) Resubmit(ctx context.Context, datasetID string) (bool, error) {
	// Same singleflight key as Trigger, so a resubmit can neither race
	// another resubmit nor a fresh trigger for the same dataset.
	result, err, _ := s.group.Do(datasetID, func() (interface{}, error) {
		dbc := dbctx.Context{Ctx: ctx}
		ds, err := s.datasetRepo.Get(dbc, datasetID)
		if err != nil {
			return false, err
		}
		if ds.SubmittedDate == nil {
			return false, nil
		}
		unfinished, err := s.targetRepo.ListUnfinished(dbc, datasetID)
		if err != nil {
			return false, err
		}
		if len(unfinished) == 0 {
			return false, nil
		}
		return s.runDetached(datasetID, true), nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// runDetached supervises one chain run on its own goroutine and reports
// whether it started: a dataset whose chain is still in flight is left
// alone. Nothing is shared across runs except the repos, which are safe for
// concurrent use.
func (s *chainService) runDetached(datasetID string, onlyUnfinished bool) bool {
	if !s.beginRun(datasetID) {
		s.log.Warn("Chain already running", "dataset", datasetID)
		return false
	}
	go func() {
		defer s.endRun(datasetID)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Chain run panicked", "dataset", datasetID, "panic", r)
			}
		}()
		if err := s.Run(context.Background(), datasetID, onlyUnfinished); err != nil {
			s.log.Error("Chain run failed", "dataset", datasetID, "error", err)
		}
	}()
	return true
}

func (s *chainService) Run(ctx context.Context, datasetID string, onlyUnfinished bool) error {
	dbc := dbctx.Context{Ctx: ctx}
	log := s.log.With("dataset", datasetID)

	ds, err := s.datasetRepo.Get(dbc, datasetID)
	if err != nil {
		return err
	}
	files, err := s.fileRepo.ListByDataset(dbc, datasetID)
	if err != nil {
		return err
	}

	all, err := s.targetRepo.ListByDataset(dbc, datasetID)
	if err != nil {
		return err
	}

	// Predecessor outputs feed input resolution, including outputs persisted
	// by earlier runs when resubmitting.
	results := make(map[string]*types.DepositResult, len(all))
	for _, target := range all {
		if len(target.Output) == 0 {
			continue
		}
		var prior types.DepositResult
		if err := json.Unmarshal(target.Output, &prior); err == nil {
			results[target.Name] = &prior
		}
	}

	targets := all
	if onlyUnfinished {
		targets, err = s.targetRepo.ListUnfinished(dbc, datasetID)
		if err != nil {
			return err
		}
	}

	for _, target := range targets {
		result := s.runTarget(ctx, ds, files, target, results, log)
		results[target.Name] = result

		output, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			log.Error("Deposit result marshal failed", "target", target.Name, "error", marshalErr)
			output = []byte(`{"deposit-status":"error"}`)
		}
		duration := result.ResponseDuration()
		if err := s.targetRepo.UpdateDepositState(dbc, datasetID, target.Name, result.Status, datatypes.JSON(output), duration); err != nil {
			return fmt.Errorf("persist result for %s: %w", target.Name, err)
		}
		s.publishProgress(ctx, ds, target.Name, result.Status)

		if !result.Status.IsTerminalSuccess() {
			log.Warn("Chain halted", "target", target.Name, "status", result.Status)
			s.alertOperators(ctx, ds, target.Name, result)
			return nil
		}
		log.Info("Target deposited", "target", target.Name, "status", result.Status)
	}

	done, err := s.targetRepo.AllTerminalSuccess(dbc, datasetID)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	if ds.ReleaseVersion == types.ReleasePublish {
		if err := s.datasetRepo.SetPublished(dbc, datasetID); err != nil {
			return err
		}
	}
	// The working directory only goes away once every target succeeded.
	if err := s.fileOps.RemoveTree(filepath.Join(s.workRoot, datasetID)); err != nil {
		log.Warn("Working directory cleanup failed", "error", err)
	}
	log.Info("Chain completed")
	return nil
}

// runTarget is the single place adapter faults are normalized: a factory
// miss, an adapter error, or an adapter panic all become an ERROR result.
func (s *chainService) runTarget(
	ctx context.Context,
	ds *types.Dataset,
	files []*types.DataFile,
	target *types.TargetRepo,
	results map[string]*types.DepositResult,
	log *logger.Logger,
) (result *types.DepositResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Adapter panicked", "target", target.Name, "panic", r)
			result = errorResult(fmt.Errorf("adapter panic: %v", r), started)
		}
	}()

	var descriptor types.TargetDescriptor
	if err := json.Unmarshal([]byte(target.Config), &descriptor); err != nil {
		return errorResult(fmt.Errorf("target config decode: %w", err), started)
	}
	factory, err := s.registry.Resolve(descriptor.Adapter)
	if err != nil {
		return errorResult(err, started)
	}

	task := bridge.Task{
		Dataset:    ds,
		Files:      files,
		Descriptor: descriptor,
		WorkDir:    filepath.Join(s.workRoot, ds.ID),
		ResolveInput: func(fromTargetName string) (types.IdentifierItem, bool) {
			prior, ok := results[fromTargetName]
			if !ok {
				return types.IdentifierItem{}, false
			}
			return prior.FirstIdentifier()
		},
		Transformer: s.transformer,
		Log:         log,
	}

	depositor := factory(task)
	result, err = depositor.Deposit(ctx)
	if err != nil {
		return errorResult(err, started)
	}
	if result == nil {
		return errorResult(fmt.Errorf("adapter returned no result"), started)
	}
	if result.Response != nil && result.Response.Duration == 0 {
		result.Response.Duration = time.Since(started).Seconds()
	}
	return result
}

func errorResult(err error, started time.Time) *types.DepositResult {
	result := types.NewDepositResult()
	result.Status = types.DepositError
	result.Notes = err.Error()
	result.Response = &types.TargetResponse{
		Duration: time.Since(started).Seconds(),
		Status:   types.DepositError,
		Error:    err.Error(),
	}
	return result
}

func (s *chainService) publishProgress(ctx context.Context, ds *types.Dataset, targetName string, status types.DepositStatus) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, notify.ProgressEvent{
		DatasetID:     ds.ID,
		OwnerID:       ds.OwnerID,
		TargetName:    targetName,
		DepositStatus: string(status),
	})
}

func (s *chainService) alertOperators(ctx context.Context, ds *types.Dataset, targetName string, result *types.DepositResult) {
	if s.mail == nil {
		return
	}
	text := fmt.Sprintf("Deposit of dataset %s halted at target %s with status %s.\nNotes: %s",
		ds.ID, targetName, result.Status, result.Notes)
	if err := s.mail.Send(ctx, mailer.SendEmailRequest{
		Subject: fmt.Sprintf("Deposit halted: %s", ds.ID),
		Text:    text,
	}); err != nil {
		s.log.Warn("Operator alert failed", "dataset", ds.ID, "error", err)
	}
}
