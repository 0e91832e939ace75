package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	"github.com/datastations/packaging-service/internal/data/repos/testutil"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
)

type fakeChain struct {
	triggered atomic.Int64
	resubmits atomic.Int64
}

func (f *fakeChain) Trigger(ctx context.Context, datasetID string) (bool, error) {
	f.triggered.Add(1)
	return true, nil
}

func (f *fakeChain) Resubmit(ctx context.Context, datasetID string) (bool, error) {
	f.resubmits.Add(1)
	return true, nil
}

func (f *fakeChain) Run(ctx context.Context, datasetID string, onlyUnfinished bool) error {
	return nil
}

type fakeTus struct {
	deleted []string
}

func (f *fakeTus) DeleteUpload(ctx context.Context, uploadID string) error {
	f.deleted = append(f.deleted, uploadID)
	return nil
}

func TestCompleteUpload(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	baseLog := testutil.Logger(t)
	codec := testutil.Codec(t)

	datasets := deposit.NewDatasetRepo(db, baseLog, codec)
	files := deposit.NewDataFileRepo(db, baseLog)
	uploads := deposit.NewUploadRecordRepo(db, baseLog)
	reconciler := NewReconcileService(baseLog, datasets, files, NewFileOps(), t.TempDir())
	chain := &fakeChain{}
	tusClient := &fakeTus{}

	uploadDir := t.TempDir()
	storeDir := t.TempDir()
	workRoot := t.TempDir()
	service := NewUploadService(db, baseLog, datasets, files, uploads, reconciler, chain,
		tusClient, NewFileOps(), uploadDir, storeDir, workRoot)

	datasetID := uuid.NewString()
	if err := datasets.Upsert(dbc, &types.Dataset{
		ID:             datasetID,
		Title:          "uploads",
		OwnerID:        "user001",
		AppName:        "test-app",
		ReleaseVersion: types.ReleasePublish,
	}); err != nil {
		t.Fatalf("seed dataset: %v", err)
	}
	if err := files.CreateAll(dbc, []*types.DataFile{{DatasetID: datasetID, Name: "data.csv"}}); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	uploadID := uuid.NewString()
	content := []byte("one,two,three\n")
	if err := os.WriteFile(filepath.Join(uploadDir, uploadID), content, 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if err := uploads.Create(dbc, &types.UploadRecord{
		ID:        uploadID,
		DatasetID: datasetID,
		FileName:  "data.csv",
		Size:      int64(len(content)),
		MimeType:  "text/csv",
	}); err != nil {
		t.Fatalf("seed upload record: %v", err)
	}

	receipt, err := service.CompleteUpload(ctx, datasetID, uploadID)
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if receipt.Status != "OK" || receipt.DatasetID != datasetID || !receipt.StartProcessing {
		t.Fatalf("receipt: %+v", receipt)
	}

	// The blob moved into permanent storage and got linked into the workdir.
	stored := filepath.Join(storeDir, datasetID, "data.csv")
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("stored blob: %v", err)
	}
	link := filepath.Join(workRoot, datasetID, "data.csv")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("workdir link: %v", err)
	}
	if target != stored {
		t.Fatalf("link points to %q, want %q", target, stored)
	}
	if _, err := os.Stat(filepath.Join(uploadDir, uploadID)); !os.IsNotExist(err) {
		t.Fatalf("upload blob still in upload dir")
	}

	file, err := files.GetByName(dbc, datasetID, "data.csv")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if file.State != types.FileUploaded || file.Size != int64(len(content)) || file.Path != link {
		t.Fatalf("file row: %+v", file)
	}

	// Last missing file: dataset ready, one chain trigger, side channel gone.
	ds, _ := datasets.Get(dbc, datasetID)
	if ds.State != types.DatasetReady {
		t.Fatalf("dataset state: %q", ds.State)
	}
	if got := chain.triggered.Load(); got != 1 {
		t.Fatalf("chain triggers: %d", got)
	}
	if len(tusClient.deleted) != 1 || tusClient.deleted[0] != uploadID {
		t.Fatalf("tus cleanup: %v", tusClient.deleted)
	}
	if _, err := uploads.Get(dbc, uploadID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("upload record survived: %v", err)
	}
}

func TestCompleteUploadPreconditions(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	baseLog := testutil.Logger(t)
	codec := testutil.Codec(t)

	datasets := deposit.NewDatasetRepo(db, baseLog, codec)
	files := deposit.NewDataFileRepo(db, baseLog)
	uploads := deposit.NewUploadRecordRepo(db, baseLog)
	reconciler := NewReconcileService(baseLog, datasets, files, NewFileOps(), t.TempDir())

	uploadDir := t.TempDir()
	service := NewUploadService(db, baseLog, datasets, files, uploads, reconciler, &fakeChain{},
		&fakeTus{}, NewFileOps(), uploadDir, t.TempDir(), t.TempDir())

	datasetID := uuid.NewString()
	if err := datasets.Upsert(dbc, &types.Dataset{
		ID:             datasetID,
		OwnerID:        "user001",
		AppName:        "test-app",
		ReleaseVersion: types.ReleaseDraft,
	}); err != nil {
		t.Fatalf("seed dataset: %v", err)
	}
	if err := files.CreateAll(dbc, []*types.DataFile{{DatasetID: datasetID, Name: "data.csv"}}); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	// Unknown upload id.
	if _, err := service.CompleteUpload(ctx, datasetID, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing record: %v", err)
	}

	// Record exists but blob never arrived.
	ghost := uuid.NewString()
	if err := uploads.Create(dbc, &types.UploadRecord{
		ID: ghost, DatasetID: datasetID, FileName: "data.csv", Size: 4,
	}); err != nil {
		t.Fatalf("seed ghost record: %v", err)
	}
	if _, err := service.CompleteUpload(ctx, datasetID, ghost); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing blob: %v", err)
	}

	// Blob exists but its size disagrees with the declared size.
	short := uuid.NewString()
	if err := os.WriteFile(filepath.Join(uploadDir, short), []byte("ab"), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if err := uploads.Create(dbc, &types.UploadRecord{
		ID: short, DatasetID: datasetID, FileName: "data.csv", Size: 99,
	}); err != nil {
		t.Fatalf("seed short record: %v", err)
	}
	if _, err := service.CompleteUpload(ctx, datasetID, short); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("size mismatch: %v", err)
	}
	file, _ := files.GetByName(dbc, datasetID, "data.csv")
	if file.State != types.FileRegistered {
		t.Fatalf("file advanced despite failed preconditions: %+v", file)
	}

	// Upload record pinned to a different dataset.
	other := uuid.NewString()
	if err := datasets.Upsert(dbc, &types.Dataset{
		ID: other, OwnerID: "user001", AppName: "test-app", ReleaseVersion: types.ReleaseDraft,
	}); err != nil {
		t.Fatalf("seed other dataset: %v", err)
	}
	foreign := uuid.NewString()
	if err := uploads.Create(dbc, &types.UploadRecord{
		ID: foreign, DatasetID: other, FileName: "data.csv", Size: 4,
	}); err != nil {
		t.Fatalf("seed foreign record: %v", err)
	}
	if _, err := service.CompleteUpload(ctx, datasetID, foreign); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("foreign record: %v", err)
	}
}

func TestRegisterAndDiscardUpload(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	baseLog := testutil.Logger(t)
	codec := testutil.Codec(t)

	datasets := deposit.NewDatasetRepo(db, baseLog, codec)
	files := deposit.NewDataFileRepo(db, baseLog)
	uploads := deposit.NewUploadRecordRepo(db, baseLog)
	reconciler := NewReconcileService(baseLog, datasets, files, NewFileOps(), t.TempDir())

	service := NewUploadService(db, baseLog, datasets, files, uploads, reconciler, &fakeChain{},
		&fakeTus{}, NewFileOps(), t.TempDir(), t.TempDir(), t.TempDir())

	datasetID := uuid.NewString()
	if err := datasets.Upsert(dbc, &types.Dataset{
		ID: datasetID, OwnerID: "user001", AppName: "test-app", ReleaseVersion: types.ReleasePublish,
	}); err != nil {
		t.Fatalf("seed dataset: %v", err)
	}
	if err := files.CreateAll(dbc, []*types.DataFile{{DatasetID: datasetID, Name: "data.csv"}}); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	uploadID := uuid.NewString()
	record, err := service.RegisterUpload(ctx, UploadRegistration{
		UploadID:  uploadID,
		DatasetID: datasetID,
		FileName:  "data.csv",
		Size:      14,
		MimeType:  "text/csv",
	})
	if err != nil {
		t.Fatalf("RegisterUpload: %v", err)
	}
	if record.ID != uploadID || record.DatasetID != datasetID || record.FileName != "data.csv" {
		t.Fatalf("record: %+v", record)
	}

	// The record is now visible to completion.
	got, err := uploads.Get(dbc, uploadID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Size != 14 || got.MimeType != "text/csv" {
		t.Fatalf("stored record: %+v", got)
	}

	// Unknown dataset and undeclared file are rejected up front.
	if _, err := service.RegisterUpload(ctx, UploadRegistration{
		UploadID: uuid.NewString(), DatasetID: uuid.NewString(), FileName: "data.csv", Size: 1,
	}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown dataset: %v", err)
	}
	if _, err := service.RegisterUpload(ctx, UploadRegistration{
		UploadID: uuid.NewString(), DatasetID: datasetID, FileName: "ghost.csv", Size: 1,
	}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("undeclared file: %v", err)
	}
	if _, err := service.RegisterUpload(ctx, UploadRegistration{
		DatasetID: datasetID, FileName: "data.csv",
	}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("missing upload id: %v", err)
	}

	// A terminated upload leaves no record behind.
	if err := service.DiscardUpload(ctx, uploadID); err != nil {
		t.Fatalf("DiscardUpload: %v", err)
	}
	if _, err := uploads.Get(dbc, uploadID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("record survived discard: %v", err)
	}
}
