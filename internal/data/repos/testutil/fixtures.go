package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/datastations/packaging-service/internal/domain"
)

// SeedDataset inserts a dataset row directly, bypassing the repo layer so
// tests can control state without triggering encryption.
func SeedDataset(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID string, state types.DatasetState, release types.ReleaseVersion) *types.Dataset {
	tb.Helper()
	now := time.Now().UTC()
	ds := &types.Dataset{
		ID:             uuid.NewString(),
		Title:          "dataset",
		OwnerID:        ownerID,
		AppName:        "test-app",
		ReleaseVersion: release,
		State:          state,
		CreatedDate:    now,
		SavedDate:      now,
	}
	if err := tx.WithContext(ctx).Create(ds).Error; err != nil {
		tb.Fatalf("seed dataset: %v", err)
	}
	return ds
}

func SeedTargetRepo(tb testing.TB, ctx context.Context, tx *gorm.DB, datasetID, name string, status types.DepositStatus) *types.TargetRepo {
	tb.Helper()
	target := &types.TargetRepo{
		DatasetID:     datasetID,
		Name:          name,
		DisplayName:   name,
		URL:           "https://repo.example.org/" + name,
		DepositStatus: status,
	}
	if err := tx.WithContext(ctx).Create(target).Error; err != nil {
		tb.Fatalf("seed target repo: %v", err)
	}
	return target
}

func SeedDataFile(tb testing.TB, ctx context.Context, tx *gorm.DB, datasetID, name string, state types.FileState) *types.DataFile {
	tb.Helper()
	now := time.Now().UTC()
	file := &types.DataFile{
		DatasetID:  datasetID,
		Name:       name,
		State:      state,
		Permission: types.FilePrivate,
		DateAdded:  &now,
	}
	if err := tx.WithContext(ctx).Create(file).Error; err != nil {
		tb.Fatalf("seed data file: %v", err)
	}
	return file
}

func SeedUploadRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, datasetID, fileName string, size int64) *types.UploadRecord {
	tb.Helper()
	rec := &types.UploadRecord{
		ID:        uuid.NewString(),
		DatasetID: datasetID,
		FileName:  fileName,
		Size:      size,
		MimeType:  "application/octet-stream",
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed upload record: %v", err)
	}
	return rec
}
