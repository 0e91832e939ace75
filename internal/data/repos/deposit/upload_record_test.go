package deposit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/datastations/packaging-service/internal/data/repos/testutil"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
)

func TestUploadRecordRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewUploadRecordRepo(db, testutil.Logger(t))

	ds := testutil.SeedDataset(t, ctx, tx, "user001", types.DatasetNotReady, types.ReleaseDraft)

	rec := &types.UploadRecord{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		FileName:  "data.csv",
		Size:      2048,
		MimeType:  "text/csv",
		Info:      datatypes.JSON([]byte(`{"metadata":{"fileName":"data.csv"}}`)),
	}
	if err := repo.Create(dbc, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatalf("Create did not stamp CreatedAt")
	}

	got, err := repo.Get(dbc, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FileName != "data.csv" || got.Size != 2048 {
		t.Fatalf("Get: %+v", got)
	}

	if _, err := repo.Get(dbc, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}

	if err := repo.Create(dbc, &types.UploadRecord{}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("Create without id: expected ErrInvalidArgument, got %v", err)
	}

	listed, err := repo.ListByDataset(dbc, ds.ID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListByDataset: err=%v len=%d", err, len(listed))
	}

	if err := repo.Delete(dbc, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(dbc, rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}
}
