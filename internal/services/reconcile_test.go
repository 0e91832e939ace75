package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/datastations/packaging-service/internal/data/repos/deposit"
	"github.com/datastations/packaging-service/internal/data/repos/testutil"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
)

func TestReconcile(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	baseLog := testutil.Logger(t)
	datasets := deposit.NewDatasetRepo(db, baseLog, testutil.Codec(t))
	files := deposit.NewDataFileRepo(db, baseLog)
	workRoot := t.TempDir()
	reconciler := NewReconcileService(baseLog, datasets, files, NewFileOps(), workRoot)

	ds := testutil.SeedDataset(t, ctx, tx, "user001", types.DatasetNotReady, types.ReleasePublish)

	// First declaration creates placeholders and the dataset is not ready.
	outcome, err := reconciler.Reconcile(dbc, ds.ID, []types.FileEntry{
		{Name: "a.csv", Private: true},
		{Name: "b.csv"},
		{Name: "c.csv"},
	})
	if err != nil {
		t.Fatalf("Reconcile #1: %v", err)
	}
	if len(outcome.Added) != 3 || len(outcome.Deleted) != 0 || outcome.Ready {
		t.Fatalf("Reconcile #1: %+v", outcome)
	}
	a, _ := files.GetByName(dbc, ds.ID, "a.csv")
	if a.Permission != types.FilePrivate || a.State != types.FileRegistered {
		t.Fatalf("a.csv: %+v", a)
	}
	if a.Path != filepath.Join(workRoot, ds.ID, "a.csv") {
		t.Fatalf("a.csv placeholder path: %q", a.Path)
	}

	// Uploads arrive for a and b.
	for _, name := range []string{"a.csv", "b.csv"} {
		if err := files.MarkUploaded(dbc, ds.ID, name, "/work/"+name, "text/csv", 10, ""); err != nil {
			t.Fatalf("MarkUploaded %s: %v", name, err)
		}
	}

	// Dropping c from the manifest makes the dataset ready without asking
	// for any re-upload.
	outcome, err = reconciler.Reconcile(dbc, ds.ID, []types.FileEntry{
		{Name: "a.csv", Private: true},
		{Name: "b.csv"},
	})
	if err != nil {
		t.Fatalf("Reconcile #2: %v", err)
	}
	if len(outcome.Added) != 0 || len(outcome.Deleted) != 1 || outcome.Deleted[0] != "c.csv" {
		t.Fatalf("Reconcile #2: %+v", outcome)
	}
	if !outcome.Ready {
		t.Fatalf("Reconcile #2: expected ready")
	}
	got, _ := datasets.Get(dbc, ds.ID)
	if got.State != types.DatasetReady {
		t.Fatalf("dataset state: %q", got.State)
	}

	// The same manifest again is a no-op.
	outcome, err = reconciler.Reconcile(dbc, ds.ID, []types.FileEntry{
		{Name: "a.csv", Private: true},
		{Name: "b.csv"},
	})
	if err != nil {
		t.Fatalf("Reconcile #3: %v", err)
	}
	if len(outcome.Added)+len(outcome.Deleted)+len(outcome.Updated) != 0 || !outcome.Ready {
		t.Fatalf("Reconcile #3 not idempotent: %+v", outcome)
	}
	a, _ = files.GetByName(dbc, ds.ID, "a.csv")
	if a.State != types.FileUploaded {
		t.Fatalf("a.csv lost its upload: %+v", a)
	}

	// A permission flip is an in-place update, never delete-and-recreate.
	outcome, err = reconciler.Reconcile(dbc, ds.ID, []types.FileEntry{
		{Name: "a.csv"},
		{Name: "b.csv"},
	})
	if err != nil {
		t.Fatalf("Reconcile #4: %v", err)
	}
	if len(outcome.Updated) != 1 || outcome.Updated[0] != "a.csv" || !outcome.Ready {
		t.Fatalf("Reconcile #4: %+v", outcome)
	}
	a, _ = files.GetByName(dbc, ds.ID, "a.csv")
	if a.Permission != types.FilePublic || a.State != types.FileUploaded {
		t.Fatalf("a.csv after permission flip: %+v", a)
	}

	// Declaring a new file flips the dataset back to not-ready.
	outcome, err = reconciler.Reconcile(dbc, ds.ID, []types.FileEntry{
		{Name: "a.csv"},
		{Name: "b.csv"},
		{Name: "d.csv"},
	})
	if err != nil {
		t.Fatalf("Reconcile #5: %v", err)
	}
	if outcome.Ready {
		t.Fatalf("Reconcile #5: ready with pending upload")
	}
	got, _ = datasets.Get(dbc, ds.ID)
	if got.State != types.DatasetNotReady {
		t.Fatalf("dataset state after new declaration: %q", got.State)
	}
}

func TestReconcileDeleteRemovesPhysicalFile(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	baseLog := testutil.Logger(t)
	datasets := deposit.NewDatasetRepo(db, baseLog, testutil.Codec(t))
	files := deposit.NewDataFileRepo(db, baseLog)
	workRoot := t.TempDir()
	storeDir := t.TempDir()
	reconciler := NewReconcileService(baseLog, datasets, files, NewFileOps(), workRoot)

	ds := testutil.SeedDataset(t, ctx, tx, "user001", types.DatasetReady, types.ReleasePublish)
	testutil.SeedDataFile(t, ctx, tx, ds.ID, "old.csv", types.FileUploaded)

	// The uploaded file lives as a stored blob behind a working-dir symlink.
	blob := filepath.Join(storeDir, "old.csv")
	if err := os.WriteFile(blob, []byte("col1,col2\n"), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	link := filepath.Join(workRoot, ds.ID, "old.csv")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatalf("mkdir workdir: %v", err)
	}
	if err := os.Symlink(blob, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := files.MarkUploaded(dbc, ds.ID, "old.csv", link, "text/csv", 10, ""); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}

	// Declaring a manifest without the file drops the row, the working-dir
	// link, and the stored blob behind it.
	outcome, err := reconciler.Reconcile(dbc, ds.ID, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(outcome.Deleted) != 1 || outcome.Deleted[0] != "old.csv" {
		t.Fatalf("outcome: %+v", outcome)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatalf("working-dir link survived delete: %v", err)
	}
	if _, err := os.Stat(blob); !os.IsNotExist(err) {
		t.Fatalf("stored blob survived delete: %v", err)
	}
	if _, err := files.GetByName(dbc, ds.ID, "old.csv"); err == nil {
		t.Fatalf("file row survived delete")
	}
}
