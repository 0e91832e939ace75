package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveTreeFollowsSymlinks(t *testing.T) {
	ops := NewFileOps()
	store := t.TempDir()
	work := filepath.Join(t.TempDir(), "ds-1")

	blob := filepath.Join(store, "data.csv")
	if err := os.WriteFile(blob, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	link := filepath.Join(work, "data.csv")
	if err := ops.Symlink(blob, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	plain := filepath.Join(work, "notes.txt")
	if err := os.WriteFile(plain, []byte("y"), 0o644); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	if err := ops.RemoveTree(work); err != nil {
		t.Fatalf("RemoveTree: %v", err)
	}
	if _, err := os.Stat(work); !os.IsNotExist(err) {
		t.Fatalf("working dir survived")
	}
	// The symlinked blob is gone too; orphaned bytes never pile up.
	if _, err := os.Stat(blob); !os.IsNotExist(err) {
		t.Fatalf("blob survived RemoveTree")
	}

	// Removing a missing dir is a no-op.
	if err := ops.RemoveTree(filepath.Join(store, "missing")); err != nil {
		t.Fatalf("RemoveTree missing: %v", err)
	}
}

func TestRemoveFollowsSymlink(t *testing.T) {
	ops := NewFileOps()
	store := t.TempDir()
	work := t.TempDir()

	blob := filepath.Join(store, "data.csv")
	if err := os.WriteFile(blob, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	link := filepath.Join(work, "data.csv")
	if err := ops.Symlink(blob, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	if err := ops.Remove(link); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatalf("link survived Remove")
	}
	if _, err := os.Stat(blob); !os.IsNotExist(err) {
		t.Fatalf("blob survived Remove")
	}

	// Plain files and missing paths work too.
	plain := filepath.Join(work, "notes.txt")
	if err := os.WriteFile(plain, []byte("y"), 0o644); err != nil {
		t.Fatalf("write plain: %v", err)
	}
	if err := ops.Remove(plain); err != nil {
		t.Fatalf("Remove plain: %v", err)
	}
	if err := ops.Remove(filepath.Join(work, "missing")); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
}

func TestStat(t *testing.T) {
	ops := NewFileOps()
	dir := t.TempDir()

	size, exists, err := ops.Stat(filepath.Join(dir, "missing"))
	if err != nil || exists || size != 0 {
		t.Fatalf("missing: size=%d exists=%v err=%v", size, exists, err)
	}

	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	size, exists, err = ops.Stat(path)
	if err != nil || !exists || size != 5 {
		t.Fatalf("file: size=%d exists=%v err=%v", size, exists, err)
	}

	if _, _, err := ops.Stat(dir); err == nil {
		t.Fatalf("Stat on a directory should error")
	}
}
