package services

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileOps is the filesystem policy the deposit flow depends on: moving
// finished upload blobs into place, linking them into dataset working
// directories, and tearing working directories down. Injected so tests can
// run against temp dirs and observe the calls.
type FileOps interface {
	EnsureDir(path string) error
	Move(src, dst string) error
	Symlink(target, link string) error
	// Stat returns the size of path and whether it exists as a regular file.
	Stat(path string) (int64, bool, error)
	// Remove deletes one file. A symlink has its target removed first, so
	// dropping a working-directory link also drops the stored blob. A missing
	// path is a no-op.
	Remove(path string) error
	// RemoveTree deletes a dataset working directory. Symlinked entries have
	// their link target removed first so no orphaned blobs stay behind.
	RemoveTree(path string) error
}

type osFileOps struct{}

// NewFileOps returns the production filesystem implementation.
func NewFileOps() FileOps { return osFileOps{} }

func (osFileOps) EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (osFileOps) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (osFileOps) Symlink(target, link string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return err
	}
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return err
		}
	}
	return os.Symlink(target, link)
}

func (osFileOps) Stat(path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if info.IsDir() {
		return 0, false, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), true, nil
}

func (osFileOps) Remove(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		if target, err := os.Readlink(path); err == nil {
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(path), target)
			}
			_ = os.Remove(target)
		}
	}
	return os.Remove(path)
}

func (osFileOps) RemoveTree(path string) error {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := filepath.Join(path, entry.Name())
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(full)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(path, target)
		}
		_ = os.Remove(target)
	}
	return os.RemoveAll(path)
}
