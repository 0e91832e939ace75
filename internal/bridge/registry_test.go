package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(testLogger(t))

	// Compiled kinds resolve under their own name.
	for _, kind := range []string{"Dataverse", "SoftwareHeritage", "Sword", "Zenodo"} {
		factory, err := registry.Resolve(kind)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", kind, err)
		}
		if factory == nil {
			t.Fatalf("Resolve(%s): nil factory", kind)
		}
	}

	if _, err := registry.Resolve("NoSuchModule"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Resolve unknown: expected ErrNotFound, got %v", err)
	}
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry(testLogger(t))

	manifest := []byte("name: demo.dataverse.nl\nkind: Dataverse\ndescription: demo instance\n")
	if err := registry.Register(manifest, "", false); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := registry.Resolve("demo.dataverse.nl"); err != nil {
		t.Fatalf("Resolve registered: %v", err)
	}

	// Same name again without overwrite is a conflict.
	if err := registry.Register(manifest, "", false); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("Register duplicate: expected ErrConflict, got %v", err)
	}
	if err := registry.Register(manifest, "", true); err != nil {
		t.Fatalf("Register overwrite: %v", err)
	}

	// The endpoint name must match the manifest name.
	if err := registry.Register(manifest, "other.name", true); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("Register name mismatch: expected ErrInvalidArgument, got %v", err)
	}
	if err := registry.Register(manifest, "demo.dataverse.nl", true); err != nil {
		t.Fatalf("Register matching name: %v", err)
	}

	// Unknown kinds never register.
	bad := []byte("name: evil\nkind: ArbitraryCode\n")
	if err := registry.Register(bad, "", true); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("Register unknown kind: expected ErrInvalidArgument, got %v", err)
	}

	// Names with path separators never become file names.
	traversal := []byte("name: ../escape\nkind: Zenodo\n")
	if err := registry.Register(traversal, "", true); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("Register traversal name: expected ErrInvalidArgument, got %v", err)
	}

	// Disabled modules do not resolve.
	disabled := []byte("name: parked\nkind: Zenodo\nenabled: false\n")
	if err := registry.Register(disabled, "", false); err != nil {
		t.Fatalf("Register disabled: %v", err)
	}
	if _, err := registry.Resolve("parked"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Resolve disabled: expected ErrNotFound, got %v", err)
	}
}

func TestRegistryRegisterPersists(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry(testLogger(t))
	if err := registry.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	manifest := []byte("name: archive.example.org\nkind: Sword\n")
	if err := registry.Register(manifest, "archive.example.org", false); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "archive.example.org.yaml")); err != nil {
		t.Fatalf("persisted manifest: %v", err)
	}

	// A rejected manifest leaves no file behind.
	bad := []byte("name: evil\nkind: ArbitraryCode\n")
	if err := registry.Register(bad, "", true); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("Register unknown kind: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.yaml")); !os.IsNotExist(err) {
		t.Fatalf("rejected manifest persisted: %v", err)
	}

	// A fresh registry picks the registration up from disk.
	reborn := NewRegistry(testLogger(t))
	if err := reborn.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir reborn: %v", err)
	}
	if _, err := reborn.Resolve("archive.example.org"); err != nil {
		t.Fatalf("Resolve after restart: %v", err)
	}
}

func TestRegistryLoadDirDeterminism(t *testing.T) {
	dir := t.TempDir()
	manifests := map[string]string{
		"b.yaml": "name: beta\nkind: Sword\n",
		"a.yaml": "name: alpha\nkind: Dataverse\n",
		"c.yml":  "name: gamma\nkind: Zenodo\n",
		"n.txt":  "not a manifest",
	}
	for name, content := range manifests {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write manifest: %v", err)
		}
	}

	first := NewRegistry(testLogger(t))
	if err := first.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	second := NewRegistry(testLogger(t))
	if err := second.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir again: %v", err)
	}
	if !reflect.DeepEqual(first.Names(), second.Names()) {
		t.Fatalf("LoadDir not deterministic: %v vs %v", first.Names(), second.Names())
	}

	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, err := first.Resolve(name); err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
	}

	// Missing directory is not fatal.
	third := NewRegistry(testLogger(t))
	if err := third.LoadDir(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("LoadDir missing dir: %v", err)
	}
}
