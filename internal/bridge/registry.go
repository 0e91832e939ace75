package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// Manifest declares one registered adapter module: a symbolic name bound to a
// compiled adapter kind. Manifests arrive either from the bootstrap directory
// or through the admin registration endpoint.
type Manifest struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Description string `yaml:"description,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
}

func (m Manifest) enabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Registry maps adapter names to depositor factories. The factory table is
// compiled in; manifests only enable, alias, and describe compiled kinds, so
// a registration can never inject code.
type Registry struct {
	mu        sync.RWMutex
	log       *logger.Logger
	factories map[string]Factory
	modules   map[string]Manifest
	dir       string
}

func NewRegistry(log *logger.Logger) *Registry {
	registry := &Registry{
		log:       log.With("service", "BridgeRegistry"),
		factories: map[string]Factory{},
		modules:   map[string]Manifest{},
	}
	registry.factories["Dataverse"] = NewDataverse
	registry.factories["SoftwareHeritage"] = NewSoftwareHeritage
	registry.factories["Sword"] = NewSword
	registry.factories["Zenodo"] = NewZenodo
	return registry
}

// RegisterKind installs a compiled factory under a kind name. The built-in
// adapters are installed this way; tests use it to plant fakes.
func (r *Registry) RegisterKind(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// LoadDir reads every yaml manifest in dir at startup and makes dir the
// durable home for manifests registered later at runtime. Files that fail to
// parse or name an unknown kind abort the boot; a half-loaded registry is
// worse than a crash.
func (r *Registry) LoadDir(dir string) error {
	r.mu.Lock()
	r.dir = dir
	r.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Warn("Bridge manifest directory missing, compiled kinds only", "dir", dir)
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := r.register(raw, "", true, false); err != nil {
			return fmt.Errorf("manifest %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Register validates and installs one manifest, then persists it to the
// bootstrap directory so it survives a restart. Without overwrite an
// existing name is a conflict. When expectName is set, the manifest must
// carry that exact name. The swap is atomic under the registry lock: a
// concurrent Resolve sees either the old binding or the new one, never a
// partial state, and a manifest that fails validation leaves no file behind.
func (r *Registry) Register(raw []byte, expectName string, overwrite bool) error {
	return r.register(raw, expectName, overwrite, true)
}

func (r *Registry) register(raw []byte, expectName string, overwrite, persist bool) error {
	var manifest Manifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("manifest decode: %w", err)
	}
	if manifest.Name == "" || manifest.Kind == "" {
		return fmt.Errorf("manifest needs name and kind: %w", apperr.ErrInvalidArgument)
	}
	if manifest.Name != filepath.Base(manifest.Name) || strings.ContainsAny(manifest.Name, `/\`) {
		return fmt.Errorf("manifest name %q must be a bare name: %w", manifest.Name, apperr.ErrInvalidArgument)
	}
	if expectName != "" && manifest.Name != expectName {
		return fmt.Errorf("manifest names %q, endpoint names %q: %w", manifest.Name, expectName, apperr.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[manifest.Kind]; !ok {
		return fmt.Errorf("unknown adapter kind %q: %w", manifest.Kind, apperr.ErrInvalidArgument)
	}
	if _, exists := r.modules[manifest.Name]; exists && !overwrite {
		return fmt.Errorf("module %q already registered: %w", manifest.Name, apperr.ErrConflict)
	}
	if persist && r.dir != "" {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return fmt.Errorf("manifest dir: %w", err)
		}
		path := filepath.Join(r.dir, manifest.Name+".yaml")
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			_ = os.Remove(path)
			return fmt.Errorf("persist manifest: %w", err)
		}
	}
	r.modules[manifest.Name] = manifest
	r.log.Info("Registered bridge module", "name", manifest.Name, "kind", manifest.Kind)
	return nil
}

// Resolve returns the factory bound to name. Compiled kinds resolve under
// their own name so a descriptor can reference them without a manifest.
func (r *Registry) Resolve(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if manifest, ok := r.modules[name]; ok {
		if !manifest.enabled() {
			return nil, fmt.Errorf("bridge module %q is disabled: %w", name, apperr.ErrNotFound)
		}
		return r.factories[manifest.Kind], nil
	}
	if factory, ok := r.factories[name]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("bridge module %q: %w", name, apperr.ErrNotFound)
}

// Names lists every resolvable name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	for name := range r.factories {
		seen[name] = true
	}
	for name := range r.modules {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
