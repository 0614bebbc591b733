// Package registry discovers provider plugins from a configured directory and
// indexes their handlers by provider type. Each plugin is declared by a
// manifest file that binds to a compiled-in handler factory; a plugin that
// fails to load is recorded as a warning and skipped so one bad module never
// prevents the others from registering.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/schemamesh/migrator/pkg/logger"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

// Factory constructs a migration handler for one provider type. Provider
// packages register factories at init time.
type Factory func() migration.Handler

// Descriptor is the registry's record of one loaded plugin.
type Descriptor struct {
	Name         string
	Provider     providertypes.ProviderType
	Version      string
	Description  string
	Capabilities []string
	Default      bool
	Handler      migration.Handler
}

// factoryMu guards the process-wide factory table populated by provider
// package init functions.
var (
	factoryMu sync.RWMutex
	factories = make(map[providertypes.ProviderType]Factory)
)

// RegisterFactory registers a compiled-in handler factory for a provider
// type. Later registrations for the same type replace earlier ones.
func RegisterFactory(provider providertypes.ProviderType, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[provider] = factory
}

// LookupFactory returns the registered factory for a provider type.
func LookupFactory(provider providertypes.ProviderType) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[provider]
	return f, ok
}

// Registry indexes loaded plugin descriptors by provider type. It is
// read-only after Load, so lookups are safe from concurrent orchestrator
// calls.
type Registry struct {
	mu         sync.RWMutex
	byProvider map[providertypes.ProviderType][]*Descriptor
	warnings   []error
	log        *logger.Logger
}

// New creates an empty registry.
func New(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.New("registry")
	}
	return &Registry{
		byProvider: make(map[providertypes.ProviderType][]*Descriptor),
		log:        log,
	}
}

// Load scans the plugin directory (non-recursive) for manifest files and
// registers one descriptor per loadable plugin. A missing directory is
// created and yields an empty registry. Two plugins both marked default for
// the same provider is a configuration contradiction and fails loudly.
func (r *Registry) Load(pluginDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(pluginDir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(pluginDir, 0o750); err != nil {
			return fmt.Errorf("failed to create plugin directory %s: %w", pluginDir, err)
		}
		r.log.Warnf("plugin directory %s did not exist, created empty", pluginDir)
		return nil
	}

	entries, err := os.ReadDir(pluginDir)
	if err != nil {
		return fmt.Errorf("failed to read plugin directory %s: %w", pluginDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ManifestSuffix) {
			continue
		}

		path := filepath.Join(pluginDir, entry.Name())
		desc, err := loadOne(path)
		if err != nil {
			loadErr := migration.NewPluginLoadError(path, err)
			r.warnings = append(r.warnings, loadErr)
			r.log.Warnf("skipping plugin: %v", loadErr)
			continue
		}

		r.byProvider[desc.Provider] = append(r.byProvider[desc.Provider], desc)
		r.log.Debugf("registered plugin %s v%s for provider %s (default=%v)",
			desc.Name, desc.Version, desc.Provider, desc.Default)
	}

	return r.validateDefaults()
}

// loadOne reads a manifest and binds it to its compiled-in handler factory.
func loadOne(path string) (*Descriptor, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}

	provider, ok := providertypes.ParseID(m.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q", m.Provider)
	}

	factory, ok := LookupFactory(provider)
	if !ok {
		return nil, fmt.Errorf("no handler implementation available for provider %q", provider)
	}

	handler := factory()
	if handler == nil {
		return nil, fmt.Errorf("handler factory for provider %q returned nil", provider)
	}
	if handler.Type() != provider {
		return nil, fmt.Errorf("handler reports provider %q, manifest declares %q", handler.Type(), provider)
	}

	return &Descriptor{
		Name:         m.Name,
		Provider:     provider,
		Version:      m.Version,
		Description:  m.Description,
		Capabilities: m.Capabilities,
		Default:      m.Default,
		Handler:      migration.Safe(handler),
	}, nil
}

// validateDefaults enforces at most one default plugin per provider type.
func (r *Registry) validateDefaults() error {
	for provider, descs := range r.byProvider {
		var defaults []string
		for _, d := range descs {
			if d.Default {
				defaults = append(defaults, d.Name)
			}
		}
		if len(defaults) > 1 {
			sort.Strings(defaults)
			return fmt.Errorf("configuration error: plugins %s all claim default for provider %s",
				strings.Join(defaults, ", "), provider)
		}
	}
	return nil
}

// Lookup returns the plugin handler for a provider. With an empty name the
// default plugin is returned; a provider group without a default fails closed
// rather than picking arbitrarily. Unknown or unavailable providers yield
// ErrProviderNotFound.
func (r *Registry) Lookup(provider providertypes.ProviderType, name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := r.byProvider[provider]
	if len(descs) == 0 {
		return nil, fmt.Errorf("%w: no plugin registered for provider %s", migration.ErrProviderNotFound, provider)
	}

	if name == "" {
		for _, d := range descs {
			if d.Default {
				return d, nil
			}
		}
		// Fail closed: never fall back to an arbitrary plugin.
		return nil, fmt.Errorf("%w: %d plugin(s) registered for provider %s but none marked default",
			migration.ErrProviderNotFound, len(descs), provider)
	}

	for _, d := range descs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no plugin named %q for provider %s", migration.ErrProviderNotFound, name, provider)
}

// LookupByName resolves a free-form provider name (id, alias, or product
// name) and returns its default plugin.
func (r *Registry) LookupByName(providerName string) (*Descriptor, error) {
	provider, ok := providertypes.ParseID(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider type %q", migration.ErrProviderNotFound, providerName)
	}
	return r.Lookup(provider, "")
}

// Providers returns the provider types that have at least one plugin,
// sorted for stable output.
func (r *Registry) Providers() []providertypes.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]providertypes.ProviderType, 0, len(r.byProvider))
	for provider := range r.byProvider {
		out = append(out, provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descriptors returns all loaded descriptors, sorted by provider then name.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, descs := range r.byProvider {
		out = append(out, descs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Warnings returns the load failures recorded while scanning.
func (r *Registry) Warnings() []error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]error(nil), r.warnings...)
}
