package registry

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// ManifestSuffix is the file suffix the loader scans for in the plugin
// directory. No other naming contract applies.
const ManifestSuffix = ".plugin.yaml"

// Manifest describes a plugin module: which provider it serves, its version,
// and whether it is the default for that provider. A manifest binds to a
// compiled-in handler factory registered under the same provider type.
type Manifest struct {
	Name         string   `yaml:"name"`
	Provider     string   `yaml:"provider"`
	Version      string   `yaml:"version"`
	Description  string   `yaml:"description,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Default      bool     `yaml:"default,omitempty"`
}

var pluginNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

// Validate checks that a manifest has all required fields and a valid semver
// version.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest: name is required")
	}
	if !isValidPluginName(m.Name) {
		return fmt.Errorf("manifest: name %q must be lowercase alphanumeric with hyphens", m.Name)
	}
	if m.Provider == "" {
		return fmt.Errorf("manifest: provider is required")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest: version is required")
	}
	if !semver.IsValid(canonicalSemver(m.Version)) {
		return fmt.Errorf("manifest: invalid version %q", m.Version)
	}
	return nil
}

func isValidPluginName(name string) bool {
	if len(name) < 2 {
		return len(name) == 1 && name[0] >= 'a' && name[0] <= 'z'
	}
	return pluginNameRe.MatchString(name)
}

func canonicalSemver(version string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}

// LoadManifest reads and validates a manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	//nolint:gosec // path comes from the configured plugin directory scan
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}
